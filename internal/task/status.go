package task

// Status is the closed set of task states. Values are stable identifiers used
// in storage and config; never compare user input against them directly.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusOverdue    Status = "overdue"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSubmitted, StatusCompleted, StatusCancelled, StatusOverdue:
		return true
	}
	return false
}

// Action is a lifecycle transition request.
type Action string

const (
	ActionSubmit      Action = "submit"
	ActionVerify      Action = "verify"
	ActionReject      Action = "reject"
	ActionReassign    Action = "reassign"
	ActionCancel      Action = "cancel"
	ActionMarkOverdue Action = "mark_overdue"
)

// Next is the single transition function for the lifecycle.
//
//	Pending, InProgress          --submit-->       Submitted
//	Submitted                    --verify-->       Completed
//	Submitted                    --reject-->       InProgress
//	not Completed/Cancelled      --reassign-->     Pending
//	Pending, InProgress, Submitted --cancel-->     Cancelled
//	Pending, InProgress          --mark_overdue--> Overdue
//
// Completed and Cancelled are terminal. Overdue deliberately has no outgoing
// transition besides reassign: a task that escalated stays escalated even if
// an admin later moves the deadline forward.
func Next(s Status, a Action) (Status, bool) {
	switch a {
	case ActionSubmit:
		if s == StatusPending || s == StatusInProgress {
			return StatusSubmitted, true
		}
	case ActionVerify:
		if s == StatusSubmitted {
			return StatusCompleted, true
		}
	case ActionReject:
		if s == StatusSubmitted {
			return StatusInProgress, true
		}
	case ActionReassign:
		if s != StatusCompleted && s != StatusCancelled {
			return StatusPending, true
		}
	case ActionCancel:
		if s == StatusPending || s == StatusInProgress || s == StatusSubmitted {
			return StatusCancelled, true
		}
	case ActionMarkOverdue:
		if s == StatusPending || s == StatusInProgress {
			return StatusOverdue, true
		}
	}
	return s, false
}

// Priority is a display ordering hint only; nothing in scheduling reads it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority is forgiving: anything unknown falls back to medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityHigh:
		return Priority(s)
	}
	return PriorityMedium
}
