// Package task holds the task record, its closed status set and the single
// lifecycle transition function. All mutation policy lives in task/service.
package task

import "time"

const (
	TitleMaxLen = 255
)

// Task is the unit of work.
//
// GroupID nil means a personal task; group tasks additionally carry AssignedBy
// (the admin who created the assignment). AssignedBy is zero for personal
// tasks.
type Task struct {
	ID int64

	GroupID    *int64
	AssigneeID int64
	AssignedBy int64

	Title       string
	Description string
	Status      Status
	Priority    Priority

	DueDate *time.Time

	// Recurring group reminders.
	ReminderIntervalMinutes *int
	LastReminderSent        *time.Time

	// One-shot personal reminder trigger time.
	ReminderAt *time.Time

	SubmittedAt *time.Time
	VerifiedAt  *time.Time
	VerifiedBy  *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Task) IsGroup() bool { return t.GroupID != nil }

// ReminderDue reports whether the recurring reminder interval has elapsed.
// Eligible at exactly lastSent+interval, not one minute before.
func (t *Task) ReminderDue(now time.Time) bool {
	if t.ReminderIntervalMinutes == nil {
		return false
	}
	if t.LastReminderSent == nil {
		return true
	}
	interval := time.Duration(*t.ReminderIntervalMinutes) * time.Minute
	return now.Sub(*t.LastReminderSent) >= interval
}

// Clone returns a deep copy; stores hand copies out so callers can't alias
// their internal records.
func (t *Task) Clone() *Task {
	cp := *t
	cp.GroupID = clonePtr(t.GroupID)
	cp.DueDate = clonePtr(t.DueDate)
	cp.ReminderIntervalMinutes = clonePtr(t.ReminderIntervalMinutes)
	cp.LastReminderSent = clonePtr(t.LastReminderSent)
	cp.ReminderAt = clonePtr(t.ReminderAt)
	cp.SubmittedAt = clonePtr(t.SubmittedAt)
	cp.VerifiedAt = clonePtr(t.VerifiedAt)
	cp.VerifiedBy = clonePtr(t.VerifiedBy)
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
