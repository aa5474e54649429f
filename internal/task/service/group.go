// Package service holds task mutation policy: validation, the lifecycle
// transition rules and their bookkeeping. Every write goes through the
// store's atomic read-modify-write so a rejected transition never leaves a
// partial update behind.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskbot/internal/clock"
	"taskbot/internal/events"
	"taskbot/internal/storage"
	"taskbot/internal/task"
	logx "taskbot/pkg/logx"
)

type GroupService struct {
	store storage.Store
	clock clock.Clock
	bus   events.Bus
	log   logx.Logger

	minReminderInterval int // minutes
}

func NewGroup(store storage.Store, clk clock.Clock, bus events.Bus, minReminderInterval int, log logx.Logger) *GroupService {
	if log.IsZero() {
		log = logx.Nop()
	}
	if minReminderInterval <= 0 {
		minReminderInterval = 15
	}
	return &GroupService{
		store:               store,
		clock:               clk,
		bus:                 bus,
		log:                 log,
		minReminderInterval: minReminderInterval,
	}
}

type CreateGroupTask struct {
	GroupID     int64
	AssigneeID  int64
	AssignedBy  int64
	Title       string
	Description string
	Priority    string
	DueDate     *time.Time

	ReminderIntervalMinutes *int
}

func (s *GroupService) Create(ctx context.Context, p CreateGroupTask) (*task.Task, error) {
	title, err := validateTitle(p.Title)
	if err != nil {
		return nil, err
	}
	if err := s.validateInterval(p.ReminderIntervalMinutes); err != nil {
		return nil, err
	}
	if p.AssigneeID == 0 || p.AssignedBy == 0 {
		return nil, task.NewValidationError("assignee", "group tasks need an assignee and an assigner")
	}

	groupID := p.GroupID
	t := &task.Task{
		GroupID:                 &groupID,
		AssigneeID:              p.AssigneeID,
		AssignedBy:              p.AssignedBy,
		Title:                   title,
		Description:             strings.TrimSpace(p.Description),
		Status:                  task.StatusPending,
		Priority:                task.ParsePriority(p.Priority),
		DueDate:                 p.DueDate,
		ReminderIntervalMinutes: p.ReminderIntervalMinutes,
		CreatedAt:               s.clock.Now().UTC(),
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	s.log.Info("group task created",
		logx.Int64("task_id", t.ID),
		logx.Int64("group_id", groupID),
		logx.Int64("assignee", t.AssigneeID))
	return t, nil
}

// Submit moves a task to Submitted. Only the recorded assignee may submit,
// and only from Pending/InProgress.
func (s *GroupService) Submit(ctx context.Context, taskID, userID int64) (*task.Task, error) {
	return s.transition(ctx, taskID, task.ActionSubmit, func(t *task.Task, now time.Time) error {
		if t.AssigneeID != userID {
			return task.NewValidationError("user", "only the assignee can submit this task")
		}
		t.SubmittedAt = &now
		return nil
	})
}

// Verify accepts a submission: Completed, with verification bookkeeping, and
// reminders stop for good.
func (s *GroupService) Verify(ctx context.Context, taskID, adminID int64) (*task.Task, error) {
	return s.transition(ctx, taskID, task.ActionVerify, func(t *task.Task, now time.Time) error {
		t.VerifiedAt = &now
		t.VerifiedBy = &adminID
		t.ReminderIntervalMinutes = nil
		t.LastReminderSent = nil
		return nil
	})
}

// Reject sends a submission back to InProgress.
func (s *GroupService) Reject(ctx context.Context, taskID, adminID int64) (*task.Task, error) {
	return s.transition(ctx, taskID, task.ActionReject, func(t *task.Task, now time.Time) error {
		t.SubmittedAt = nil
		return nil
	})
}

// Reassign hands the task to a new assignee and resets it to Pending.
func (s *GroupService) Reassign(ctx context.Context, taskID, newAssigneeID, adminID int64) (*task.Task, error) {
	if newAssigneeID == 0 {
		return nil, task.NewValidationError("assignee", "new assignee is required")
	}
	return s.transition(ctx, taskID, task.ActionReassign, func(t *task.Task, now time.Time) error {
		t.AssigneeID = newAssigneeID
		t.SubmittedAt = nil
		return nil
	})
}

// Cancel retires a task that will not be done.
func (s *GroupService) Cancel(ctx context.Context, taskID, adminID int64) (*task.Task, error) {
	return s.transition(ctx, taskID, task.ActionCancel, func(t *task.Task, now time.Time) error {
		t.ReminderIntervalMinutes = nil
		t.LastReminderSent = nil
		return nil
	})
}

// transition applies one lifecycle action atomically. The status check runs
// against the current stored record inside the update, so concurrent actors
// can't both pass a stale precondition.
func (s *GroupService) transition(ctx context.Context, taskID int64, action task.Action, apply func(*task.Task, time.Time) error) (*task.Task, error) {
	now := s.clock.Now().UTC()
	updated, err := s.store.AtomicUpdate(ctx, taskID, func(t *task.Task) error {
		next, ok := task.Next(t.Status, action)
		if !ok {
			return task.NewValidationError("status", "cannot "+string(action)+" a task with status "+string(t.Status))
		}
		if err := apply(t, now); err != nil {
			return err
		}
		t.Status = next
		return nil
	})
	if err != nil {
		var verr *task.ValidationError
		if errors.As(err, &verr) && s.bus != nil {
			s.bus.Publish(events.Event{
				Type: events.TypeTransitionRejected,
				Data: events.TransitionRejected{TaskID: taskID, Action: string(action), Reason: verr.Reason},
			})
		}
		return nil, err
	}
	s.log.Info("task transition",
		logx.Int64("task_id", taskID),
		logx.String("action", string(action)),
		logx.String("status", string(updated.Status)))
	return updated, nil
}

// SetReminderInterval updates the recurring reminder cadence for a task.
func (s *GroupService) SetReminderInterval(ctx context.Context, taskID int64, minutes int) (*task.Task, error) {
	if err := s.validateInterval(&minutes); err != nil {
		return nil, err
	}
	return s.store.AtomicUpdate(ctx, taskID, func(t *task.Task) error {
		if t.Status == task.StatusOverdue {
			return task.NewValidationError("status", "overdue tasks no longer get reminders")
		}
		t.ReminderIntervalMinutes = &minutes
		return nil
	})
}

type EditGroupTask struct {
	Title   *string
	DueDate *time.Time
}

// Edit updates title and/or deadline (admin only, resolved by the caller).
func (s *GroupService) Edit(ctx context.Context, taskID int64, p EditGroupTask) (*task.Task, error) {
	if p.Title != nil {
		title, err := validateTitle(*p.Title)
		if err != nil {
			return nil, err
		}
		p.Title = &title
	}
	return s.store.AtomicUpdate(ctx, taskID, func(t *task.Task) error {
		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.DueDate != nil {
			t.DueDate = p.DueDate
		}
		return nil
	})
}

// ListGroup returns a group's tasks, optionally filtered by status.
func (s *GroupService) ListGroup(ctx context.Context, groupID int64, status *task.Status) ([]*task.Task, error) {
	f := storage.Filter{GroupID: &groupID}
	if status != nil {
		f.Statuses = []task.Status{*status}
	}
	return s.store.Query(ctx, f)
}

// ListAssigned returns a user's active tasks, optionally scoped to one group.
func (s *GroupService) ListAssigned(ctx context.Context, userID int64, groupID *int64) ([]*task.Task, error) {
	return s.store.Query(ctx, storage.Filter{
		AssigneeID: &userID,
		GroupID:    groupID,
		Statuses:   []task.Status{task.StatusPending, task.StatusInProgress, task.StatusSubmitted},
	})
}

func (s *GroupService) Get(ctx context.Context, taskID int64) (*task.Task, error) {
	return s.store.Get(ctx, taskID)
}

func (s *GroupService) validateInterval(minutes *int) error {
	if minutes == nil {
		return nil
	}
	if *minutes < s.minReminderInterval {
		return task.NewValidationError("reminder_interval",
			fmt.Sprintf("minimum interval is %d minutes", s.minReminderInterval))
	}
	return nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", task.NewValidationError("title", "title cannot be empty")
	}
	if len(title) > task.TitleMaxLen {
		return "", task.NewValidationError("title", "title too long (max 255 chars)")
	}
	return title, nil
}
