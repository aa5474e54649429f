package service

import (
	"context"
	"strings"
	"time"

	"taskbot/internal/clock"
	"taskbot/internal/storage"
	"taskbot/internal/task"
	logx "taskbot/pkg/logx"
)

// Reminders arms and cancels one-shot personal reminder triggers. Implemented
// by the jobs package; nil disables arming (tasks still store ReminderAt).
type Reminders interface {
	Arm(t *task.Task)
	Cancel(taskID int64)
}

// PersonalService covers tasks a user keeps for themselves. There is no
// submit/verify handshake here: the owner completes their own task, which
// records them as the verifier to keep the completed-implies-verified
// bookkeeping uniform across both task kinds.
type PersonalService struct {
	store     storage.Store
	clock     clock.Clock
	reminders Reminders
	log       logx.Logger
}

func NewPersonal(store storage.Store, clk clock.Clock, reminders Reminders, log logx.Logger) *PersonalService {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &PersonalService{store: store, clock: clk, reminders: reminders, log: log}
}

type CreatePersonalTask struct {
	UserID      int64
	Title       string
	Description string
	Priority    string
	DueDate     *time.Time
	ReminderAt  *time.Time
}

func (s *PersonalService) Create(ctx context.Context, p CreatePersonalTask) (*task.Task, error) {
	title, err := validateTitle(p.Title)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if p.ReminderAt != nil && p.ReminderAt.Before(now) {
		return nil, task.NewValidationError("reminder_at", "reminder must be in the future")
	}

	t := &task.Task{
		AssigneeID:  p.UserID,
		Title:       title,
		Description: strings.TrimSpace(p.Description),
		Status:      task.StatusPending,
		Priority:    task.ParsePriority(p.Priority),
		DueDate:     p.DueDate,
		ReminderAt:  p.ReminderAt,
		CreatedAt:   now.UTC(),
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	if t.ReminderAt != nil && s.reminders != nil {
		s.reminders.Arm(t)
	}
	s.log.Info("personal task created", logx.Int64("task_id", t.ID), logx.Int64("user", p.UserID))
	return t, nil
}

// Complete marks the owner's task done and drops any pending reminder.
func (s *PersonalService) Complete(ctx context.Context, taskID, userID int64) (*task.Task, error) {
	now := s.clock.Now().UTC()
	updated, err := s.store.AtomicUpdate(ctx, taskID, func(t *task.Task) error {
		if t.IsGroup() || t.AssigneeID != userID {
			return &task.NotFoundError{ID: taskID}
		}
		if t.Status == task.StatusCompleted || t.Status == task.StatusCancelled {
			return task.NewValidationError("status", "task is already closed")
		}
		t.Status = task.StatusCompleted
		t.VerifiedAt = &now
		t.VerifiedBy = &userID
		t.ReminderAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.reminders != nil {
		s.reminders.Cancel(taskID)
	}
	return updated, nil
}

func (s *PersonalService) Delete(ctx context.Context, taskID, userID int64) error {
	t, err := s.store.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t.IsGroup() || t.AssigneeID != userID {
		return &task.NotFoundError{ID: taskID}
	}
	if err := s.store.Delete(ctx, taskID); err != nil {
		return err
	}
	if s.reminders != nil {
		s.reminders.Cancel(taskID)
	}
	return nil
}

// List returns the user's personal tasks, newest first.
func (s *PersonalService) List(ctx context.Context, userID int64) ([]*task.Task, error) {
	all, err := s.store.Query(ctx, storage.Filter{AssigneeID: &userID})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if !t.IsGroup() {
			out = append(out, t)
		}
	}
	return out, nil
}
