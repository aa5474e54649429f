// Package storage is the task repository. It exposes filtered reads and a
// single atomic read-modify-write primitive; everything the schedulers and
// services do to a record goes through AtomicUpdate so concurrent ticks can't
// interleave partial writes.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskbot/internal/task"
	logx "taskbot/pkg/logx"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process map, used by tests and throwaway runs
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Filter selects tasks. Zero value matches everything; each set field narrows
// the result. Results are ordered newest-created first.
type Filter struct {
	GroupOnly  bool // group tasks only (group scope present)
	GroupID    *int64
	AssigneeID *int64

	Statuses []task.Status

	// WithReminderInterval keeps only tasks with a recurring interval set.
	WithReminderInterval bool
	// WithReminderAt keeps only tasks with a one-shot reminder pending.
	WithReminderAt bool

	// DueBefore keeps tasks whose deadline exists and is strictly before t.
	DueBefore *time.Time
	// DueAfterOrUnset keeps tasks with no deadline or a deadline strictly after t.
	DueAfterOrUnset *time.Time
	// ReminderAtBefore keeps tasks whose one-shot reminder exists and is at or before t.
	ReminderAtBefore *time.Time
	// VerifiedBefore keeps tasks verified strictly before t.
	VerifiedBefore *time.Time
}

// Mutator edits a task inside AtomicUpdate. Returning an error aborts the
// update and leaves the stored record untouched.
type Mutator func(*task.Task) error

type Store interface {
	Create(ctx context.Context, t *task.Task) error
	Get(ctx context.Context, id int64) (*task.Task, error)
	Query(ctx context.Context, f Filter) ([]*task.Task, error)
	AtomicUpdate(ctx context.Context, id int64, mutate Mutator) (*task.Task, error)
	Delete(ctx context.Context, id int64) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}

func matches(t *task.Task, f Filter) bool {
	if f.GroupOnly && t.GroupID == nil {
		return false
	}
	if f.GroupID != nil && (t.GroupID == nil || *t.GroupID != *f.GroupID) {
		return false
	}
	if f.AssigneeID != nil && t.AssigneeID != *f.AssigneeID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if t.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.WithReminderInterval && t.ReminderIntervalMinutes == nil {
		return false
	}
	if f.WithReminderAt && t.ReminderAt == nil {
		return false
	}
	if f.DueBefore != nil && (t.DueDate == nil || !t.DueDate.Before(*f.DueBefore)) {
		return false
	}
	if f.DueAfterOrUnset != nil && t.DueDate != nil && !t.DueDate.After(*f.DueAfterOrUnset) {
		return false
	}
	if f.ReminderAtBefore != nil && (t.ReminderAt == nil || t.ReminderAt.After(*f.ReminderAtBefore)) {
		return false
	}
	if f.VerifiedBefore != nil && (t.VerifiedAt == nil || !t.VerifiedAt.Before(*f.VerifiedBefore)) {
		return false
	}
	return true
}
