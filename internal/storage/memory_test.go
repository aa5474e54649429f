package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskbot/internal/task"
)

func newGroupTask(group int64, status task.Status) *task.Task {
	g := group
	return &task.Task{
		GroupID:    &g,
		AssigneeID: 100,
		AssignedBy: 1,
		Title:      "t",
		Status:     status,
		Priority:   task.PriorityMedium,
	}
}

func TestMemoryCreateAssignsIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a := newGroupTask(-1, task.StatusPending)
	b := newGroupTask(-1, task.StatusPending)
	if err := m.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Create(ctx, b); err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == 0 || b.ID == 0 || a.ID == b.ID {
		t.Fatalf("expected distinct non-zero ids, got %d and %d", a.ID, b.ID)
	}
}

func TestMemoryQueryFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)

	interval := 30
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	overdue := newGroupTask(-1, task.StatusPending)
	overdue.DueDate = &past
	active := newGroupTask(-1, task.StatusInProgress)
	active.DueDate = &future
	active.ReminderIntervalMinutes = &interval
	noDue := newGroupTask(-1, task.StatusPending)
	noDue.ReminderIntervalMinutes = &interval
	personal := &task.Task{AssigneeID: 7, Title: "p", Status: task.StatusPending}

	for _, tk := range []*task.Task{overdue, active, noDue, personal} {
		if err := m.Create(ctx, tk); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	// Reminder candidate filter: group + interval + active status + not past due.
	got, err := m.Query(ctx, Filter{
		GroupOnly:            true,
		WithReminderInterval: true,
		Statuses:             []task.Status{task.StatusPending, task.StatusInProgress},
		DueAfterOrUnset:      &now,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("reminder filter: expected 2 tasks, got %d", len(got))
	}

	// Overdue filter: group + deadline strictly in the past + active status.
	got, err = m.Query(ctx, Filter{
		GroupOnly: true,
		DueBefore: &now,
		Statuses:  []task.Status{task.StatusPending, task.StatusInProgress},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].ID != overdue.ID {
		t.Fatalf("overdue filter: expected only task %d, got %+v", overdue.ID, got)
	}
}

func TestMemoryAtomicUpdateRollsBackOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	tk := newGroupTask(-1, task.StatusPending)
	if err := m.Create(ctx, tk); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	_, err := m.AtomicUpdate(ctx, tk.ID, func(t *task.Task) error {
		t.Status = task.StatusCancelled
		t.Title = "mutated"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}

	cur, err := m.Get(ctx, tk.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cur.Status != task.StatusPending || cur.Title != "t" {
		t.Fatalf("record changed despite mutator error: %+v", cur)
	}
}

func TestMemoryNotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var nf *task.NotFoundError
	if _, err := m.Get(ctx, 42); !errors.As(err, &nf) {
		t.Fatalf("Get: expected NotFoundError, got %v", err)
	}
	if _, err := m.AtomicUpdate(ctx, 42, func(*task.Task) error { return nil }); !errors.As(err, &nf) {
		t.Fatalf("AtomicUpdate: expected NotFoundError, got %v", err)
	}
	if err := m.Delete(ctx, 42); !errors.As(err, &nf) {
		t.Fatalf("Delete: expected NotFoundError, got %v", err)
	}
}
