package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskbot/internal/clock"
	"taskbot/internal/storage"
	"taskbot/internal/task"
	logx "taskbot/pkg/logx"
)

type fakeReminders struct {
	mu        sync.Mutex
	armed     []int64
	cancelled []int64
}

func (f *fakeReminders) Arm(t *task.Task) {
	f.mu.Lock()
	f.armed = append(f.armed, t.ID)
	f.mu.Unlock()
}

func (f *fakeReminders) Cancel(taskID int64) {
	f.mu.Lock()
	f.cancelled = append(f.cancelled, taskID)
	f.mu.Unlock()
}

func TestPersonalCreateArmsReminder(t *testing.T) {
	store := storage.NewMemory()
	clk := clock.NewFake(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	rem := &fakeReminders{}
	svc := NewPersonal(store, clk, rem, logx.Nop())
	ctx := context.Background()

	at := clk.Now().Add(time.Hour)
	tk, err := svc.Create(ctx, CreatePersonalTask{UserID: 7, Title: "water plants", ReminderAt: &at})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(rem.armed) != 1 || rem.armed[0] != tk.ID {
		t.Fatalf("expected reminder armed for %d, got %v", tk.ID, rem.armed)
	}

	past := clk.Now().Add(-time.Minute)
	var verr *task.ValidationError
	if _, err := svc.Create(ctx, CreatePersonalTask{UserID: 7, Title: "x", ReminderAt: &past}); !errors.As(err, &verr) {
		t.Fatalf("past reminder: expected ValidationError, got %v", err)
	}
}

func TestPersonalCompleteCancelsReminder(t *testing.T) {
	store := storage.NewMemory()
	clk := clock.NewFake(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	rem := &fakeReminders{}
	svc := NewPersonal(store, clk, rem, logx.Nop())
	ctx := context.Background()

	at := clk.Now().Add(time.Hour)
	tk, err := svc.Create(ctx, CreatePersonalTask{UserID: 7, Title: "water plants", ReminderAt: &at})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.Complete(ctx, tk.ID, 7)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != task.StatusCompleted || got.ReminderAt != nil {
		t.Fatalf("after complete: %+v", got)
	}
	if got.VerifiedAt == nil || got.VerifiedBy == nil || *got.VerifiedBy != 7 {
		t.Fatalf("owner completion must self-verify: %+v", got)
	}
	if len(rem.cancelled) != 1 || rem.cancelled[0] != tk.ID {
		t.Fatalf("expected reminder cancelled, got %v", rem.cancelled)
	}

	// Double complete is rejected.
	var verr *task.ValidationError
	if _, err := svc.Complete(ctx, tk.ID, 7); !errors.As(err, &verr) {
		t.Fatalf("second complete: expected ValidationError, got %v", err)
	}
}

func TestPersonalOwnershipHidesForeignTasks(t *testing.T) {
	store := storage.NewMemory()
	clk := clock.NewFake(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	svc := NewPersonal(store, clk, nil, logx.Nop())
	ctx := context.Background()

	tk, err := svc.Create(ctx, CreatePersonalTask{UserID: 7, Title: "mine"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var nf *task.NotFoundError
	if _, err := svc.Complete(ctx, tk.ID, 8); !errors.As(err, &nf) {
		t.Fatalf("foreign complete: expected NotFoundError, got %v", err)
	}
	if err := svc.Delete(ctx, tk.ID, 8); !errors.As(err, &nf) {
		t.Fatalf("foreign delete: expected NotFoundError, got %v", err)
	}

	if err := svc.Delete(ctx, tk.ID, 7); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := store.Get(ctx, tk.ID); !errors.As(err, &nf) {
		t.Fatalf("task should be gone, got %v", err)
	}
}
