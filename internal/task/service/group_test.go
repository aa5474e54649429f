package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskbot/internal/clock"
	"taskbot/internal/events"
	"taskbot/internal/storage"
	"taskbot/internal/task"
	logx "taskbot/pkg/logx"
)

func newGroupFixture(t *testing.T) (*GroupService, *storage.Memory, *clock.Fake, events.Bus) {
	t.Helper()
	store := storage.NewMemory()
	clk := clock.NewFake(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	bus := events.New()
	svc := NewGroup(store, clk, bus, 15, logx.Nop())
	return svc, store, clk, bus
}

func mustCreate(t *testing.T, svc *GroupService) *task.Task {
	t.Helper()
	tk, err := svc.Create(context.Background(), CreateGroupTask{
		GroupID:    -100,
		AssigneeID: 200,
		AssignedBy: 1,
		Title:      "weekly report",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return tk
}

func TestCreateValidation(t *testing.T) {
	svc, _, _, _ := newGroupFixture(t)
	ctx := context.Background()

	var verr *task.ValidationError
	if _, err := svc.Create(ctx, CreateGroupTask{GroupID: -1, AssigneeID: 2, AssignedBy: 1, Title: "   "}); !errors.As(err, &verr) {
		t.Fatalf("empty title: expected ValidationError, got %v", err)
	}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := svc.Create(ctx, CreateGroupTask{GroupID: -1, AssigneeID: 2, AssignedBy: 1, Title: string(long)}); !errors.As(err, &verr) {
		t.Fatalf("long title: expected ValidationError, got %v", err)
	}

	small := 5
	if _, err := svc.Create(ctx, CreateGroupTask{GroupID: -1, AssigneeID: 2, AssignedBy: 1, Title: "ok", ReminderIntervalMinutes: &small}); !errors.As(err, &verr) {
		t.Fatalf("tiny interval: expected ValidationError, got %v", err)
	}

	tk, err := svc.Create(ctx, CreateGroupTask{GroupID: -1, AssigneeID: 2, AssignedBy: 1, Title: "  trimmed  "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tk.Title != "trimmed" || tk.Status != task.StatusPending {
		t.Fatalf("unexpected created task: %+v", tk)
	}
}

func TestSubmitVerifyHappyPath(t *testing.T) {
	svc, store, clk, _ := newGroupFixture(t)
	ctx := context.Background()
	tk := mustCreate(t, svc)

	if _, err := svc.Submit(ctx, tk.ID, 200); err != nil {
		t.Fatalf("submit: %v", err)
	}
	cur, _ := store.Get(ctx, tk.ID)
	if cur.Status != task.StatusSubmitted || cur.SubmittedAt == nil {
		t.Fatalf("after submit: %+v", cur)
	}

	clk.Advance(time.Hour)
	got, err := svc.Verify(ctx, tk.ID, 1)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Status != task.StatusCompleted {
		t.Fatalf("verify status = %s", got.Status)
	}
	if got.VerifiedAt == nil || got.VerifiedBy == nil || *got.VerifiedBy != 1 {
		t.Fatalf("verification bookkeeping missing: %+v", got)
	}
	if got.ReminderIntervalMinutes != nil || got.LastReminderSent != nil {
		t.Fatalf("verify must clear reminder state: %+v", got)
	}
}

func TestSubmitWrongActorLeavesTaskUnchanged(t *testing.T) {
	svc, store, _, _ := newGroupFixture(t)
	ctx := context.Background()
	tk := mustCreate(t, svc)

	var verr *task.ValidationError
	if _, err := svc.Submit(ctx, tk.ID, 999); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	cur, _ := store.Get(ctx, tk.ID)
	if cur.Status != task.StatusPending || cur.SubmittedAt != nil {
		t.Fatalf("rejected submit mutated the record: %+v", cur)
	}
}

func TestSubmitTwiceSecondFails(t *testing.T) {
	svc, store, _, _ := newGroupFixture(t)
	ctx := context.Background()
	tk := mustCreate(t, svc)

	if _, err := svc.Submit(ctx, tk.ID, 200); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	var verr *task.ValidationError
	if _, err := svc.Submit(ctx, tk.ID, 200); !errors.As(err, &verr) {
		t.Fatalf("second submit: expected ValidationError, got %v", err)
	}
	cur, _ := store.Get(ctx, tk.ID)
	if cur.Status != task.StatusSubmitted {
		t.Fatalf("status after double submit = %s", cur.Status)
	}
}

func TestRejectRequiresSubmitted(t *testing.T) {
	svc, store, _, bus := newGroupFixture(t)
	ctx := context.Background()
	tk := mustCreate(t, svc)

	ch, unsub := bus.Subscribe(4)
	defer unsub()

	var verr *task.ValidationError
	if _, err := svc.Reject(ctx, tk.ID, 1); !errors.As(err, &verr) {
		t.Fatalf("reject on pending: expected ValidationError, got %v", err)
	}
	cur, _ := store.Get(ctx, tk.ID)
	if cur.Status != task.StatusPending {
		t.Fatalf("status after rejected reject = %s", cur.Status)
	}

	select {
	case e := <-ch:
		if e.Type != events.TypeTransitionRejected {
			t.Fatalf("unexpected event %q", e.Type)
		}
		data, ok := e.Data.(events.TransitionRejected)
		if !ok || data.TaskID != tk.ID || data.Action != string(task.ActionReject) {
			t.Fatalf("unexpected payload %+v", e.Data)
		}
	default:
		t.Fatalf("expected a TransitionRejected event")
	}
}

func TestRejectReturnsToInProgress(t *testing.T) {
	svc, _, _, _ := newGroupFixture(t)
	ctx := context.Background()
	tk := mustCreate(t, svc)

	if _, err := svc.Submit(ctx, tk.ID, 200); err != nil {
		t.Fatalf("submit: %v", err)
	}
	got, err := svc.Reject(ctx, tk.ID, 1)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != task.StatusInProgress || got.SubmittedAt != nil {
		t.Fatalf("after reject: %+v", got)
	}
}

func TestReassignResetsToPending(t *testing.T) {
	svc, _, _, _ := newGroupFixture(t)
	ctx := context.Background()
	tk := mustCreate(t, svc)

	if _, err := svc.Submit(ctx, tk.ID, 200); err != nil {
		t.Fatalf("submit: %v", err)
	}
	got, err := svc.Reassign(ctx, tk.ID, 300, 1)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if got.Status != task.StatusPending || got.AssigneeID != 300 || got.SubmittedAt != nil {
		t.Fatalf("after reassign: %+v", got)
	}

	// Terminal states cannot be reassigned.
	if _, err := svc.Submit(ctx, tk.ID, 300); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Verify(ctx, tk.ID, 1); err != nil {
		t.Fatalf("verify: %v", err)
	}
	var verr *task.ValidationError
	if _, err := svc.Reassign(ctx, tk.ID, 400, 1); !errors.As(err, &verr) {
		t.Fatalf("reassign completed: expected ValidationError, got %v", err)
	}
}

func TestSetReminderIntervalRejectsOverdue(t *testing.T) {
	svc, store, _, _ := newGroupFixture(t)
	ctx := context.Background()
	tk := mustCreate(t, svc)

	if _, err := svc.SetReminderInterval(ctx, tk.ID, 30); err != nil {
		t.Fatalf("set interval: %v", err)
	}
	cur, _ := store.Get(ctx, tk.ID)
	if cur.ReminderIntervalMinutes == nil || *cur.ReminderIntervalMinutes != 30 {
		t.Fatalf("interval not stored: %+v", cur)
	}

	if _, err := store.AtomicUpdate(ctx, tk.ID, func(t *task.Task) error {
		t.Status = task.StatusOverdue
		t.ReminderIntervalMinutes = nil
		return nil
	}); err != nil {
		t.Fatalf("mark overdue: %v", err)
	}
	var verr *task.ValidationError
	if _, err := svc.SetReminderInterval(ctx, tk.ID, 30); !errors.As(err, &verr) {
		t.Fatalf("interval on overdue: expected ValidationError, got %v", err)
	}
}

func TestOperationsOnUnknownTask(t *testing.T) {
	svc, _, _, _ := newGroupFixture(t)
	ctx := context.Background()

	var nf *task.NotFoundError
	if _, err := svc.Submit(ctx, 12345, 200); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
