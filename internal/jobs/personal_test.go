package jobs

import (
	"context"
	"testing"
	"time"

	"taskbot/internal/clock"
	"taskbot/internal/scheduler"
	"taskbot/internal/storage"
	"taskbot/internal/task"
	logx "taskbot/pkg/logx"
)

// fakeOnce captures armed triggers so tests fire them deterministically.
type fakeOnce struct {
	jobs    map[string]scheduler.Job
	ats     map[string]time.Time
	removed []string
}

func newFakeOnce() *fakeOnce {
	return &fakeOnce{jobs: map[string]scheduler.Job{}, ats: map[string]time.Time{}}
}

func (f *fakeOnce) AddOnce(name string, at time.Time, timeout time.Duration, job scheduler.Job) error {
	f.jobs[name] = job
	f.ats[name] = at
	return nil
}

func (f *fakeOnce) Remove(name string) bool {
	f.removed = append(f.removed, name)
	_, ok := f.jobs[name]
	delete(f.jobs, name)
	delete(f.ats, name)
	return ok
}

func (f *fakeOnce) fire(t *testing.T, name string) error {
	t.Helper()
	job, ok := f.jobs[name]
	if !ok {
		t.Fatalf("no trigger armed under %q", name)
	}
	delete(f.jobs, name)
	return job(context.Background())
}

func seedPersonalTask(t *testing.T, store storage.Store, remindAt *time.Time) *task.Task {
	t.Helper()
	tk := &task.Task{
		AssigneeID: 200,
		Title:      "buy groceries",
		Status:     task.StatusPending,
		Priority:   task.PriorityMedium,
		ReminderAt: remindAt,
	}
	if err := store.Create(context.Background(), tk); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return tk
}

func TestPersonalArmAndFire(t *testing.T) {
	store := storage.NewMemory()
	sink := &fakeSink{}
	sched := newFakeOnce()
	clk := clock.NewFake(workingMonday)
	rem := NewPersonalReminders(store, sink, sched, clk, logx.Nop())
	ctx := context.Background()

	at := workingMonday.Add(time.Hour)
	tk := seedPersonalTask(t, store, &at)

	rem.Arm(tk)
	name := triggerName(tk.ID)
	if got := sched.ats[name]; !got.Equal(at) {
		t.Fatalf("armed at %v, want %v", got, at)
	}

	if err := sched.fire(t, name); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("sends = %d, want 1", sink.count())
	}
	got := sink.sent[0]
	if got.to.ChatID != tk.AssigneeID || got.p.TaskID != tk.ID {
		t.Fatalf("delivered to %+v payload %+v", got.to, got.p)
	}

	// The trigger time is consumed; a restart must not re-arm it.
	cur, _ := store.Get(ctx, tk.ID)
	if cur.ReminderAt != nil {
		t.Fatalf("reminder time not cleared: %+v", cur)
	}
}

func TestPersonalFireSkipsClosedTask(t *testing.T) {
	store := storage.NewMemory()
	sink := &fakeSink{}
	sched := newFakeOnce()
	clk := clock.NewFake(workingMonday)
	rem := NewPersonalReminders(store, sink, sched, clk, logx.Nop())
	ctx := context.Background()

	at := workingMonday.Add(time.Hour)
	tk := seedPersonalTask(t, store, &at)
	rem.Arm(tk)

	// The task completes between arming and firing.
	if _, err := store.AtomicUpdate(ctx, tk.ID, func(cur *task.Task) error {
		cur.Status = task.StatusCompleted
		return nil
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := sched.fire(t, triggerName(tk.ID)); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("closed task was notified, sends = %d", sink.count())
	}
}

func TestPersonalFireOnMissingTaskIsNoop(t *testing.T) {
	store := storage.NewMemory()
	sink := &fakeSink{}
	sched := newFakeOnce()
	rem := NewPersonalReminders(store, sink, sched, clock.NewFake(workingMonday), logx.Nop())

	at := workingMonday.Add(time.Hour)
	tk := seedPersonalTask(t, store, &at)
	rem.Arm(tk)
	if err := store.Delete(context.Background(), tk.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err := sched.fire(t, triggerName(tk.ID)); err != nil {
		t.Fatalf("fire after delete: %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("sends = %d, want 0", sink.count())
	}
}

func TestPersonalCancel(t *testing.T) {
	store := storage.NewMemory()
	sched := newFakeOnce()
	rem := NewPersonalReminders(store, &fakeSink{}, sched, clock.NewFake(workingMonday), logx.Nop())

	at := workingMonday.Add(time.Hour)
	tk := seedPersonalTask(t, store, &at)
	rem.Arm(tk)

	rem.Cancel(tk.ID)
	if _, ok := sched.jobs[triggerName(tk.ID)]; ok {
		t.Fatalf("trigger still armed after cancel")
	}

	// Cancelling again, with nothing armed, is a no-op.
	rem.Cancel(tk.ID)
}

func TestPersonalRearm(t *testing.T) {
	store := storage.NewMemory()
	sched := newFakeOnce()
	rem := NewPersonalReminders(store, &fakeSink{}, sched, clock.NewFake(workingMonday), logx.Nop())
	ctx := context.Background()

	at := workingMonday.Add(time.Hour)
	pending := seedPersonalTask(t, store, &at)
	seedPersonalTask(t, store, nil)
	withoutTrigger := seedGroupTask(t, store, func(tk *task.Task) { tk.ReminderAt = &at })

	if err := rem.Rearm(ctx); err != nil {
		t.Fatalf("rearm: %v", err)
	}
	if _, ok := sched.jobs[triggerName(pending.ID)]; !ok {
		t.Fatalf("pending personal reminder not re-armed")
	}
	if _, ok := sched.jobs[triggerName(withoutTrigger.ID)]; ok {
		t.Fatalf("group task must not get a personal trigger")
	}
	if len(sched.jobs) != 1 {
		t.Fatalf("armed %d triggers, want 1", len(sched.jobs))
	}
}
