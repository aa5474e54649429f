package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskbot/internal/clock"
	"taskbot/internal/notify"
	"taskbot/internal/scheduler"
	"taskbot/internal/storage"
	"taskbot/internal/task"
	logx "taskbot/pkg/logx"
)

const personalSendTimeout = 30 * time.Second

// onceScheduler is the slice of the trigger scheduler the personal reminder
// driver needs: keyed one-shot triggers with replace and no-op removal.
type onceScheduler interface {
	AddOnce(name string, at time.Time, timeout time.Duration, job scheduler.Job) error
	Remove(name string) bool
}

// PersonalReminders manages one-shot reminder triggers, one per task. The
// trigger key embeds the task id, so re-arming replaces a pending trigger
// instead of stacking a duplicate, and cancelling an absent one is a no-op.
type PersonalReminders struct {
	store storage.Store
	sink  notify.Sink
	sched onceScheduler
	clock clock.Clock
	log   logx.Logger
}

func NewPersonalReminders(store storage.Store, sink notify.Sink, sched onceScheduler, clk clock.Clock, log logx.Logger) *PersonalReminders {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &PersonalReminders{store: store, sink: sink, sched: sched, clock: clk, log: log}
}

func triggerName(taskID int64) string {
	return fmt.Sprintf("personal-reminder:%d", taskID)
}

func (r *PersonalReminders) Arm(t *task.Task) {
	if t.ReminderAt == nil {
		return
	}
	id := t.ID
	err := r.sched.AddOnce(triggerName(id), *t.ReminderAt, personalSendTimeout, func(ctx context.Context) error {
		return r.fire(ctx, id)
	})
	if err != nil {
		r.log.Warn("failed to arm personal reminder", logx.Int64("task_id", id), logx.Err(err))
	}
}

func (r *PersonalReminders) Cancel(taskID int64) {
	r.sched.Remove(triggerName(taskID))
}

// Rearm restores pending triggers from storage after a restart. Reminders
// whose time passed while the process was down fire immediately (AddOnce
// clamps past instants to "now").
func (r *PersonalReminders) Rearm(ctx context.Context) error {
	pending, err := r.store.Query(ctx, storage.Filter{
		WithReminderAt: true,
		Statuses:       []task.Status{task.StatusPending, task.StatusInProgress},
	})
	if err != nil {
		return err
	}
	for _, t := range pending {
		if t.IsGroup() {
			continue
		}
		r.Arm(t)
	}
	if len(pending) > 0 {
		r.log.Info("personal reminders re-armed", logx.Int("count", len(pending)))
	}
	return nil
}

// fire consumes the trigger: the stored reminder time is cleared first, then
// the notification goes out. A lost delivery is not retried; the trigger is
// one-shot by contract.
func (r *PersonalReminders) fire(ctx context.Context, taskID int64) error {
	updated, err := r.store.AtomicUpdate(ctx, taskID, func(cur *task.Task) error {
		if cur.ReminderAt == nil {
			return errNoLongerEligible
		}
		if cur.Status == task.StatusCompleted || cur.Status == task.StatusCancelled {
			return errNoLongerEligible
		}
		cur.ReminderAt = nil
		return nil
	})
	if errors.Is(err, errNoLongerEligible) {
		return nil
	}
	var nf *task.NotFoundError
	if errors.As(err, &nf) {
		r.log.Warn("personal reminder fired for missing task", logx.Int64("task_id", taskID))
		return nil
	}
	if err != nil {
		return err
	}

	return r.sink.Send(ctx, notify.Target{ChatID: updated.AssigneeID}, notify.Payload{
		Kind:       notify.KindPersonal,
		TaskID:     updated.ID,
		Title:      updated.Title,
		AssigneeID: updated.AssigneeID,
		Due:        updated.DueDate,
		Now:        r.clock.Now(),
	})
}
