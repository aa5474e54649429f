// Package jobs holds the periodic drivers: recurring group reminders, the
// overdue sweep, the retention sweep and one-shot personal reminders. Each
// driver re-derives eligibility from stored state on every tick, so there is
// nothing to cancel when a task moves on; it simply stops matching.
package jobs

import (
	"context"

	"github.com/google/uuid"

	"taskbot/internal/clock"
	"taskbot/internal/events"
	"taskbot/internal/notify"
	"taskbot/internal/storage"
	"taskbot/internal/task"
	"taskbot/internal/workhours"
	logx "taskbot/pkg/logx"
)

// ReminderJob sends recurring reminders for active group tasks during
// working hours. Runs every few minutes (see config reminder_tick).
type ReminderJob struct {
	store storage.Store
	sink  notify.Sink
	cal   *workhours.Calendar
	clock clock.Clock
	bus   events.Bus
	log   logx.Logger
}

func NewReminder(store storage.Store, sink notify.Sink, cal *workhours.Calendar, clk clock.Clock, bus events.Bus, log logx.Logger) *ReminderJob {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ReminderJob{store: store, sink: sink, cal: cal, clock: clk, bus: bus, log: log}
}

func (j *ReminderJob) Run(ctx context.Context) error {
	now := j.clock.Now()
	if !j.cal.IsWorkingTime(now) {
		// Outside working hours the tick is skipped entirely, not deferred.
		return nil
	}
	log := j.log.With(logx.String("run_id", uuid.NewString()))

	candidates, err := j.store.Query(ctx, storage.Filter{
		GroupOnly:            true,
		WithReminderInterval: true,
		Statuses:             []task.Status{task.StatusPending, task.StatusInProgress},
		DueAfterOrUnset:      &now,
	})
	if err != nil {
		return err
	}

	nowUTC := now.UTC()
	sent := 0
	for _, t := range candidates {
		if !t.ReminderDue(now) {
			continue
		}

		// Delivery failures are logged and do not stop the batch; the
		// reminder timestamp advances either way so a flaky chat doesn't
		// turn every tick into a send storm.
		if err := j.sink.Send(ctx, notify.Target{ChatID: *t.GroupID}, notify.Payload{
			Kind:       notify.KindReminder,
			TaskID:     t.ID,
			Title:      t.Title,
			AssigneeID: t.AssigneeID,
			AssignedBy: t.AssignedBy,
			Due:        t.DueDate,
			Now:        now,
		}); err != nil {
			log.Warn("reminder delivery failed", logx.Int64("task_id", t.ID), logx.Err(err))
		}

		if _, err := j.store.AtomicUpdate(ctx, t.ID, func(cur *task.Task) error {
			cur.LastReminderSent = &nowUTC
			return nil
		}); err != nil {
			log.Warn("reminder timestamp update failed", logx.Int64("task_id", t.ID), logx.Err(err))
			continue
		}

		j.bus.Publish(events.Event{
			Type: events.TypeReminderDue,
			Data: events.ReminderDue{TaskID: t.ID, Assignee: t.AssigneeID},
		})
		sent++
	}

	if sent > 0 {
		log.Info("group reminders sent", logx.Int("count", sent))
	}
	return nil
}
