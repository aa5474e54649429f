package jobs

import (
	"context"
	"errors"

	"taskbot/internal/clock"
	"taskbot/internal/events"
	"taskbot/internal/notify"
	"taskbot/internal/storage"
	"taskbot/internal/task"
	"taskbot/internal/workhours"
	logx "taskbot/pkg/logx"
)

// errNoLongerEligible aborts an escalation whose task changed between the
// query and the atomic update (e.g. submitted, or already swept by an
// overlapping-cadence run on another subset).
var errNoLongerEligible = errors.New("task no longer eligible")

// OverdueJob escalates group tasks past their deadline: mark Overdue, stop
// recurring reminders for good, notify the group once. The selection filter
// excludes Overdue status, so a task can never be escalated twice.
type OverdueJob struct {
	store storage.Store
	sink  notify.Sink
	cal   *workhours.Calendar
	clock clock.Clock
	bus   events.Bus
	log   logx.Logger
}

func NewOverdue(store storage.Store, sink notify.Sink, cal *workhours.Calendar, clk clock.Clock, bus events.Bus, log logx.Logger) *OverdueJob {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &OverdueJob{store: store, sink: sink, cal: cal, clock: clk, bus: bus, log: log}
}

func (j *OverdueJob) Run(ctx context.Context) error {
	now := j.clock.Now()
	if !j.cal.IsWorkingTime(now) {
		return nil
	}

	candidates, err := j.store.Query(ctx, storage.Filter{
		GroupOnly: true,
		DueBefore: &now,
		Statuses:  []task.Status{task.StatusPending, task.StatusInProgress},
	})
	if err != nil {
		return err
	}

	escalated := 0
	for _, t := range candidates {
		updated, err := j.store.AtomicUpdate(ctx, t.ID, func(cur *task.Task) error {
			next, ok := task.Next(cur.Status, task.ActionMarkOverdue)
			if !ok {
				return errNoLongerEligible
			}
			cur.Status = next
			cur.ReminderIntervalMinutes = nil
			return nil
		})
		if errors.Is(err, errNoLongerEligible) {
			continue
		}
		if err != nil {
			j.log.Warn("overdue transition failed", logx.Int64("task_id", t.ID), logx.Err(err))
			continue
		}

		// The state change is committed first: even if this notification is
		// lost, the task is out of the selection set and stays escalated.
		if err := j.sink.Send(ctx, notify.Target{ChatID: *updated.GroupID}, notify.Payload{
			Kind:       notify.KindOverdue,
			TaskID:     updated.ID,
			Title:      updated.Title,
			AssigneeID: updated.AssigneeID,
			AssignedBy: updated.AssignedBy,
			Due:        updated.DueDate,
			Now:        now,
		}); err != nil {
			j.log.Warn("overdue delivery failed", logx.Int64("task_id", updated.ID), logx.Err(err))
		}

		j.bus.Publish(events.Event{
			Type: events.TypeOverdueDetected,
			Data: events.OverdueDetected{TaskID: updated.ID, Assignee: updated.AssigneeID, AssignedBy: updated.AssignedBy},
		})
		escalated++
	}

	if escalated > 0 {
		j.log.Info("tasks escalated to overdue", logx.Int("count", escalated))
	}
	return nil
}
