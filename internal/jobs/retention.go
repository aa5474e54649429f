package jobs

import (
	"context"

	"taskbot/internal/clock"
	"taskbot/internal/events"
	"taskbot/internal/storage"
	"taskbot/internal/task"
	logx "taskbot/pkg/logx"
)

// RetentionJob permanently deletes completed tasks once the retention window
// after verification has elapsed. Runs daily; not gated by working hours.
// There is no soft delete: completed-task detail has no operational use past
// the window.
type RetentionJob struct {
	store storage.Store
	clock clock.Clock
	bus   events.Bus
	log   logx.Logger

	retentionDays int
}

func NewRetention(store storage.Store, clk clock.Clock, bus events.Bus, retentionDays int, log logx.Logger) *RetentionJob {
	if log.IsZero() {
		log = logx.Nop()
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &RetentionJob{store: store, clock: clk, bus: bus, log: log, retentionDays: retentionDays}
}

func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := j.clock.Now().AddDate(0, 0, -j.retentionDays)

	old, err := j.store.Query(ctx, storage.Filter{
		Statuses:       []task.Status{task.StatusCompleted},
		VerifiedBefore: &cutoff,
	})
	if err != nil {
		return err
	}

	deleted := 0
	for _, t := range old {
		if err := j.store.Delete(ctx, t.ID); err != nil {
			j.log.Warn("retention delete failed", logx.Int64("task_id", t.ID), logx.Err(err))
			continue
		}
		j.bus.Publish(events.Event{
			Type: events.TypeRetentionDeleted,
			Data: events.RetentionDeleted{TaskID: t.ID},
		})
		deleted++
	}

	if deleted > 0 {
		j.log.Info("old completed tasks purged", logx.Int("count", deleted))
	}
	return nil
}
