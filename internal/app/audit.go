package app

import (
	"context"

	"taskbot/internal/events"
	logx "taskbot/pkg/logx"
)

// auditEvents writes one structured log line per lifecycle event. The bus is
// non-blocking, so a stalled log sink can drop audit lines but never a task
// operation.
func (a *App) auditEvents(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(64)
	defer unsub()

	log := a.log.With(logx.String("comp", "audit"))
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			switch data := e.Data.(type) {
			case events.ReminderDue:
				log.Info("reminder sent",
					logx.Int64("task_id", data.TaskID),
					logx.Int64("assignee", data.Assignee))
			case events.OverdueDetected:
				log.Warn("task overdue",
					logx.Int64("task_id", data.TaskID),
					logx.Int64("assignee", data.Assignee),
					logx.Int64("assigned_by", data.AssignedBy))
			case events.RetentionDeleted:
				log.Info("task purged", logx.Int64("task_id", data.TaskID))
			case events.TransitionRejected:
				log.Info("transition rejected",
					logx.Int64("task_id", data.TaskID),
					logx.String("action", data.Action),
					logx.String("reason", data.Reason))
			default:
				log.Debug("event", logx.String("type", e.Type))
			}
		}
	}
}
