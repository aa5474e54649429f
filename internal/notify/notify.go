// Package notify delivers task notifications. The core hands over structured
// payloads; rendering to chat text happens here, at the edge.
package notify

import (
	"context"
	"time"
)

type Kind string

const (
	KindReminder Kind = "reminder"          // recurring group reminder
	KindOverdue  Kind = "overdue"           // one-time escalation
	KindPersonal Kind = "personal_reminder" // one-shot personal reminder
)

// Target is a chat to deliver into: a group for group notifications, the
// user's own chat for personal ones.
type Target struct {
	ChatID int64
}

type Payload struct {
	Kind       Kind
	TaskID     int64
	Title      string
	AssigneeID int64
	AssignedBy int64
	Due        *time.Time

	// Now is the scheduler's tick instant, used for remaining/overdue-by text.
	Now time.Time
}

// Sink delivers one payload. Failures are non-fatal to callers: schedulers
// log and move on, the next tick is the retry.
type Sink interface {
	Send(ctx context.Context, to Target, p Payload) error
}
