package task

import (
	"testing"
	"time"
)

func TestNextTransitionTable(t *testing.T) {
	all := []Status{StatusPending, StatusInProgress, StatusSubmitted, StatusCompleted, StatusCancelled, StatusOverdue}

	allowed := map[Status]map[Action]Status{
		StatusPending: {
			ActionSubmit:      StatusSubmitted,
			ActionReassign:    StatusPending,
			ActionCancel:      StatusCancelled,
			ActionMarkOverdue: StatusOverdue,
		},
		StatusInProgress: {
			ActionSubmit:      StatusSubmitted,
			ActionReassign:    StatusPending,
			ActionCancel:      StatusCancelled,
			ActionMarkOverdue: StatusOverdue,
		},
		StatusSubmitted: {
			ActionVerify:   StatusCompleted,
			ActionReject:   StatusInProgress,
			ActionReassign: StatusPending,
			ActionCancel:   StatusCancelled,
		},
		StatusCompleted: {},
		StatusCancelled: {},
		StatusOverdue: {
			ActionReassign: StatusPending,
		},
	}

	actions := []Action{ActionSubmit, ActionVerify, ActionReject, ActionReassign, ActionCancel, ActionMarkOverdue}
	for _, s := range all {
		for _, a := range actions {
			next, ok := Next(s, a)
			want, legal := allowed[s][a]
			if ok != legal {
				t.Fatalf("Next(%s, %s): ok=%v, want %v", s, a, ok, legal)
			}
			if legal && next != want {
				t.Fatalf("Next(%s, %s) = %s, want %s", s, a, next, want)
			}
			if !legal && next != s {
				t.Fatalf("Next(%s, %s) must leave status unchanged on rejection, got %s", s, a, next)
			}
		}
	}
}

func TestReminderDueBoundary(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	interval := 30
	last := now.Add(-30 * time.Minute)
	tk := &Task{ReminderIntervalMinutes: &interval, LastReminderSent: &last}

	if !tk.ReminderDue(now) {
		t.Fatalf("due at exactly lastSent+interval")
	}
	if tk.ReminderDue(now.Add(-time.Minute)) {
		t.Fatalf("not due one minute before the interval elapses")
	}

	tk.LastReminderSent = nil
	if !tk.ReminderDue(now) {
		t.Fatalf("never-reminded task is immediately due")
	}

	tk.ReminderIntervalMinutes = nil
	if tk.ReminderDue(now) {
		t.Fatalf("no interval means never due")
	}
}

func TestParsePriority(t *testing.T) {
	if ParsePriority("high") != PriorityHigh {
		t.Fatalf("high should parse")
	}
	if ParsePriority("urgent!!") != PriorityMedium {
		t.Fatalf("unknown priority falls back to medium")
	}
}
