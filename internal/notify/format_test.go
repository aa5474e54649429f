package notify

import (
	"strings"
	"testing"
	"time"
)

func TestFormatDelta(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{90 * time.Minute, "1h 30m"},
		{25*time.Hour + 5*time.Minute, "1d 1h 5m"},
		{30 * time.Second, "0m"},
		{-2 * time.Hour, "2h"},
	}
	for _, tc := range cases {
		if got := formatDelta(tc.in); got != tc.want {
			t.Fatalf("formatDelta(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderTextOverdue(t *testing.T) {
	due := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	text := renderText(Payload{
		Kind:       KindOverdue,
		TaskID:     7,
		Title:      "ship <v2>",
		AssigneeID: 100,
		AssignedBy: 1,
		Due:        &due,
		Now:        due.Add(time.Hour),
	})

	for _, want := range []string{
		"Overdue task",
		"ship &lt;v2&gt;",
		"tg://user?id=100",
		"tg://user?id=1",
		"Overdue by: 1h",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("overdue text missing %q:\n%s", want, text)
		}
	}
}

func TestRenderTextReminderMentionsDoneCommand(t *testing.T) {
	text := renderText(Payload{Kind: KindReminder, TaskID: 12, Title: "x", AssigneeID: 5})
	if !strings.Contains(text, "/done 12") {
		t.Fatalf("reminder should point at /done: %s", text)
	}
	if !strings.Contains(text, "No deadline") {
		t.Fatalf("missing no-deadline line: %s", text)
	}
}
