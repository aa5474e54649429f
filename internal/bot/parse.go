package bot

import (
	"strconv"
	"strings"
	"time"

	"taskbot/internal/task"
)

// command argument grammar, shared by the handlers:
//
//	/task [user_id] <title> [| due YYYY-MM-DD HH:MM] [| every N]
//	/remindme <YYYY-MM-DD HH:MM or +duration> <title>
//
// The assignee comes from a reply when present, otherwise from a leading
// numeric id. Dates are interpreted in the working-hours timezone.

type taskArgs struct {
	AssigneeID int64 // 0 when it must come from a reply
	Title      string
	Due        *time.Time
	EveryMin   *int
}

func parseTaskArgs(payload string, loc *time.Location, now time.Time) (taskArgs, error) {
	var out taskArgs

	parts := strings.Split(payload, "|")
	head := strings.TrimSpace(parts[0])
	if head == "" {
		return out, task.NewValidationError("title", "usage: /task [user_id] <title> [| due YYYY-MM-DD HH:MM] [| every N]")
	}

	// Optional leading numeric assignee id.
	fields := strings.Fields(head)
	if id, err := strconv.ParseInt(fields[0], 10, 64); err == nil && len(fields) > 1 {
		out.AssigneeID = id
		fields = fields[1:]
	}
	out.Title = strings.Join(fields, " ")

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "due "):
			at, err := parseWhen(strings.TrimSpace(strings.TrimPrefix(part, "due ")), loc, now)
			if err != nil {
				return out, err
			}
			out.Due = &at
		case strings.HasPrefix(part, "every "):
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(part, "every ")))
			if err != nil || n <= 0 {
				return out, task.NewValidationError("reminder_interval", "every wants a positive number of minutes")
			}
			out.EveryMin = &n
		default:
			return out, task.NewValidationError("args", "unknown option "+strconv.Quote(part))
		}
	}
	return out, nil
}

// parseWhen accepts an absolute "YYYY-MM-DD HH:MM" in loc or a relative
// "+duration" (Go syntax, e.g. +45m, +2h30m) from now.
func parseWhen(s string, loc *time.Location, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "+") {
		d, err := time.ParseDuration(strings.TrimPrefix(s, "+"))
		if err != nil || d <= 0 {
			return time.Time{}, task.NewValidationError("when", "bad offset, try +45m or +2h")
		}
		return now.Add(d), nil
	}
	at, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		return time.Time{}, task.NewValidationError("when", "bad time, use YYYY-MM-DD HH:MM or +duration")
	}
	return at, nil
}

// parseRemindMe splits "<when> <title>": when is either one token (+offset)
// or two ("YYYY-MM-DD HH:MM").
func parseRemindMe(payload string, loc *time.Location, now time.Time) (time.Time, string, error) {
	fields := strings.Fields(payload)
	if len(fields) < 2 {
		return time.Time{}, "", task.NewValidationError("args", "usage: /remindme <YYYY-MM-DD HH:MM or +offset> <title>")
	}

	if strings.HasPrefix(fields[0], "+") {
		at, err := parseWhen(fields[0], loc, now)
		if err != nil {
			return time.Time{}, "", err
		}
		return at, strings.Join(fields[1:], " "), nil
	}

	if len(fields) < 3 {
		return time.Time{}, "", task.NewValidationError("args", "usage: /remindme <YYYY-MM-DD HH:MM or +offset> <title>")
	}
	at, err := parseWhen(fields[0]+" "+fields[1], loc, now)
	if err != nil {
		return time.Time{}, "", err
	}
	return at, strings.Join(fields[2:], " "), nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, task.NewValidationError("task_id", "task id must be a positive number")
	}
	return id, nil
}
