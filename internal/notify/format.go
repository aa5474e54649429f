package notify

import (
	"fmt"
	"strings"
	"time"
)

// renderText builds the Telegram HTML body for a payload.
func renderText(p Payload) string {
	var b strings.Builder

	switch p.Kind {
	case KindOverdue:
		b.WriteString("🚨 <b>Overdue task</b>\n\n")
	case KindPersonal:
		b.WriteString("⏰ <b>Reminder</b>\n\n")
	default:
		b.WriteString("⏰ <b>Task reminder</b>\n\n")
	}

	fmt.Fprintf(&b, "📋 %s\n", escapeHTML(p.Title))
	fmt.Fprintf(&b, "👤 %s\n", mention(p.AssigneeID, "Assignee"))

	switch {
	case p.Due == nil:
		b.WriteString("📅 No deadline\n")
	case p.Kind == KindOverdue:
		fmt.Fprintf(&b, "📅 Was due: %s\n", p.Due.Format("02/01 15:04"))
		fmt.Fprintf(&b, "⏱ Overdue by: %s\n", formatDelta(p.Now.Sub(*p.Due)))
	default:
		fmt.Fprintf(&b, "📅 Deadline: %s\n", p.Due.Format("02/01 15:04"))
		fmt.Fprintf(&b, "⏱ Time left: %s\n", formatDelta(p.Due.Sub(p.Now)))
	}

	switch p.Kind {
	case KindOverdue:
		fmt.Fprintf(&b, "\n%s please review.", mention(p.AssignedBy, "Admin"))
	case KindReminder:
		fmt.Fprintf(&b, "\nReply /done %d when complete.", p.TaskID)
	}
	return b.String()
}

func mention(userID int64, label string) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, label)
}

// formatDelta renders a duration as "1d 2h 5m". Negative durations are shown
// by magnitude.
func formatDelta(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	total := int(d.Minutes())
	days := total / (24 * 60)
	hours := total % (24 * 60) / 60
	minutes := total % 60

	parts := make([]string, 0, 3)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	return strings.Join(parts, " ")
}

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
