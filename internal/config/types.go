// Package config loads the bot configuration from YAML or JSON, validates it,
// and watches the file for changes. Unknown keys are rejected so typos fail at
// load time instead of silently falling back to defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Database     DatabaseConfig     `json:"database"`
	Logging      LoggingConfig      `json:"logging"`
	WorkingHours WorkingHoursConfig `json:"working_hours"`
	Tasks        TasksConfig        `json:"tasks"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminUserIDs may create, verify, reject, reassign and cancel group
	// tasks. Assignees only submit their own.
	AdminUserIDs []int64 `json:"admin_user_ids"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// NotifyRatePerSec caps outbound notification sends. Default 3.
	NotifyRatePerSec int `json:"notify_rate_per_sec,omitempty"`
	// NotifyTimeout is a Go duration string. Default "10s".
	NotifyTimeout string `json:"notify_timeout,omitempty"`
}

type DatabaseConfig struct {
	Driver      string `json:"driver"`                 // "sqlite" (default) or "memory"
	Path        string `json:"path,omitempty"`         // sqlite file path
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// WorkingHoursConfig mirrors the calendar: reminders and the overdue sweep
// only act inside these windows.
type WorkingHoursConfig struct {
	Timezone string         `json:"timezone"`
	Days     []string       `json:"days"`
	Periods  []PeriodConfig `json:"periods"`
}

type PeriodConfig struct {
	Start string `json:"start"` // HH:MM
	End   string `json:"end"`   // HH:MM
}

type TasksConfig struct {
	// MinReminderIntervalMinutes is the smallest accepted recurring reminder
	// interval. Default 15.
	MinReminderIntervalMinutes int `json:"min_reminder_interval_minutes,omitempty"`

	// CompletedRetentionDays is how long verified tasks are kept. Default 30.
	CompletedRetentionDays int `json:"completed_retention_days,omitempty"`

	// Ticks are Go duration strings. Defaults: reminders every 5m, overdue
	// sweep every 15m.
	ReminderTick string `json:"reminder_tick,omitempty"`
	OverdueTick  string `json:"overdue_tick,omitempty"`

	// RetentionAt is the daily HH:MM for the retention sweep. Default "00:00".
	RetentionAt string `json:"retention_at,omitempty"`
}

// Validate checks everything that must hold before the process can start.
// Calendar details (weekday names, period bounds) are validated by the
// calendar itself at wiring time.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if len(c.Telegram.AdminUserIDs) == 0 {
		return fmt.Errorf("telegram.admin_user_ids must not be empty")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("telegram.notify_timeout", c.Telegram.NotifyTimeout); err != nil {
		return err
	}
	if c.Telegram.NotifyRatePerSec < 0 {
		return fmt.Errorf("telegram.notify_rate_per_sec must be >= 0")
	}

	switch strings.TrimSpace(c.Database.Driver) {
	case "", "sqlite":
		if strings.TrimSpace(c.Database.Path) == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	if _, err := ParseDurationField("database.busy_timeout", c.Database.BusyTimeout); err != nil {
		return err
	}

	if strings.TrimSpace(c.WorkingHours.Timezone) == "" {
		return fmt.Errorf("working_hours.timezone is required")
	}
	if len(c.WorkingHours.Days) == 0 {
		return fmt.Errorf("working_hours.days must not be empty")
	}
	if len(c.WorkingHours.Periods) == 0 {
		return fmt.Errorf("working_hours.periods must not be empty")
	}

	if c.Tasks.MinReminderIntervalMinutes < 0 {
		return fmt.Errorf("tasks.min_reminder_interval_minutes must be >= 0")
	}
	if c.Tasks.CompletedRetentionDays < 0 {
		return fmt.Errorf("tasks.completed_retention_days must be >= 0")
	}
	if _, err := ParseDurationField("tasks.reminder_tick", c.Tasks.ReminderTick); err != nil {
		return err
	}
	if _, err := ParseDurationField("tasks.overdue_tick", c.Tasks.OverdueTick); err != nil {
		return err
	}
	return nil
}

// Effective accessors apply defaults for omitted fields.

func (t TelegramConfig) EffectivePollTimeout() time.Duration {
	d, err := ParseDurationOrDefault("telegram.poll_timeout", t.PollTimeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

func (t TelegramConfig) EffectiveNotifyRate() int {
	if t.NotifyRatePerSec <= 0 {
		return 3
	}
	return t.NotifyRatePerSec
}

func (t TelegramConfig) EffectiveNotifyTimeout() time.Duration {
	d, err := ParseDurationOrDefault("telegram.notify_timeout", t.NotifyTimeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

func (d DatabaseConfig) EffectiveDriver() string {
	drv := strings.TrimSpace(d.Driver)
	if drv == "" {
		return "sqlite"
	}
	return drv
}

func (d DatabaseConfig) EffectiveBusyTimeout() time.Duration {
	bt, err := ParseDurationOrDefault("database.busy_timeout", d.BusyTimeout, 5*time.Second)
	if err != nil {
		return 5 * time.Second
	}
	return bt
}

func (t TasksConfig) EffectiveMinReminderInterval() int {
	if t.MinReminderIntervalMinutes <= 0 {
		return 15
	}
	return t.MinReminderIntervalMinutes
}

func (t TasksConfig) EffectiveRetentionDays() int {
	if t.CompletedRetentionDays <= 0 {
		return 30
	}
	return t.CompletedRetentionDays
}

func (t TasksConfig) EffectiveReminderTick() time.Duration {
	d, err := ParseDurationOrDefault("tasks.reminder_tick", t.ReminderTick, 5*time.Minute)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

func (t TasksConfig) EffectiveOverdueTick() time.Duration {
	d, err := ParseDurationOrDefault("tasks.overdue_tick", t.OverdueTick, 15*time.Minute)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

func (t TasksConfig) EffectiveRetentionAt() string {
	s := strings.TrimSpace(t.RetentionAt)
	if s == "" {
		return "00:00"
	}
	return s
}
