// Package app wires the whole bot together: config, logging, storage, the
// working-hours calendar, Telegram transport, task services, and the
// scheduled jobs. Everything else stays ignorant of this composition.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	tele "gopkg.in/telebot.v4"

	"taskbot/internal/bot"
	"taskbot/internal/clock"
	"taskbot/internal/config"
	"taskbot/internal/events"
	"taskbot/internal/jobs"
	"taskbot/internal/notify"
	"taskbot/internal/scheduler"
	"taskbot/internal/storage"
	"taskbot/internal/task/service"
	"taskbot/internal/workhours"
	logx "taskbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store storage.Store
	cal   *workhours.Calendar
	bus   events.Bus

	tb   *tele.Bot
	bot  *bot.Service
	sink *notify.TelegramSink

	group     *service.GroupService
	personal  *service.PersonalService
	reminders *jobs.PersonalReminders
	sched     *scheduler.Service

	reminderJob  *jobs.ReminderJob
	overdueJob   *jobs.OverdueJob
	retentionJob *jobs.RetentionJob

	bgCancel context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	// The calendar validates timezone, weekdays and periods; a bad schedule
	// is a startup failure, not a silent always-off bot.
	cal, err := workhours.New(workhours.Config{
		Timezone: cfg.WorkingHours.Timezone,
		Days:     cfg.WorkingHours.Days,
		Periods:  mapPeriods(cfg.WorkingHours.Periods),
	})
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("working hours: %w", err)
	}
	clk := clock.NewSystem(cal.Location())

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Database.EffectiveDriver(),
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.EffectiveBusyTimeout(),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Telegram.EffectivePollTimeout()},
	})
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	bus := events.New()
	sink := notify.NewTelegramSink(tb,
		cfg.Telegram.EffectiveNotifyRate(),
		cfg.Telegram.EffectiveNotifyTimeout(),
		log.With(logx.String("comp", "notify")))

	sched := scheduler.New(scheduler.Config{Timezone: cfg.WorkingHours.Timezone},
		log.With(logx.String("comp", "scheduler")))

	reminders := jobs.NewPersonalReminders(store, sink, sched, clk,
		log.With(logx.String("comp", "personal")))

	group := service.NewGroup(store, clk, bus,
		cfg.Tasks.EffectiveMinReminderInterval(),
		log.With(logx.String("comp", "tasks")))
	personal := service.NewPersonal(store, clk, reminders,
		log.With(logx.String("comp", "tasks")))

	botSvc := bot.New(tb, group, personal, clk, cal.Location(),
		cfg.Telegram.AdminUserIDs, log.With(logx.String("comp", "bot")))

	return &App{
		cfgm:      cfgm,
		logs:      logSvc,
		log:       log,
		store:     store,
		cal:       cal,
		bus:       bus,
		tb:        tb,
		bot:       botSvc,
		sink:      sink,
		group:     group,
		personal:  personal,
		reminders: reminders,
		sched:     sched,
		reminderJob: jobs.NewReminder(store, sink, cal, clk, bus,
			log.With(logx.String("comp", "reminder"))),
		overdueJob: jobs.NewOverdue(store, sink, cal, clk, bus,
			log.With(logx.String("comp", "overdue"))),
		retentionJob: jobs.NewRetention(store, clk, bus,
			cfg.Tasks.EffectiveRetentionDays(),
			log.With(logx.String("comp", "retention"))),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	bgCtx, cancel := context.WithCancel(context.Background())
	a.bgCancel = cancel

	a.sched.Start(bgCtx)

	const jobTimeout = 2 * time.Minute
	if err := a.sched.AddInterval("task-reminders", cfg.Tasks.EffectiveReminderTick(), jobTimeout, a.reminderJob.Run); err != nil {
		return err
	}
	if err := a.sched.AddInterval("overdue-sweep", cfg.Tasks.EffectiveOverdueTick(), jobTimeout, a.overdueJob.Run); err != nil {
		return err
	}
	if err := a.sched.AddDaily("retention-sweep", cfg.Tasks.EffectiveRetentionAt(), jobTimeout, a.retentionJob.Run); err != nil {
		return err
	}

	if err := a.reminders.Rearm(ctx); err != nil {
		a.log.Warn("personal reminder re-arm failed", logx.Err(err))
	}

	a.bot.Register()
	a.bot.Start()

	go a.watchConfig(bgCtx)
	go a.auditEvents(bgCtx)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify: ready")
	}

	a.log.Info("taskbot started",
		logx.String("tz", a.cal.Location().String()),
		logx.Duration("reminder_tick", cfg.Tasks.EffectiveReminderTick()),
		logx.Duration("overdue_tick", cfg.Tasks.EffectiveOverdueTick()))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.bgCancel != nil {
		a.bgCancel()
	}
	a.bot.Stop()
	a.sched.Stop(ctx)
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("taskbot stopped")
	return a.logs.Close()
}

// watchConfig follows the config file and applies the reloadable subset.
// Only logging settings take effect live; schedule and transport changes
// need a restart.
func (a *App) watchConfig(ctx context.Context) {
	updates := a.cfgm.Subscribe(2)
	defer a.cfgm.Unsubscribe(updates)

	go func() {
		if err := a.cfgm.Watch(ctx); err != nil {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

func mapPeriods(in []config.PeriodConfig) []workhours.PeriodConfig {
	out := make([]workhours.PeriodConfig, len(in))
	for i, p := range in {
		out[i] = workhours.PeriodConfig{Start: p.Start, End: p.End}
	}
	return out
}
