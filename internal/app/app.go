package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reminderd/internal/alert"
	"reminderd/internal/config"
	"reminderd/internal/control"
	"reminderd/internal/deadline"
	"reminderd/internal/eventbus"
	"reminderd/internal/observability/debugsrv"
	"reminderd/internal/platform"
	"reminderd/internal/reminder"
	"reminderd/internal/runtime/supervisor"
	"reminderd/internal/storage"
	kit "reminderd/internal/transport"
	telegram "reminderd/internal/transport/telegram/adapter"
	logx "reminderd/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	timer     *deadline.Service
	perms     *platform.Permissions
	inhibitor *platform.Inhibitor
	sd        *platform.Notifier
	engine    *reminder.Engine

	debug   *debugsrv.Server // nil when disabled
	adapter kit.Adapter      // nil when telegram is disabled
	ctl     *control.Controller
	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg.Logging))
	log = log.With(logx.String("comp", "app"))

	defaults, err := reminderSettings(cfg.Reminder)
	if err != nil {
		return nil, err
	}
	loc, err := loadLocation(cfg.Reminder.Timezone)
	if err != nil {
		return nil, err
	}
	opts, err := mapEngineOptions(cfg, defaults, loc)
	if err != nil {
		return nil, err
	}

	sc, err := mapStorageConfig(cfg.Storage)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     eventbus.New(),
		store:   store,
		sd:      platform.NewNotifier(cfg.Systemd.Notify, log),
		updates: make(chan kit.Update, 64),
	}
	if err := a.build(cfg, opts); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, opts reminder.Options) error {
	a.perms = platform.NewPermissions(timerPolicy(cfg.Timer.Mode), a.log)

	dc, err := mapDeadlineConfig(cfg.Timer)
	if err != nil {
		return err
	}
	a.timer = deadline.New(dc, a.perms, a.log.With(logx.String("comp", "deadline")))

	var reservations reminder.ReservationProvider = platform.NopReservations{}
	if cfg.Reservation.Enabled {
		a.inhibitor = platform.NewInhibitor("reminderd", cfg.Reservation.Block, a.log)
		reservations = a.inhibitor
	}

	sinks := alert.Multi{}
	if cfg.Alert.Log {
		sinks = append(sinks, alert.NewLogSink(a.log, opts.Location))
	}
	if len(cfg.Alert.SoundCommand) > 0 || len(cfg.Alert.VibrateCommand) > 0 {
		cc, err := mapCommandConfig(cfg.Alert)
		if err != nil {
			return err
		}
		sinks = append(sinks, alert.NewCommandSink(cc, a.log))
	}
	if cfg.Telegram.Enabled {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return err
		}
		ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, a.log.With(logx.String("comp", "telegram")))
		if err != nil {
			return err
		}
		a.adapter = ad
		if cfg.Telegram.ChatID != 0 {
			ts, err := alert.NewTelegramSink(alert.TelegramConfig{
				Target:     kit.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID},
				RatePerSec: cfg.Telegram.RatePerSec,
				Location:   opts.Location,
			}, ad, a.store, a.log)
			if err != nil {
				return err
			}
			sinks = append(sinks, ts)
		}
	}

	eng, err := reminder.New(reminder.Deps{
		Store:        a.store,
		Timer:        a.timer,
		Sink:         sinks,
		Permissions:  a.perms,
		Reservations: reservations,
		Ticks:        reminder.NewCronTicks(opts.Location),
		Bus:          a.bus,
	}, opts, a.log)
	if err != nil {
		return err
	}
	a.engine = eng

	dbg, err := mapDebugConfig(cfg.Debug)
	if err != nil {
		return err
	}
	if dbg.Enabled {
		a.debug = debugsrv.New(dbg, func() any { return eng.Status() }, a.log.With(logx.String("comp", "debug")))
	}

	if a.adapter != nil {
		cmdTimeout, err := config.ParseDurationOrDefault("telegram.command_timeout", cfg.Telegram.CommandTimeout, 45*time.Second)
		if err != nil {
			return err
		}
		a.ctl = control.New(eng, a.adapter, cfg.Telegram.OwnerUserIDs, cmdTimeout, a.log)
	}
	return nil
}

// Engine exposes the reminder engine (tests, embedding).
func (a *App) Engine() *reminder.Engine { return a.engine }

// Done is closed when the app supervisor context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return validate(c) })

	if a.adapter != nil {
		if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
			return err
		}
		a.sup.Go("control.dispatch", func(c context.Context) error {
			return a.ctl.Run(c, a.updates)
		})
	}

	reason, err := a.engine.Startup(a.sup.Context(), platform.BootID())
	if err != nil {
		return fmt.Errorf("reminder startup: %w", err)
	}
	st := a.engine.Status()
	a.log.Info("reminder recovered",
		logx.String("reason", reason.String()),
		logx.String("lifecycle", st.Lifecycle.String()),
		logx.Bool("can_schedule_exact", st.CanScheduleExact),
	)

	if cfg.Systemd.WatchSleep {
		a.sup.GoRestart("sleep.watch", func(c context.Context) error {
			return platform.WatchSleep(c, a.log.With(logx.String("comp", "sleep")), func(sleeping bool) {
				if !sleeping {
					a.engine.Reconcile()
				}
			})
		}, supervisor.WithRestartBackoff(time.Second, time.Minute))
	}
	if a.debug != nil {
		a.sup.GoRestart("debug.serve", a.debug.Run, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}
	if cfg.Systemd.Watchdog {
		a.sup.Go("systemd.watchdog", a.sd.Watchdog)
	}

	events, unsub := a.bus.Subscribe(32)
	a.sup.Go0("eventbus.watch", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.onEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.sd.Reloading()
				a.applyConfig(c, last, next)
				last = next
				a.sd.Ready()
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sd.Ready()
	a.sd.Status(a.engine.Status().Lifecycle.String())
	a.log.Info("app started")
	return nil
}

func (a *App) onEvent(e eventbus.Event) {
	switch e.Type {
	case reminder.EventState:
		if st, ok := e.Data.(reminder.Status); ok {
			line := st.Lifecycle.String()
			if st.Lifecycle == reminder.Active && !st.NextDeadline.IsZero() {
				line += ", next " + st.NextDeadline.In(a.engine.Location()).Format("15:04")
			}
			if st.Degraded {
				line += " (degraded)"
			}
			a.sd.Status(line)
		}
	case reminder.EventDegraded:
		a.log.Warn("exact scheduling degraded", logx.Any("degraded", e.Data))
	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

// applyConfig applies what can change live and warns about the rest.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogging(newCfg.Logging))
	if a.ctl != nil {
		a.ctl.SetOwners(newCfg.Telegram.OwnerUserIDs)
	}

	cmds, err := settingsCommands(oldCfg.Reminder, newCfg.Reminder)
	if err != nil {
		a.log.Warn("invalid reminder config; keeping previous", logx.Err(err))
	}
	for _, cmd := range cmds {
		if err := a.engine.Apply(ctx, cmd); err != nil {
			a.log.Warn("reminder setting not applied", logx.String("cmd", cmd.Kind.String()), logx.Err(err))
		}
	}

	var restart []string
	for _, s := range sections {
		switch s {
		case "storage", "timer", "reconciler", "reservation", "alert", "systemd", "debug":
			restart = append(restart, s)
		case "telegram":
			if oldCfg.Telegram.Enabled != newCfg.Telegram.Enabled || oldCfg.Telegram.Token != newCfg.Telegram.Token ||
				oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID || oldCfg.Telegram.ThreadID != newCfg.Telegram.ThreadID {
				restart = append(restart, s)
			}
		}
	}
	if oldCfg.Reminder.Timezone != newCfg.Reminder.Timezone {
		restart = append(restart, "reminder.timezone")
	}
	if len(restart) > 0 {
		a.log.Warn("restart required for some config changes", logx.String("sections", strings.Join(restart, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()
	a.sup.Cancel()

	// Each step is bounded so one component cannot stall shutdown.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 3*time.Second, func(c context.Context) error {
		if a.adapter == nil {
			return nil
		}
		return a.adapter.Stop(c)
	})
	step("engine", 2*time.Second, a.engine.Close)
	step("deadline", time.Second, func(context.Context) error { a.timer.Stop(); return nil })
	step("inhibitor", time.Second, func(context.Context) error {
		if a.inhibitor != nil {
			a.inhibitor.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
