package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"reminderd/internal/alert"
	"reminderd/internal/config"
	"reminderd/internal/deadline"
	"reminderd/internal/observability/debugsrv"
	"reminderd/internal/platform"
	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

func mapLogging(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		Journal: c.Journal,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

func mapStorageConfig(c config.StorageConfig) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	path := strings.TrimSpace(c.Path)
	switch driver {
	case "", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		if path == "" {
			return storage.Config{}, errors.New("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, errors.New("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", c.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	}
	return storage.Config{}, fmt.Errorf("%w: %s", storage.ErrUnknownDriver, c.Driver)
}

func timerPolicy(mode string) platform.TimerPolicy {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "exact":
		return platform.TimerExact
	case "inexact":
		return platform.TimerInexact
	}
	return platform.TimerAuto
}

func mapDeadlineConfig(c config.TimerConfig) (deadline.Config, error) {
	maxSleep, err := config.ParseDurationOrDefault("timer.max_sleep", c.MaxSleep, 30*time.Second)
	if err != nil {
		return deadline.Config{}, err
	}
	gran, err := config.ParseDurationOrDefault("timer.granularity", c.Granularity, 30*time.Second)
	if err != nil {
		return deadline.Config{}, err
	}
	return deadline.Config{MaxSleep: maxSleep, Granularity: gran}, nil
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("reminder.timezone: %w", err)
	}
	return loc, nil
}

// reminderSettings maps the reminder section to engine settings, filling
// omitted values from reminder.DefaultConfig.
func reminderSettings(r config.ReminderConfig) (reminder.Config, error) {
	out := reminder.DefaultConfig()
	if r.IntervalMinutes != 0 {
		out.IntervalMinutes = r.IntervalMinutes
	}
	dh := r.DisabledHours
	if dh.Enabled || dh.StartHour != 0 || dh.EndHour != 0 {
		out.DisabledHours = reminder.DisabledHours{Enabled: dh.Enabled, StartHour: dh.StartHour, EndHour: dh.EndHour}
	}
	out.Alert = alertProfile(r)
	if err := out.Validate(); err != nil {
		return reminder.Config{}, err
	}
	return out, nil
}

func alertProfile(r config.ReminderConfig) reminder.AlertProfile {
	p := reminder.DefaultAlertProfile()
	if r.VibrationEnabled != nil {
		p.VibrationEnabled = *r.VibrationEnabled
	}
	if s := strings.TrimSpace(r.SoundRef); s != "" {
		p.SoundRef = s
	}
	return p
}

func mapEngineOptions(cfg *config.Config, defaults reminder.Config, loc *time.Location) (reminder.Options, error) {
	tol, err := config.ParseDurationOrDefault("reconciler.tolerance", cfg.Reconciler.Tolerance, 10*time.Second)
	if err != nil {
		return reminder.Options{}, err
	}
	maxCheck, err := config.ParseDurationOrDefault("reconciler.max_check_interval", cfg.Reconciler.MaxCheckInterval, 30*time.Second)
	if err != nil {
		return reminder.Options{}, err
	}
	hardCap, err := config.ParseDurationOrDefault("reservation.hard_cap", cfg.Reservation.HardCap, 30*time.Second)
	if err != nil {
		return reminder.Options{}, err
	}
	mode := deadline.Exact
	if timerPolicy(cfg.Timer.Mode) == platform.TimerInexact {
		mode = deadline.Inexact
	}
	return reminder.Options{
		Defaults:         defaults,
		TimerMode:        mode,
		Tolerance:        tol,
		MaxCheckInterval: maxCheck,
		ReservationCap:   hardCap,
		Location:         loc,
	}, nil
}

func mapCommandConfig(c config.AlertConfig) (alert.CommandConfig, error) {
	timeout, err := config.ParseDurationOrDefault("alert.command_timeout", c.CommandTimeout, 10*time.Second)
	if err != nil {
		return alert.CommandConfig{}, err
	}
	return alert.CommandConfig{
		SoundCommand:   c.SoundCommand,
		VibrateCommand: c.VibrateCommand,
		Pattern:        c.VibrationPattern,
		Timeout:        timeout,
	}, nil
}

// settingsCommands returns the engine commands that bring the running
// settings in line with a reloaded reminder section.
func settingsCommands(oldR, newR config.ReminderConfig) ([]reminder.Command, error) {
	oldS, err := reminderSettings(oldR)
	if err != nil {
		oldS = reminder.Config{}
	}
	newS, err := reminderSettings(newR)
	if err != nil {
		return nil, err
	}
	var cmds []reminder.Command
	if oldS.IntervalMinutes != newS.IntervalMinutes {
		cmds = append(cmds, reminder.Command{Kind: reminder.CmdUpdateInterval, IntervalMinutes: newS.IntervalMinutes})
	}
	if oldS.DisabledHours != newS.DisabledHours {
		cmds = append(cmds, reminder.Command{Kind: reminder.CmdUpdateDisabledHours, DisabledHours: newS.DisabledHours})
	}
	if oldS.Alert != newS.Alert {
		cmds = append(cmds, reminder.Command{Kind: reminder.CmdUpdateAlertProfile, Alert: newS.Alert})
	}
	return cmds, nil
}

func mapDebugConfig(c config.DebugConfig) (debugsrv.Config, error) {
	readTO, err := config.ParseDurationOrDefault("debug.read_timeout", c.ReadTimeout, 5*time.Second)
	if err != nil {
		return debugsrv.Config{}, err
	}
	writeTO, err := config.ParseDurationField("debug.write_timeout", c.WriteTimeout)
	if err != nil {
		return debugsrv.Config{}, err
	}
	idleTO, err := config.ParseDurationOrDefault("debug.idle_timeout", c.IdleTimeout, 120*time.Second)
	if err != nil {
		return debugsrv.Config{}, err
	}
	out := debugsrv.Config{
		Enabled:              c.Enabled,
		Addr:                 strings.TrimSpace(c.Addr),
		Token:                strings.TrimSpace(c.Token),
		AllowInsecure:        c.AllowInsecure,
		ReadTimeout:          readTO,
		WriteTimeout:         writeTO,
		IdleTimeout:          idleTO,
		MutexProfileFraction: c.MutexProfileFraction,
		BlockProfileRate:     c.BlockProfileRate,
	}
	if out.Enabled {
		if err := debugsrv.CheckBind(out); err != nil {
			return debugsrv.Config{}, err
		}
	}
	return out, nil
}

// validate is the reload validator: everything New would reject.
func validate(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg.Storage); err != nil {
		return err
	}
	if _, err := mapDeadlineConfig(cfg.Timer); err != nil {
		return err
	}
	if _, err := mapCommandConfig(cfg.Alert); err != nil {
		return err
	}
	if _, err := mapDebugConfig(cfg.Debug); err != nil {
		return err
	}
	defaults, err := reminderSettings(cfg.Reminder)
	if err != nil {
		return err
	}
	loc, err := loadLocation(cfg.Reminder.Timezone)
	if err != nil {
		return err
	}
	_, err = mapEngineOptions(cfg, defaults, loc)
	return err
}
