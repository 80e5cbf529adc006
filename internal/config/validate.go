package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Validate checks field syntax and ranges. Cross-component checks (e.g.
// whether the telegram token works) happen when the app wires components.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required when storage.driver=%s", cfg.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	switch strings.ToLower(strings.TrimSpace(cfg.Timer.Mode)) {
	case "", "auto", "exact", "inexact":
	default:
		errs = append(errs, fmt.Errorf("timer.mode: want auto, exact or inexact, got %q", cfg.Timer.Mode))
	}
	dur("timer.max_sleep", cfg.Timer.MaxSleep)
	dur("timer.granularity", cfg.Timer.Granularity)
	dur("reconciler.tolerance", cfg.Reconciler.Tolerance)
	dur("reconciler.max_check_interval", cfg.Reconciler.MaxCheckInterval)
	dur("reservation.hard_cap", cfg.Reservation.HardCap)
	dur("alert.command_timeout", cfg.Alert.CommandTimeout)
	for _, v := range cfg.Alert.VibrationPattern {
		if v < 0 {
			errs = append(errs, errors.New("alert.vibration_pattern: values must be >= 0"))
			break
		}
	}

	if cfg.Telegram.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			errs = append(errs, errors.New("telegram.token is required when telegram.enabled"))
		}
		if len(cfg.Telegram.OwnerUserIDs) == 0 {
			errs = append(errs, errors.New("telegram.owner_user_ids is required when telegram.enabled"))
		}
	}
	if cfg.Telegram.RatePerSec < 0 {
		errs = append(errs, errors.New("telegram.rate_per_sec must be >= 0"))
	}
	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	dur("telegram.command_timeout", cfg.Telegram.CommandTimeout)

	dur("debug.read_timeout", cfg.Debug.ReadTimeout)
	dur("debug.write_timeout", cfg.Debug.WriteTimeout)
	dur("debug.idle_timeout", cfg.Debug.IdleTimeout)
	if cfg.Debug.MutexProfileFraction < 0 || cfg.Debug.BlockProfileRate < 0 {
		errs = append(errs, errors.New("debug: profile rates must be >= 0"))
	}
	if a := strings.TrimSpace(cfg.Debug.Addr); a != "" {
		if _, _, err := net.SplitHostPort(a); err != nil {
			errs = append(errs, fmt.Errorf("debug.addr: invalid %q (expected host:port): %w", a, err))
		}
	}

	r := cfg.Reminder
	if r.IntervalMinutes != 0 && (r.IntervalMinutes < 1 || r.IntervalMinutes > 1440) {
		errs = append(errs, fmt.Errorf("reminder.interval_minutes: want 1..1440, got %d", r.IntervalMinutes))
	}
	if h := r.DisabledHours; h.StartHour < 0 || h.StartHour > 23 || h.EndHour < 0 || h.EndHour > 23 {
		errs = append(errs, fmt.Errorf("reminder.disabled_hours: hours must be 0..23, got %d..%d", h.StartHour, h.EndHour))
	}
	if tz := strings.TrimSpace(r.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("reminder.timezone: invalid %q: %w", tz, err))
		}
	}
	return errors.Join(errs...)
}
