package config

import (
	"slices"
	"strings"

	logx "reminderd/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe attrs for
// logging. The telegram token is only reported as changed or not.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.journal", newCfg.Logging.Journal),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if oldCfg.Timer != newCfg.Timer {
		changed = append(changed, "timer")
		attrs = append(attrs,
			logx.String("timer.mode", newCfg.Timer.Mode),
			logx.String("timer.max_sleep", newCfg.Timer.MaxSleep),
			logx.String("timer.granularity", newCfg.Timer.Granularity),
		)
	}

	if oldCfg.Reconciler != newCfg.Reconciler {
		changed = append(changed, "reconciler")
		attrs = append(attrs,
			logx.String("reconciler.tolerance", newCfg.Reconciler.Tolerance),
			logx.String("reconciler.max_check_interval", newCfg.Reconciler.MaxCheckInterval),
		)
	}

	if oldCfg.Reservation != newCfg.Reservation {
		changed = append(changed, "reservation")
		attrs = append(attrs,
			logx.Bool("reservation.enabled", newCfg.Reservation.Enabled),
			logx.String("reservation.hard_cap", newCfg.Reservation.HardCap),
			logx.Bool("reservation.block", newCfg.Reservation.Block),
		)
	}

	oa, na := oldCfg.Alert, newCfg.Alert
	if oa.Log != na.Log || oa.CommandTimeout != na.CommandTimeout ||
		!slices.Equal(oa.SoundCommand, na.SoundCommand) ||
		!slices.Equal(oa.VibrateCommand, na.VibrateCommand) ||
		!slices.Equal(oa.VibrationPattern, na.VibrationPattern) {
		changed = append(changed, "alert")
		attrs = append(attrs,
			logx.Bool("alert.log", na.Log),
			logx.Bool("alert.sound_command_set", len(na.SoundCommand) > 0),
			logx.Bool("alert.vibrate_command_set", len(na.VibrateCommand) > 0),
		)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Enabled != nt.Enabled || ot.Token != nt.Token || ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID ||
		ot.PollTimeout != nt.PollTimeout || ot.RatePerSec != nt.RatePerSec || ot.CommandTimeout != nt.CommandTimeout ||
		!slices.Equal(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", nt.Enabled),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.chat_changed", ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs,
			logx.Bool("systemd.notify", newCfg.Systemd.Notify),
			logx.Bool("systemd.watchdog", newCfg.Systemd.Watchdog),
			logx.Bool("systemd.watch_sleep", newCfg.Systemd.WatchSleep),
		)
	}

	if oldCfg.Debug != newCfg.Debug {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", newCfg.Debug.Token != ""),
		)
	}

	or, nr := oldCfg.Reminder, newCfg.Reminder
	if or.IntervalMinutes != nr.IntervalMinutes || or.DisabledHours != nr.DisabledHours ||
		or.SoundRef != nr.SoundRef || or.Timezone != nr.Timezone ||
		!equalBoolPtr(or.VibrationEnabled, nr.VibrationEnabled) {
		changed = append(changed, "reminder")
		attrs = append(attrs,
			logx.Int("reminder.interval_minutes", nr.IntervalMinutes),
			logx.Bool("reminder.disabled_hours", nr.DisabledHours.Enabled),
			logx.String("reminder.timezone", nr.Timezone),
		)
	}

	slices.Sort(changed)
	return changed, attrs
}

func equalBoolPtr(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
