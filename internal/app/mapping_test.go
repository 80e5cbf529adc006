package app

import (
	"errors"
	"testing"
	"time"

	"reminderd/internal/config"
	"reminderd/internal/deadline"
	"reminderd/internal/observability/debugsrv"
	"reminderd/internal/platform"
	"reminderd/internal/reminder"
	"reminderd/internal/storage"
)

func TestReminderSettingsDefaults(t *testing.T) {
	t.Parallel()
	got, err := reminderSettings(config.ReminderConfig{})
	if err != nil {
		t.Fatalf("reminderSettings error: %v", err)
	}
	if got != reminder.DefaultConfig() {
		t.Fatalf("settings = %+v, want defaults %+v", got, reminder.DefaultConfig())
	}

	off := false
	got, err = reminderSettings(config.ReminderConfig{
		IntervalMinutes:  45,
		DisabledHours:    config.DisabledHoursConfig{Enabled: true, StartHour: 23, EndHour: 6},
		VibrationEnabled: &off,
		SoundRef:         "bell.ogg",
	})
	if err != nil {
		t.Fatalf("reminderSettings error: %v", err)
	}
	if got.IntervalMinutes != 45 || got.DisabledHours.StartHour != 23 || got.DisabledHours.EndHour != 6 || !got.DisabledHours.Enabled {
		t.Fatalf("settings = %+v", got)
	}
	if got.Alert.VibrationEnabled || got.Alert.SoundRef != "bell.ogg" {
		t.Fatalf("alert profile = %+v", got.Alert)
	}
}

func TestReminderSettingsRejectsBadValues(t *testing.T) {
	t.Parallel()
	cases := []config.ReminderConfig{
		{IntervalMinutes: -5},
		{DisabledHours: config.DisabledHoursConfig{Enabled: true, StartHour: 24, EndHour: 8}},
	}
	for i, c := range cases {
		if _, err := reminderSettings(c); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestSettingsCommands(t *testing.T) {
	t.Parallel()
	on := true
	oldR := config.ReminderConfig{IntervalMinutes: 30}
	newR := config.ReminderConfig{
		IntervalMinutes:  20,
		DisabledHours:    config.DisabledHoursConfig{Enabled: true, StartHour: 22, EndHour: 7},
		VibrationEnabled: &on,
	}
	cmds, err := settingsCommands(oldR, newR)
	if err != nil {
		t.Fatalf("settingsCommands error: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2: %+v", len(cmds), cmds)
	}
	if cmds[0].Kind != reminder.CmdUpdateInterval || cmds[0].IntervalMinutes != 20 {
		t.Fatalf("cmds[0] = %+v", cmds[0])
	}
	if cmds[1].Kind != reminder.CmdUpdateDisabledHours || cmds[1].DisabledHours.EndHour != 7 {
		t.Fatalf("cmds[1] = %+v", cmds[1])
	}

	cmds, err = settingsCommands(oldR, oldR)
	if err != nil || len(cmds) != 0 {
		t.Fatalf("unchanged section gave %+v, %v", cmds, err)
	}

	if _, err := settingsCommands(oldR, config.ReminderConfig{IntervalMinutes: -1}); err == nil {
		t.Fatal("expected error for invalid interval")
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      config.StorageConfig
		driver  string
		wantErr error
	}{
		{in: config.StorageConfig{}, driver: "memory"},
		{in: config.StorageConfig{Driver: "file", Path: "/tmp/x"}, driver: "file"},
		{in: config.StorageConfig{Driver: "SQLite3", Path: "/tmp/x.db"}, driver: "sqlite"},
		{in: config.StorageConfig{Driver: "redis"}, wantErr: storage.ErrUnknownDriver},
	}
	for _, tt := range tests {
		got, err := mapStorageConfig(tt.in)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("%+v: err = %v, want %v", tt.in, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%+v: %v", tt.in, err)
		}
		if got.Driver != tt.driver {
			t.Fatalf("%+v: driver = %q, want %q", tt.in, got.Driver, tt.driver)
		}
	}

	if _, err := mapStorageConfig(config.StorageConfig{Driver: "sqlite"}); err == nil {
		t.Fatal("sqlite without path should fail")
	}
	got, err := mapStorageConfig(config.StorageConfig{Driver: "sqlite", Path: "a.db", BusyTimeout: "3s"})
	if err != nil || got.BusyTimeout != 3*time.Second {
		t.Fatalf("busy timeout = %v, %v", got.BusyTimeout, err)
	}
}

func TestTimerPolicyAndMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mode   string
		policy platform.TimerPolicy
		engine deadline.Mode
	}{
		{"", platform.TimerAuto, deadline.Exact},
		{"Exact", platform.TimerExact, deadline.Exact},
		{" inexact ", platform.TimerInexact, deadline.Inexact},
		{"bogus", platform.TimerAuto, deadline.Exact},
	}
	for _, tt := range tests {
		if got := timerPolicy(tt.mode); got != tt.policy {
			t.Fatalf("timerPolicy(%q) = %v, want %v", tt.mode, got, tt.policy)
		}
		cfg := &config.Config{Timer: config.TimerConfig{Mode: tt.mode}}
		opts, err := mapEngineOptions(cfg, reminder.DefaultConfig(), time.UTC)
		if err != nil {
			t.Fatalf("mapEngineOptions(%q): %v", tt.mode, err)
		}
		if opts.TimerMode != tt.engine {
			t.Fatalf("mode %q: engine mode = %v, want %v", tt.mode, opts.TimerMode, tt.engine)
		}
	}
}

func TestValidateRejectsBadDurations(t *testing.T) {
	t.Parallel()
	bad := []*config.Config{
		{Timer: config.TimerConfig{MaxSleep: "soon"}},
		{Reconciler: config.ReconcilerConfig{Tolerance: "-"}},
		{Alert: config.AlertConfig{CommandTimeout: "x"}},
		{Reminder: config.ReminderConfig{Timezone: "Mars/Olympus"}},
	}
	for i, c := range bad {
		if err := validate(c); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	if err := validate(&config.Config{}); err != nil {
		t.Fatalf("zero config: %v", err)
	}
}

func TestMapDebugConfig(t *testing.T) {
	t.Parallel()
	got, err := mapDebugConfig(config.DebugConfig{Enabled: true, Addr: "127.0.0.1:6061"})
	if err != nil {
		t.Fatalf("mapDebugConfig: %v", err)
	}
	if got.ReadTimeout != 5*time.Second || got.IdleTimeout != 120*time.Second || got.WriteTimeout != 0 {
		t.Fatalf("timeouts = %v/%v/%v", got.ReadTimeout, got.WriteTimeout, got.IdleTimeout)
	}
	if _, err := mapDebugConfig(config.DebugConfig{Enabled: true, Addr: "0.0.0.0:6060"}); !errors.Is(err, debugsrv.ErrInsecureBind) {
		t.Fatalf("public bind err = %v, want ErrInsecureBind", err)
	}
	if _, err := mapDebugConfig(config.DebugConfig{Addr: "0.0.0.0:6060"}); err != nil {
		t.Fatalf("disabled server should not check bind: %v", err)
	}
}
