package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: /tmp/reminderd.db
timer:
  mode: auto
  max_sleep: 5m
reconciler:
  tolerance: 10s
reservation:
  enabled: true
  hard_cap: 30s
alert:
  log: true
  sound_command: ["paplay", "{sound}"]
  vibration_pattern: [0, 300, 200, 300, 200, 300]
telegram:
  enabled: true
  token: "123:abc"
  owner_user_ids: [42]
  chat_id: 42
systemd:
  notify: true
  watchdog: true
  watch_sleep: true
reminder:
  interval_minutes: 20
  disabled_hours: {enabled: true, start_hour: 22, end_hour: 8}
  vibration_enabled: false
  timezone: UTC
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reminder.IntervalMinutes != 20 || !cfg.Reminder.DisabledHours.Enabled {
		t.Fatalf("reminder = %+v", cfg.Reminder)
	}
	if cfg.Reminder.VibrationEnabled == nil || *cfg.Reminder.VibrationEnabled {
		t.Fatalf("vibration_enabled = %v, want explicit false", cfg.Reminder.VibrationEnabled)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if got := cfg.Alert.SoundCommand; len(got) != 2 || got[1] != "{sound}" {
		t.Fatalf("sound_command = %q", got)
	}
	if m.Get() != cfg {
		t.Fatal("Load should commit the config")
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown field", `{"bogus": 1}`, "unknown field"},
		{"trailing data", `{} {}`, "trailing data"},
		{"timer mode", `{"timer": {"mode": "sometimes"}}`, "timer.mode"},
		{"duration", `{"reconciler": {"tolerance": "soon"}}`, "reconciler.tolerance"},
		{"interval", `{"reminder": {"interval_minutes": 2000}}`, "reminder.interval_minutes"},
		{"hours", `{"reminder": {"disabled_hours": {"start_hour": 25}}}`, "reminder.disabled_hours"},
		{"timezone", `{"reminder": {"timezone": "Mars/Olympus"}}`, "reminder.timezone"},
		{"sqlite path", `{"storage": {"driver": "sqlite"}}`, "storage.path"},
		{"telegram token", `{"telegram": {"enabled": true, "owner_user_ids": [1]}}`, "telegram.token"},
		{"file path", `{"storage": {"driver": "file"}}`, "storage.path"},
		{"debug addr", `{"debug": {"addr": "6060"}}`, "debug.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewManager(writeFile(t, "config.json", tt.body)).Parse()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Parse err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestDecodeYAMLEdgeCases(t *testing.T) {
	t.Parallel()
	cfg, err := NewManager(writeFile(t, "empty.yml", "")).Parse()
	if err != nil {
		t.Fatalf("empty yaml: %v", err)
	}
	if cfg.Reminder.IntervalMinutes != 0 {
		t.Fatalf("empty yaml gave %+v", cfg.Reminder)
	}
	if _, err := NewManager(writeFile(t, "bad.yaml", "reminder: {interval_minutes: 5\n")).Parse(); err == nil {
		t.Fatal("broken yaml accepted")
	}
	_, err = NewManager(writeFile(t, "typo.yaml", "reminder:\n  intervl_minutes: 5\n")).Parse()
	if err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("unknown yaml key err = %v", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	old := &Config{Telegram: TelegramConfig{Token: "secret-1"}, Reminder: ReminderConfig{IntervalMinutes: 15}}
	nw := &Config{Telegram: TelegramConfig{Token: "secret-2"}, Reminder: ReminderConfig{IntervalMinutes: 30}}
	sections, attrs := SummarizeConfigChange(old, nw)
	if strings.Join(sections, ",") != "reminder,telegram" {
		t.Fatalf("sections = %v", sections)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if s, _ := SummarizeConfigChange(old, old); len(s) != 0 {
		t.Fatalf("identical configs reported %v", s)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"reminder": {"interval_minutes": 15}}`)
	m := NewManager(path)
	m.debounce = 10 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// The watcher needs a moment to register before the write.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-sub:
			if cfg.Reminder.IntervalMinutes != 45 {
				t.Fatalf("published interval = %d", cfg.Reminder.IntervalMinutes)
			}
			return
		case <-tick.C:
			_ = os.WriteFile(path, []byte(`{"reminder": {"interval_minutes": 45}}`), 0o600)
		case <-deadline:
			t.Fatal("no config published")
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", time.Second); err != nil || d != time.Second {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "2m", time.Second); err != nil || d != 2*time.Minute {
		t.Fatalf("2m = %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "-1s", time.Second); err == nil {
		t.Fatal("negative duration accepted")
	}
}
