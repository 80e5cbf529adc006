package config

// Config is the daemon configuration. All durations are Go duration strings
// ("500ms", "10s", "1m"); empty means the component default.
type Config struct {
	Logging     LoggingConfig     `json:"logging"`
	Storage     StorageConfig     `json:"storage"`
	Timer       TimerConfig       `json:"timer"`
	Reconciler  ReconcilerConfig  `json:"reconciler"`
	Reservation ReservationConfig `json:"reservation"`
	Alert       AlertConfig       `json:"alert"`
	Telegram    TelegramConfig    `json:"telegram"`
	Systemd     SystemdConfig     `json:"systemd"`
	Debug       DebugConfig       `json:"debug"`

	// Reminder seeds the persisted settings on first run. On hot reload the
	// settings that changed here are pushed to the running engine.
	Reminder ReminderConfig `json:"reminder"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Journal bool        `json:"journal,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the state store.
//
//	"storage": { "driver": "sqlite", "path": "/var/lib/reminderd/state.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // sqlite | file | memory
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type TimerConfig struct {
	// Mode is auto, exact or inexact. auto uses exact when the process may
	// wake the machine (CAP_WAKE_ALARM or an explicit grant) and inexact otherwise.
	Mode string `json:"mode"`
	// MaxSleep caps one exact-timer sleep before the wall clock is re-checked.
	MaxSleep string `json:"max_sleep,omitempty"`
	// Granularity is the inexact sweep period.
	Granularity string `json:"granularity,omitempty"`
}

type ReconcilerConfig struct {
	Tolerance        string `json:"tolerance,omitempty"`
	MaxCheckInterval string `json:"max_check_interval,omitempty"`
}

type ReservationConfig struct {
	Enabled bool   `json:"enabled"`
	HardCap string `json:"hard_cap,omitempty"`
	// Block takes a blocking sleep inhibitor instead of a delay inhibitor.
	Block bool `json:"block,omitempty"`
}

type AlertConfig struct {
	Log              bool     `json:"log"`
	SoundCommand     []string `json:"sound_command,omitempty"`
	VibrateCommand   []string `json:"vibrate_command,omitempty"`
	VibrationPattern []int    `json:"vibration_pattern,omitempty"`
	CommandTimeout   string   `json:"command_timeout,omitempty"`
}

type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// ChatID receives alerts and the status message.
	ChatID         int64   `json:"chat_id"`
	ThreadID       int     `json:"thread_id,omitempty"`
	PollTimeout    string  `json:"poll_timeout,omitempty"`
	RatePerSec     float64 `json:"rate_per_sec,omitempty"`
	CommandTimeout string  `json:"command_timeout,omitempty"`
}

type SystemdConfig struct {
	Notify     bool `json:"notify"`
	Watchdog   bool `json:"watchdog"`
	WatchSleep bool `json:"watch_sleep"`
}

// DebugConfig controls the local HTTP server exposing /healthz, /status and
// /debug/pprof/. A non-loopback addr needs a token or allow_insecure.
type DebugConfig struct {
	Enabled              bool   `json:"enabled"`
	Addr                 string `json:"addr,omitempty"`
	Token                string `json:"token,omitempty"`
	AllowInsecure        bool   `json:"allow_insecure,omitempty"`
	ReadTimeout          string `json:"read_timeout,omitempty"`
	WriteTimeout         string `json:"write_timeout,omitempty"`
	IdleTimeout          string `json:"idle_timeout,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
}

type ReminderConfig struct {
	IntervalMinutes  int                 `json:"interval_minutes"`
	DisabledHours    DisabledHoursConfig `json:"disabled_hours"`
	VibrationEnabled *bool               `json:"vibration_enabled,omitempty"`
	SoundRef         string              `json:"sound_ref,omitempty"`
	Timezone         string              `json:"timezone,omitempty"`
}

type DisabledHoursConfig struct {
	Enabled   bool `json:"enabled"`
	StartHour int  `json:"start_hour"`
	EndHour   int  `json:"end_hour"`
}
