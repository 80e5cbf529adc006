package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reminderd/internal/deadline"
)

const (
	MinIntervalMinutes     = 1
	MaxIntervalMinutes     = 1440
	DefaultIntervalMinutes = 15

	// DefaultSoundRef selects the platform default sound.
	DefaultSoundRef = "default"
)

// Lifecycle is the engine state.
type Lifecycle int

const (
	Inactive Lifecycle = iota
	Active
	Paused
)

func (l Lifecycle) String() string {
	switch l {
	case Active:
		return "active"
	case Paused:
		return "paused"
	default:
		return "inactive"
	}
}

// DisabledHours is the quiet-hours window. StartHour > EndHour wraps midnight.
type DisabledHours struct {
	Enabled   bool `json:"enabled"`
	StartHour int  `json:"start_hour"`
	EndHour   int  `json:"end_hour"`
}

func (d DisabledHours) Validate() error {
	if d.StartHour < 0 || d.StartHour > 23 || d.EndHour < 0 || d.EndHour > 23 {
		return fmt.Errorf("%w: start=%d end=%d", ErrInvalidDisabledHours, d.StartHour, d.EndHour)
	}
	return nil
}

type AlertProfile struct {
	VibrationEnabled bool   `json:"vibration_enabled"`
	SoundRef         string `json:"sound_ref"`
}

// DefaultAlertProfile is the fallback used when emitting with a custom profile fails.
func DefaultAlertProfile() AlertProfile {
	return AlertProfile{VibrationEnabled: true, SoundRef: DefaultSoundRef}
}

func (p AlertProfile) IsDefault() bool {
	return p.VibrationEnabled && (p.SoundRef == "" || p.SoundRef == DefaultSoundRef)
}

func (p AlertProfile) normalized() AlertProfile {
	p.SoundRef = strings.TrimSpace(p.SoundRef)
	if p.SoundRef == "" {
		p.SoundRef = DefaultSoundRef
	}
	return p
}

// Config is the user-owned part of the persisted state.
type Config struct {
	IntervalMinutes int           `json:"interval_minutes"`
	DisabledHours   DisabledHours `json:"disabled_hours"`
	Alert           AlertProfile  `json:"alert"`
}

func DefaultConfig() Config {
	return Config{
		IntervalMinutes: DefaultIntervalMinutes,
		DisabledHours:   DisabledHours{Enabled: false, StartHour: 22, EndHour: 8},
		Alert:           DefaultAlertProfile(),
	}
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c Config) Validate() error {
	if err := ValidateInterval(c.IntervalMinutes); err != nil {
		return err
	}
	return c.DisabledHours.Validate()
}

func ValidateInterval(minutes int) error {
	if minutes < MinIntervalMinutes || minutes > MaxIntervalMinutes {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, minutes)
	}
	return nil
}

// RuntimeState is the engine-owned part of the persisted state.
type RuntimeState struct {
	Lifecycle Lifecycle
	LastFire  time.Time // zero when unset
	Epoch     uint64
}

// CommandKind enumerates every mutation accepted by Engine.Apply.
type CommandKind int

const (
	CmdStart CommandKind = iota + 1
	CmdStop
	CmdPause
	CmdResume
	CmdUpdateInterval
	CmdUpdateDisabledHours
	CmdUpdateAlertProfile
)

func (k CommandKind) String() string {
	switch k {
	case CmdStart:
		return "start"
	case CmdStop:
		return "stop"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdUpdateInterval:
		return "update_interval"
	case CmdUpdateDisabledHours:
		return "update_disabled_hours"
	case CmdUpdateAlertProfile:
		return "update_alert_profile"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Command is one mutation. Only the field matching Kind is read.
type Command struct {
	Kind            CommandKind
	IntervalMinutes int
	DisabledHours   DisabledHours
	Alert           AlertProfile
}

// AlertReason says why an alert or status update was produced.
type AlertReason string

const (
	ReasonStart    AlertReason = "start"
	ReasonResume   AlertReason = "resume"
	ReasonDeadline AlertReason = "deadline"
	ReasonMissed   AlertReason = "missed"
	ReasonBoot     AlertReason = "boot"
	ReasonRestart  AlertReason = "restart"
	ReasonState    AlertReason = "state"
)

// AlertContext is handed to AlertSink.Emit.
type AlertContext struct {
	ID           string
	Reason       AlertReason
	FiredAt      time.Time
	NextDeadline time.Time
	Interval     time.Duration
	Profile      AlertProfile
	Epoch        uint64
}

// StatusUpdate feeds the persistent status surface.
type StatusUpdate struct {
	Lifecycle    Lifecycle
	NextDeadline time.Time
	Gated        bool
	Degraded     bool
	Reason       AlertReason
	Epoch        uint64
}

// Text renders the one-line status shown to the user.
func (s StatusUpdate) Text(loc *time.Location) string {
	switch s.Lifecycle {
	case Paused:
		return "Paused"
	case Inactive:
		return "Stopped"
	}
	if s.NextDeadline.IsZero() {
		return "Active"
	}
	if loc == nil {
		loc = time.Local
	}
	txt := "Next alert at " + s.NextDeadline.In(loc).Format("15:04")
	if s.Gated {
		txt += " (quiet hours)"
	}
	return txt
}

// Status is a point-in-time view of the engine.
type Status struct {
	Lifecycle         Lifecycle     `json:"lifecycle"`
	Config            Config        `json:"config"`
	Epoch             uint64        `json:"epoch"`
	LastFire          time.Time     `json:"last_fire"`
	NextDeadline      time.Time     `json:"next_deadline"`
	TimerMode         deadline.Mode `json:"timer_mode"`
	Degraded          bool          `json:"degraded"`
	Dirty             bool          `json:"dirty"`
	GatedNow          bool          `json:"gated_now"`
	CanScheduleExact  bool          `json:"can_schedule_exact"`
	PowerSavingExempt bool          `json:"power_saving_exempt"`
}

// DeadlineTimer arms absolute wall-clock deadlines.
// Arm reports deadline.ErrExactUnavailable when exact scheduling is not permitted.
type DeadlineTimer interface {
	Arm(at time.Time, epoch uint64, mode deadline.Mode, fire deadline.FireFunc) (deadline.Handle, error)
	Cancel(h deadline.Handle)
}

// AlertSink plays alerts and maintains the status surface. Both calls are best effort.
type AlertSink interface {
	Emit(ctx context.Context, a AlertContext) error
	UpdateStatus(ctx context.Context, s StatusUpdate) error
}

type PermissionProvider interface {
	CanScheduleExact() bool
	RequestExactPermission(ctx context.Context) error
	IsPowerSavingExempt() bool
	RequestPowerSavingExemption(ctx context.Context) error
}

// Reservation keeps the machine awake until released or until its hard cap elapses.
type Reservation interface {
	Release()
}

type ReservationProvider interface {
	Acquire(ctx context.Context, why string, hardCap time.Duration) (Reservation, error)
}

// TickSource runs fn every d until the returned stop func is called.
type TickSource interface {
	Every(d time.Duration, fn func()) (stop func())
}
