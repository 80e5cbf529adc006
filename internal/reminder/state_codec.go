package reminder

import (
	"strconv"
	"time"
)

// Persisted keys. The engine is the only writer of the runtime keys.
const (
	keyIntervalMinutes      = "intervalMinutes"
	keyIsActive             = "isActive"
	keyIsPaused             = "isPaused"
	keyDisabledHoursEnabled = "disabledHoursEnabled"
	keyDisabledStartHour    = "disabledStartHour"
	keyDisabledEndHour      = "disabledEndHour"
	keyVibrationEnabled     = "vibrationEnabled"
	keyCustomSoundRef       = "customSoundRef"
	keyLastFireTimestamp    = "lastFireTimestamp"
	keyScheduleEpoch        = "scheduleEpoch"
	keyBootID               = "bootId"
)

type persistedState struct {
	cfg    Config
	rt     RuntimeState
	bootID string
}

// encodeState returns the keys to write and the nullable keys to delete.
func encodeState(st persistedState) (put map[string]string, del []string) {
	put = map[string]string{
		keyIntervalMinutes:      strconv.Itoa(st.cfg.IntervalMinutes),
		keyIsActive:             strconv.FormatBool(st.rt.Lifecycle != Inactive),
		keyIsPaused:             strconv.FormatBool(st.rt.Lifecycle == Paused),
		keyDisabledHoursEnabled: strconv.FormatBool(st.cfg.DisabledHours.Enabled),
		keyDisabledStartHour:    strconv.Itoa(st.cfg.DisabledHours.StartHour),
		keyDisabledEndHour:      strconv.Itoa(st.cfg.DisabledHours.EndHour),
		keyVibrationEnabled:     strconv.FormatBool(st.cfg.Alert.VibrationEnabled),
		keyScheduleEpoch:        strconv.FormatUint(st.rt.Epoch, 10),
	}
	if ref := st.cfg.Alert.SoundRef; ref != "" && ref != DefaultSoundRef {
		put[keyCustomSoundRef] = ref
	} else {
		del = append(del, keyCustomSoundRef)
	}
	if !st.rt.LastFire.IsZero() {
		put[keyLastFireTimestamp] = strconv.FormatInt(st.rt.LastFire.UnixMilli(), 10)
	} else {
		del = append(del, keyLastFireTimestamp)
	}
	if st.bootID != "" {
		put[keyBootID] = st.bootID
	}
	return put, del
}

// decodeState never fails: missing or malformed values keep their defaults,
// and an out-of-range config falls back to the defaults as a whole.
func decodeState(kv map[string]string, defaults Config) persistedState {
	st := persistedState{cfg: defaults}

	st.cfg.IntervalMinutes = intOr(kv[keyIntervalMinutes], defaults.IntervalMinutes)
	st.cfg.DisabledHours.Enabled = boolOr(kv[keyDisabledHoursEnabled], defaults.DisabledHours.Enabled)
	st.cfg.DisabledHours.StartHour = intOr(kv[keyDisabledStartHour], defaults.DisabledHours.StartHour)
	st.cfg.DisabledHours.EndHour = intOr(kv[keyDisabledEndHour], defaults.DisabledHours.EndHour)
	st.cfg.Alert.VibrationEnabled = boolOr(kv[keyVibrationEnabled], defaults.Alert.VibrationEnabled)
	if ref, ok := kv[keyCustomSoundRef]; ok && ref != "" {
		st.cfg.Alert.SoundRef = ref
	}
	if err := ValidateInterval(st.cfg.IntervalMinutes); err != nil {
		st.cfg.IntervalMinutes = defaults.IntervalMinutes
	}
	if err := st.cfg.DisabledHours.Validate(); err != nil {
		st.cfg.DisabledHours = defaults.DisabledHours
	}

	active := boolOr(kv[keyIsActive], false)
	paused := boolOr(kv[keyIsPaused], false)
	switch {
	case active && paused:
		st.rt.Lifecycle = Paused
	case active:
		st.rt.Lifecycle = Active
	default:
		st.rt.Lifecycle = Inactive
	}
	if ms, err := strconv.ParseInt(kv[keyLastFireTimestamp], 10, 64); err == nil && ms > 0 {
		st.rt.LastFire = time.UnixMilli(ms)
	}
	if ep, err := strconv.ParseUint(kv[keyScheduleEpoch], 10, 64); err == nil {
		st.rt.Epoch = ep
	}
	st.bootID = kv[keyBootID]
	return st
}

func intOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func boolOr(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
