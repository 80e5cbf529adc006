package reminder

import (
	"slices"
	"testing"
	"time"
)

func TestDecodeStateDefaultsOnEmptyStore(t *testing.T) {
	t.Parallel()
	st := decodeState(nil, DefaultConfig())
	if st.cfg != DefaultConfig() {
		t.Fatalf("cfg = %+v, want defaults", st.cfg)
	}
	if st.rt.Lifecycle != Inactive || !st.rt.LastFire.IsZero() || st.rt.Epoch != 0 {
		t.Fatalf("runtime = %+v, want zero inactive", st.rt)
	}
}

func TestDecodeStateLifecycleFlags(t *testing.T) {
	t.Parallel()
	tests := []struct {
		active, paused string
		want           Lifecycle
	}{
		{"true", "false", Active},
		{"true", "true", Paused},
		{"false", "true", Inactive},
		{"false", "false", Inactive},
		{"garbage", "", Inactive},
	}
	for _, tt := range tests {
		st := decodeState(map[string]string{keyIsActive: tt.active, keyIsPaused: tt.paused}, DefaultConfig())
		if st.rt.Lifecycle != tt.want {
			t.Fatalf("isActive=%q isPaused=%q: lifecycle = %v, want %v", tt.active, tt.paused, st.rt.Lifecycle, tt.want)
		}
	}
}

func TestDecodeStateRejectsOutOfRangeConfig(t *testing.T) {
	t.Parallel()
	st := decodeState(map[string]string{
		keyIntervalMinutes:   "0",
		keyDisabledStartHour: "25",
		keyDisabledEndHour:   "3",
	}, DefaultConfig())
	def := DefaultConfig()
	if st.cfg.IntervalMinutes != def.IntervalMinutes {
		t.Fatalf("interval = %d, want default %d", st.cfg.IntervalMinutes, def.IntervalMinutes)
	}
	if st.cfg.DisabledHours != def.DisabledHours {
		t.Fatalf("disabled hours = %+v, want defaults", st.cfg.DisabledHours)
	}
}

func TestEncodeStateNullableKeys(t *testing.T) {
	t.Parallel()
	last := time.UnixMilli(1_700_000_000_123)
	in := persistedState{
		cfg: Config{
			IntervalMinutes: 20,
			DisabledHours:   DisabledHours{Enabled: true, StartHour: 23, EndHour: 7},
			Alert:           AlertProfile{VibrationEnabled: false, SoundRef: "/usr/share/sounds/bell.oga"},
		},
		rt:     RuntimeState{Lifecycle: Paused, LastFire: last, Epoch: 42},
		bootID: "b1",
	}
	put, del := encodeState(in)
	if len(del) != 0 {
		t.Fatalf("del = %v, want none", del)
	}
	if put[keyIsActive] != "true" || put[keyIsPaused] != "true" {
		t.Fatalf("paused flags = %q/%q", put[keyIsActive], put[keyIsPaused])
	}
	if put[keyLastFireTimestamp] != "1700000000123" {
		t.Fatalf("lastFireTimestamp = %q", put[keyLastFireTimestamp])
	}

	out := decodeState(put, DefaultConfig())
	if out.cfg != in.cfg || out.bootID != in.bootID {
		t.Fatalf("decoded cfg = %+v boot=%q, want %+v boot=%q", out.cfg, out.bootID, in.cfg, in.bootID)
	}
	if out.rt.Lifecycle != Paused || out.rt.Epoch != 42 || !out.rt.LastFire.Equal(last) {
		t.Fatalf("decoded runtime = %+v", out.rt)
	}

	in.rt = RuntimeState{Lifecycle: Inactive, Epoch: 43}
	in.cfg.Alert.SoundRef = DefaultSoundRef
	_, del = encodeState(in)
	slices.Sort(del)
	if want := []string{keyCustomSoundRef, keyLastFireTimestamp}; !slices.Equal(del, want) {
		t.Fatalf("del = %v, want %v", del, want)
	}
}
