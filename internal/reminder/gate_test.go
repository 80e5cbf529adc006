package reminder

import (
	"testing"
	"time"
)

func TestIsGatedWindows(t *testing.T) {
	t.Parallel()
	at := func(h int) time.Time { return time.Date(2026, 3, 14, h, 30, 0, 0, time.UTC) }

	tests := []struct {
		name  string
		dh    DisabledHours
		gated []int
	}{
		{
			name:  "wraps midnight",
			dh:    DisabledHours{Enabled: true, StartHour: 22, EndHour: 8},
			gated: []int{22, 23, 0, 1, 2, 3, 4, 5, 6, 7},
		},
		{
			name:  "same day",
			dh:    DisabledHours{Enabled: true, StartHour: 8, EndHour: 22},
			gated: []int{8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21},
		},
		{
			name: "disabled",
			dh:   DisabledHours{Enabled: false, StartHour: 0, EndHour: 23},
		},
		{
			name: "empty window",
			dh:   DisabledHours{Enabled: true, StartHour: 5, EndHour: 5},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			want := map[int]bool{}
			for _, h := range tt.gated {
				want[h] = true
			}
			for h := 0; h < 24; h++ {
				if got := IsGated(at(h), tt.dh); got != want[h] {
					t.Fatalf("IsGated(hour=%d) = %v, want %v", h, got, want[h])
				}
			}
		})
	}
}

func TestIsGatedUsesTimeLocation(t *testing.T) {
	t.Parallel()
	dh := DisabledHours{Enabled: true, StartHour: 22, EndHour: 8}
	utc := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	if IsGated(utc, dh) {
		t.Fatal("20:00 UTC should not be gated")
	}
	plus3 := time.FixedZone("UTC+3", 3*3600)
	if !IsGated(utc.In(plus3), dh) {
		t.Fatal("23:00 UTC+3 should be gated")
	}
}
