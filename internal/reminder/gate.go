package reminder

import "time"

// IsGated reports whether now falls inside the quiet-hours window, using the
// hour of now in its own location. Equal start and end hours never gate.
func IsGated(now time.Time, dh DisabledHours) bool {
	if !dh.Enabled {
		return false
	}
	h := now.Hour()
	if dh.StartHour > dh.EndHour {
		return h >= dh.StartHour || h < dh.EndHour
	}
	return h >= dh.StartHour && h < dh.EndHour
}
