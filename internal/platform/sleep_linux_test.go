//go:build linux

package platform

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestSleepSignal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		sig       *dbus.Signal
		wantSleep bool
		wantOK    bool
	}{
		{"suspend", &dbus.Signal{Name: prepareForSleep, Body: []any{true}}, true, true},
		{"resume", &dbus.Signal{Name: prepareForSleep, Body: []any{false}}, false, true},
		{"other member", &dbus.Signal{Name: "org.freedesktop.login1.Manager.SessionNew", Body: []any{"1"}}, false, false},
		{"empty body", &dbus.Signal{Name: prepareForSleep}, false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		sleeping, ok := sleepSignal(tt.sig)
		if sleeping != tt.wantSleep || ok != tt.wantOK {
			t.Fatalf("%s: sleepSignal = (%v, %v), want (%v, %v)", tt.name, sleeping, ok, tt.wantSleep, tt.wantOK)
		}
	}
}

func TestBootIDReadable(t *testing.T) {
	t.Parallel()
	if id := BootID(); id == "" {
		t.Skip("boot id not exposed in this environment")
	} else if len(id) != 36 {
		t.Fatalf("boot id %q is not a uuid", id)
	}
}
