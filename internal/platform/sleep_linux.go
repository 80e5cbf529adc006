//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-systemd/v22/login1"
	"github.com/godbus/dbus/v5"

	logx "reminderd/pkg/logx"
)

const prepareForSleep = "org.freedesktop.login1.Manager.PrepareForSleep"

// WatchSleep blocks until ctx is done, calling fn on every PrepareForSleep
// signal. It returns an error when the bus connection drops so a supervisor
// can restart it.
func WatchSleep(ctx context.Context, log logx.Logger, fn SleepFunc) error {
	conn, err := login1.New()
	if err != nil {
		return fmt.Errorf("logind: %w", err)
	}
	defer conn.Close()

	ch := conn.Subscribe("PrepareForSleep")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-ch:
			if !ok {
				return errors.New("logind signal channel closed")
			}
			sleeping, ok := sleepSignal(sig)
			if !ok {
				continue
			}
			logSleep(log, sleeping)
			fn(sleeping)
		}
	}
}

func sleepSignal(sig *dbus.Signal) (sleeping bool, ok bool) {
	if sig == nil || sig.Name != prepareForSleep || len(sig.Body) == 0 {
		return false, false
	}
	v, ok := sig.Body[0].(bool)
	return v, ok
}
