package platform

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "reminderd/pkg/logx"
)

// Notifier speaks the sd_notify protocol. Without NOTIFY_SOCKET every call is a no-op.
type Notifier struct {
	log     logx.Logger
	enabled bool
}

func NewNotifier(enabled bool, log logx.Logger) *Notifier {
	return &Notifier{log: log.With(logx.String("comp", "sdnotify")), enabled: enabled}
}

func (n *Notifier) send(state string) {
	if n == nil || !n.enabled {
		return
	}
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Trace("sd_notify", logx.String("state", state))
	}
}

func (n *Notifier) Ready()     { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping()  { n.send(daemon.SdNotifyStopping) }
func (n *Notifier) Reloading() { n.send(daemon.SdNotifyReloading) }

// Status publishes a free-form line shown by systemctl status.
func (n *Notifier) Status(msg string) { n.send("STATUS=" + msg) }

// Watchdog pings the service manager at half the WatchdogSec interval until
// ctx is done. It returns immediately when the watchdog is not enabled.
func (n *Notifier) Watchdog(ctx context.Context) error {
	if n == nil || !n.enabled {
		return nil
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}
	every := interval / 2
	if every < time.Second {
		every = time.Second
	}
	n.log.Info("watchdog enabled", logx.Duration("every", every))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
