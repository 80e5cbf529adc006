package reminder

import (
	"context"

	logx "reminderd/pkg/logx"
)

// RecoverReason distinguishes a machine boot from a plain process restart.
type RecoverReason int

const (
	// RecoverRestart re-arms silently (process restart, unit restart).
	RecoverRestart RecoverReason = iota
	// RecoverBoot also alerts immediately unless quiet hours are active.
	RecoverBoot
)

func (r RecoverReason) String() string {
	if r == RecoverBoot {
		return "boot"
	}
	return "restart"
}

// Recover loads the persisted state and, when it was left ACTIVE, starts a
// fresh cycle from the current time. Calling it while already armed is a no-op.
func (e *Engine) Recover(ctx context.Context, reason RecoverReason) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.loaded && e.rt.Lifecycle == Active && !e.handle.IsZero() {
		e.mu.Unlock()
		e.log.Debug("recover skipped; already armed", logx.String("reason", reason.String()))
		return nil
	}
	e.loadLocked(ctx)

	var d *delivery
	switch e.rt.Lifecycle {
	case Active:
		now := e.now()
		alertReason := ReasonRestart
		alert := false
		if reason == RecoverBoot {
			alertReason = ReasonBoot
			alert = true
			if !e.gatedLocked(now) {
				e.rt.LastFire = now
			}
		}
		d = e.activateLocked(now, alertReason, alert)
	case Paused:
		d = e.statusDeliveryLocked(ReasonState, false)
	}
	lc := e.rt.Lifecycle
	next := e.next
	e.mu.Unlock()

	e.log.Info("recovered",
		logx.String("reason", reason.String()),
		logx.String("lifecycle", lc.String()),
		logx.Time("next", next),
	)
	if d != nil {
		e.deliver(ctx, d)
	}
	return nil
}

// Startup recovers using the kernel boot id: a boot id different from the
// persisted one means the machine rebooted since the last run.
func (e *Engine) Startup(ctx context.Context, bootID string) (RecoverReason, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return RecoverRestart, ErrClosed
	}
	e.loadLocked(ctx)
	reason := RecoverRestart
	if bootID != "" && bootID != e.bootID {
		reason = RecoverBoot
		e.bootID = bootID
		e.persistLocked()
	}
	e.mu.Unlock()

	return reason, e.Recover(ctx, reason)
}
