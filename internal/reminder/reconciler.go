package reminder

import (
	"time"

	"github.com/robfig/cron/v3"

	logx "reminderd/pkg/logx"
)

// reconcileEvery is min(maxCheck, interval/2), never below one second.
func reconcileEvery(interval, maxCheck time.Duration) time.Duration {
	every := interval / 2
	if every > maxCheck {
		every = maxCheck
	}
	if every < time.Second {
		every = time.Second
	}
	return every
}

func (e *Engine) startReconcilerLocked() {
	every := reconcileEvery(e.cfg.Interval(), e.opts.MaxCheckInterval)
	if e.stopTicks != nil && every == e.checkEvery {
		return
	}
	e.stopReconcilerLocked()
	e.stopTicks = e.deps.Ticks.Every(every, e.Reconcile)
	e.checkEvery = every
	e.log.Debug("reconciler started", logx.Duration("every", every))
}

func (e *Engine) stopReconcilerLocked() {
	if e.stopTicks == nil {
		return
	}
	e.stopTicks()
	e.stopTicks = nil
	e.checkEvery = 0
}

// Reconcile runs one backup check: it retries a pending persist, re-arms a
// missing or degraded deadline, and fires the current epoch when the cycle is
// overdue by more than the tolerance. The host also calls it on wake from sleep.
func (e *Engine) Reconcile() {
	e.mu.Lock()
	if e.closed || e.rt.Lifecycle != Active {
		e.mu.Unlock()
		return
	}
	if e.dirty {
		e.persistLocked()
	}
	if e.handle.IsZero() || e.upgradableLocked() {
		e.armAtLocked(e.next)
	}

	now := e.now()
	epoch := e.rt.Epoch
	overdue := time.Duration(0)
	if !e.anchor.IsZero() {
		overdue = now.Sub(e.anchor) - e.cfg.Interval()
	}
	e.mu.Unlock()

	if overdue <= e.opts.Tolerance {
		return
	}
	e.log.Info("missed deadline detected", logx.Duration("overdue", overdue), logx.Uint64("epoch", epoch))
	// fire re-checks the epoch: if the primary timer won the race this is a no-op.
	e.fire(epoch, ReasonMissed)
}

// upgradableLocked reports whether a degraded deadline can move back to exact.
func (e *Engine) upgradableLocked() bool {
	if !e.degraded || e.deps.Permissions == nil {
		return false
	}
	return e.deps.Permissions.CanScheduleExact()
}

type cronTicks struct {
	loc *time.Location
}

// NewCronTicks returns a TickSource backed by robfig/cron "every" schedules.
func NewCronTicks(loc *time.Location) TickSource {
	if loc == nil {
		loc = time.Local
	}
	return cronTicks{loc: loc}
}

func (t cronTicks) Every(d time.Duration, fn func()) func() {
	c := cron.New(
		cron.WithLocation(t.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	c.Schedule(cron.Every(d), cron.FuncJob(fn))
	c.Start()
	// Stop must not wait: a running tick may be blocked on the caller's lock.
	return func() { c.Stop() }
}
