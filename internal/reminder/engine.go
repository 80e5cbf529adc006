package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"reminderd/internal/deadline"
	"reminderd/internal/eventbus"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

// Event types published on the bus.
const (
	EventState    = "reminder.state"
	EventFired    = "reminder.fired"
	EventDegraded = "reminder.degraded"
)

// FireEvent is the payload of EventFired.
type FireEvent struct {
	ID     string      `json:"id,omitempty"`
	Reason AlertReason `json:"reason"`
	Gated  bool        `json:"gated"`
	At     time.Time   `json:"at"`
	Next   time.Time   `json:"next"`
	Epoch  uint64      `json:"epoch"`
}

type Options struct {
	// Defaults seeds the config on first run and after a failed state read.
	Defaults Config
	// TimerMode is the preferred deadline variant. Exact degrades to Inexact when refused.
	TimerMode deadline.Mode
	// Tolerance is how late a deadline may be before the reconciler recovers it (default 10s).
	Tolerance time.Duration
	// MaxCheckInterval caps the reconciler period (default 30s).
	MaxCheckInterval time.Duration
	// ReservationCap bounds one alert delivery and the reservation held for it (default 30s).
	ReservationCap time.Duration
	PersistTimeout time.Duration
	// Location is used for quiet hours and status text (default time.Local).
	Location *time.Location
	Now      func() time.Time
}

// Deps are the collaborators. Store and Timer are required.
type Deps struct {
	Store        storage.Store
	Timer        DeadlineTimer
	Sink         AlertSink
	Permissions  PermissionProvider
	Reservations ReservationProvider
	Ticks        TickSource
	Bus          eventbus.Bus
}

type Engine struct {
	log  logx.Logger
	deps Deps
	opts Options

	mu         sync.Mutex
	loaded     bool
	closed     bool
	cfg        Config
	rt         RuntimeState
	bootID     string
	anchor     time.Time // start of the current cycle; reconciler staleness is measured from here
	handle     deadline.Handle
	next       time.Time
	mode       deadline.Mode
	degraded   bool
	dirty      bool
	stopTicks  func()
	checkEvery time.Duration

	deliverMu       sync.Mutex
	inflight        sync.WaitGroup
	lastStatusEpoch uint64
}

// delivery is the work done outside the engine lock after a mutation.
type delivery struct {
	alert   *AlertContext
	status  StatusUpdate
	reserve bool
}

func New(deps Deps, opts Options, log logx.Logger) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("reminder: store is required")
	}
	if deps.Timer == nil {
		return nil, errors.New("reminder: deadline timer is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	if deps.Ticks == nil {
		deps.Ticks = NewCronTicks(opts.Location)
	}
	if opts.Defaults == (Config{}) {
		opts.Defaults = DefaultConfig()
	}
	opts.Defaults.Alert = opts.Defaults.Alert.normalized()
	if err := opts.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("reminder defaults: %w", err)
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 10 * time.Second
	}
	if opts.MaxCheckInterval <= 0 {
		opts.MaxCheckInterval = 30 * time.Second
	}
	if opts.ReservationCap <= 0 {
		opts.ReservationCap = 30 * time.Second
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().Round(0) }
	}
	return &Engine{
		log:  log.With(logx.String("comp", "reminder")),
		deps: deps,
		opts: opts,
		cfg:  opts.Defaults,
	}, nil
}

// Apply is the single mutation entry point. Alerts and status updates caused by
// the command are delivered before Apply returns, after the engine lock is released.
func (e *Engine) Apply(ctx context.Context, cmd Command) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.loadLocked(ctx)

	var (
		d   *delivery
		err error
	)
	switch cmd.Kind {
	case CmdStart:
		d, err = e.startLocked(cmd.IntervalMinutes)
	case CmdStop:
		d = e.stopLocked()
	case CmdPause:
		d, err = e.pauseLocked()
	case CmdResume:
		d, err = e.resumeLocked()
	case CmdUpdateInterval:
		d, err = e.updateIntervalLocked(cmd.IntervalMinutes)
	case CmdUpdateDisabledHours:
		d, err = e.updateDisabledHoursLocked(cmd.DisabledHours)
	case CmdUpdateAlertProfile:
		e.updateAlertProfileLocked(cmd.Alert)
	default:
		err = fmt.Errorf("%w: %v", ErrUnknownCommand, cmd.Kind)
	}
	e.mu.Unlock()

	if err != nil {
		return err
	}
	e.log.Debug("command applied", logx.String("cmd", cmd.Kind.String()))
	if d != nil {
		e.deliver(ctx, d)
	}
	return nil
}

func (e *Engine) Start(ctx context.Context, intervalMinutes int) error {
	return e.Apply(ctx, Command{Kind: CmdStart, IntervalMinutes: intervalMinutes})
}

func (e *Engine) Stop(ctx context.Context) error {
	return e.Apply(ctx, Command{Kind: CmdStop})
}

func (e *Engine) Pause(ctx context.Context) error {
	return e.Apply(ctx, Command{Kind: CmdPause})
}

func (e *Engine) Resume(ctx context.Context) error {
	return e.Apply(ctx, Command{Kind: CmdResume})
}

func (e *Engine) UpdateInterval(ctx context.Context, minutes int) error {
	return e.Apply(ctx, Command{Kind: CmdUpdateInterval, IntervalMinutes: minutes})
}

func (e *Engine) UpdateDisabledHours(ctx context.Context, dh DisabledHours) error {
	return e.Apply(ctx, Command{Kind: CmdUpdateDisabledHours, DisabledHours: dh})
}

func (e *Engine) UpdateAlertProfile(ctx context.Context, p AlertProfile) error {
	return e.Apply(ctx, Command{Kind: CmdUpdateAlertProfile, Alert: p})
}

func (e *Engine) startLocked(minutes int) (*delivery, error) {
	if err := ValidateInterval(minutes); err != nil {
		return nil, err
	}
	if e.rt.Lifecycle == Active {
		if minutes == e.cfg.IntervalMinutes {
			return nil, nil
		}
		return e.updateIntervalLocked(minutes)
	}
	now := e.now()
	e.cfg.IntervalMinutes = minutes
	e.rt.Lifecycle = Active
	e.rt.LastFire = now
	return e.activateLocked(now, ReasonStart, true), nil
}

func (e *Engine) stopLocked() *delivery {
	if e.rt.Lifecycle == Inactive {
		return nil
	}
	e.cancelHandleLocked()
	e.stopReconcilerLocked()
	e.rt = RuntimeState{Lifecycle: Inactive, Epoch: e.rt.Epoch + 1}
	e.anchor = time.Time{}
	e.next = time.Time{}
	e.mode = e.opts.TimerMode
	e.setDegradedLocked(false)
	e.persistLocked()
	e.publishStateLocked()
	return e.statusDeliveryLocked(ReasonState, false)
}

func (e *Engine) pauseLocked() (*delivery, error) {
	switch e.rt.Lifecycle {
	case Inactive:
		return nil, fmt.Errorf("%w: pause while inactive", ErrInvalidTransition)
	case Paused:
		return nil, nil
	}
	e.cancelHandleLocked()
	e.stopReconcilerLocked()
	e.rt.Lifecycle = Paused
	e.anchor = time.Time{}
	e.next = time.Time{}
	e.mode = e.opts.TimerMode
	e.persistLocked()
	e.publishStateLocked()
	return e.statusDeliveryLocked(ReasonState, false), nil
}

func (e *Engine) resumeLocked() (*delivery, error) {
	switch e.rt.Lifecycle {
	case Inactive:
		return nil, fmt.Errorf("%w: resume while inactive", ErrInvalidTransition)
	case Active:
		return nil, nil
	}
	now := e.now()
	e.rt.Lifecycle = Active
	if !e.gatedLocked(now) {
		e.rt.LastFire = now
	}
	return e.activateLocked(now, ReasonResume, true), nil
}

func (e *Engine) updateIntervalLocked(minutes int) (*delivery, error) {
	if err := ValidateInterval(minutes); err != nil {
		return nil, err
	}
	if minutes == e.cfg.IntervalMinutes {
		return nil, nil
	}
	e.cfg.IntervalMinutes = minutes
	if e.rt.Lifecycle != Active {
		e.persistLocked()
		return nil, nil
	}
	now := e.now()
	e.rt.Epoch++
	e.anchor = now
	e.armAtLocked(now.Add(e.cfg.Interval()))
	e.startReconcilerLocked()
	e.persistLocked()
	e.publishStateLocked()
	return e.statusDeliveryLocked(ReasonState, e.gatedLocked(now)), nil
}

func (e *Engine) updateDisabledHoursLocked(dh DisabledHours) (*delivery, error) {
	if err := dh.Validate(); err != nil {
		return nil, err
	}
	if dh == e.cfg.DisabledHours {
		return nil, nil
	}
	e.cfg.DisabledHours = dh
	e.persistLocked()
	if e.rt.Lifecycle != Active {
		return nil, nil
	}
	return e.statusDeliveryLocked(ReasonState, e.gatedLocked(e.now())), nil
}

func (e *Engine) updateAlertProfileLocked(p AlertProfile) {
	p = p.normalized()
	if p == e.cfg.Alert {
		return
	}
	e.cfg.Alert = p
	e.persistLocked()
}

// activateLocked enters a fresh ACTIVE cycle starting at now. The caller has
// already set the lifecycle and LastFire.
func (e *Engine) activateLocked(now time.Time, reason AlertReason, alert bool) *delivery {
	e.rt.Epoch++
	e.anchor = now
	e.armAtLocked(now.Add(e.cfg.Interval()))
	e.startReconcilerLocked()
	e.persistLocked()
	e.publishStateLocked()

	gated := e.gatedLocked(now)
	d := e.statusDeliveryLocked(reason, gated)
	if alert && !gated {
		d.alert = e.alertContextLocked(now, reason)
	}
	return d
}

// OnDeadlineFired is the primary timer callback.
func (e *Engine) OnDeadlineFired(epoch uint64) {
	e.fire(epoch, ReasonDeadline)
}

func (e *Engine) fire(epoch uint64, reason AlertReason) {
	e.mu.Lock()
	if e.closed || e.rt.Lifecycle != Active || epoch != e.rt.Epoch {
		cur := e.rt.Epoch
		e.mu.Unlock()
		e.log.Trace("stale deadline dropped", logx.Uint64("epoch", epoch), logx.Uint64("current", cur))
		return
	}
	now := e.now()
	gated := e.gatedLocked(now)
	if !gated {
		e.rt.LastFire = now
	}
	e.rt.Epoch++
	e.anchor = now
	e.armAtLocked(now.Add(e.cfg.Interval()))
	e.startReconcilerLocked()
	e.persistLocked()

	d := e.statusDeliveryLocked(reason, gated)
	d.reserve = true
	ev := FireEvent{Reason: reason, Gated: gated, At: now, Next: e.next, Epoch: e.rt.Epoch}
	if !gated {
		d.alert = e.alertContextLocked(now, reason)
		ev.ID = d.alert.ID
	}
	e.publishLocked(EventFired, ev)
	e.mu.Unlock()

	e.log.Info("deadline fired",
		logx.String("reason", string(reason)),
		logx.Bool("gated", gated),
		logx.Uint64("epoch", ev.Epoch),
		logx.Time("next", ev.Next),
	)
	e.deliver(context.Background(), d)
}

// deliver runs the alert sink outside the engine lock, bounded by the
// reservation cap. Deliveries are serialised so status updates stay ordered.
func (e *Engine) deliver(ctx context.Context, d *delivery) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.inflight.Add(1)
	e.mu.Unlock()
	defer e.inflight.Done()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.ReservationCap)
	defer cancel()

	if d.reserve && e.deps.Reservations != nil {
		res, err := e.deps.Reservations.Acquire(ctx, "reminder "+string(d.status.Reason), e.opts.ReservationCap)
		if err != nil {
			e.log.Debug("reservation unavailable", logx.Err(err))
		} else if res != nil {
			defer res.Release()
		}
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("alert sink panicked", logx.Any("panic", r))
		}
	}()

	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()

	if d.alert != nil {
		e.emit(ctx, *d.alert)
	}
	if d.status.Epoch < e.lastStatusEpoch {
		return
	}
	e.lastStatusEpoch = d.status.Epoch
	if err := e.deps.Sink.UpdateStatus(ctx, d.status); err != nil {
		e.log.Warn("status update failed", logx.Err(err))
	}
}

// emit hands the alert to the sink once. Sinks own their fallback to the
// default profile so a fan-out never replays channels that already fired.
func (e *Engine) emit(ctx context.Context, a AlertContext) {
	if err := e.deps.Sink.Emit(ctx, a); err != nil {
		e.log.Error("alert failed", logx.String("alert_id", a.ID), logx.Err(err))
	}
}

// armAtLocked replaces the live handle with one for at under the current epoch.
func (e *Engine) armAtLocked(at time.Time) {
	e.cancelHandleLocked()
	e.next = at

	epoch := e.rt.Epoch
	mode := e.opts.TimerMode
	h, err := e.deps.Timer.Arm(at, epoch, mode, e.OnDeadlineFired)
	if errors.Is(err, deadline.ErrExactUnavailable) {
		mode = deadline.Inexact
		h, err = e.deps.Timer.Arm(at, epoch, mode, e.OnDeadlineFired)
		if err == nil {
			e.setDegradedLocked(true)
		}
	} else if err == nil && mode == deadline.Exact {
		e.setDegradedLocked(false)
	}
	if err != nil {
		e.log.Error("arm deadline failed; reconciler will recover", logx.Uint64("epoch", epoch), logx.Err(err))
		return
	}
	e.handle = h
	e.mode = mode
}

func (e *Engine) cancelHandleLocked() {
	if e.handle.IsZero() {
		return
	}
	e.deps.Timer.Cancel(e.handle)
	e.handle = deadline.Handle{}
}

func (e *Engine) setDegradedLocked(v bool) {
	if e.degraded == v {
		return
	}
	e.degraded = v
	if v {
		e.log.Warn("exact scheduling unavailable; using inexact deadlines")
	} else {
		e.log.Info("exact scheduling restored")
	}
	e.publishLocked(EventDegraded, v)
}

// persistLocked writes the whole state. Failures keep the state in memory and
// mark it dirty; the next mutation or reconciler tick retries.
func (e *Engine) persistLocked() {
	put, del := encodeState(persistedState{cfg: e.cfg, rt: e.rt, bootID: e.bootID})
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.PersistTimeout)
	defer cancel()

	err := e.deps.Store.Put(ctx, put)
	if err == nil && len(del) > 0 {
		err = e.deps.Store.Delete(ctx, del...)
	}
	if err != nil {
		if !e.dirty {
			e.log.Warn("persist failed; will retry", logx.Err(err))
		}
		e.dirty = true
		return
	}
	if e.dirty {
		e.log.Info("persist recovered")
	}
	e.dirty = false
}

func (e *Engine) loadLocked(ctx context.Context) {
	if e.loaded {
		return
	}
	e.loaded = true
	kv, err := e.deps.Store.Load(ctx)
	if err != nil {
		e.log.Warn("state load failed; using defaults", logx.Err(err))
		e.cfg = e.opts.Defaults
		e.rt = RuntimeState{}
		return
	}
	st := decodeState(kv, e.opts.Defaults)
	e.cfg = st.cfg
	e.rt = st.rt
	e.bootID = st.bootID
	e.log.Debug("state loaded",
		logx.String("lifecycle", e.rt.Lifecycle.String()),
		logx.Int("interval_min", e.cfg.IntervalMinutes),
		logx.Uint64("epoch", e.rt.Epoch),
	)
}

func (e *Engine) now() time.Time { return e.opts.Now() }

func (e *Engine) gatedLocked(now time.Time) bool {
	return IsGated(now.In(e.opts.Location), e.cfg.DisabledHours)
}

func (e *Engine) alertContextLocked(now time.Time, reason AlertReason) *AlertContext {
	return &AlertContext{
		ID:           uuid.NewString(),
		Reason:       reason,
		FiredAt:      now,
		NextDeadline: e.next,
		Interval:     e.cfg.Interval(),
		Profile:      e.cfg.Alert,
		Epoch:        e.rt.Epoch,
	}
}

func (e *Engine) statusDeliveryLocked(reason AlertReason, gated bool) *delivery {
	return &delivery{status: StatusUpdate{
		Lifecycle:    e.rt.Lifecycle,
		NextDeadline: e.next,
		Gated:        gated,
		Degraded:     e.degraded,
		Reason:       reason,
		Epoch:        e.rt.Epoch,
	}}
}

func (e *Engine) publishLocked(typ string, data any) {
	if e.deps.Bus == nil {
		return
	}
	e.deps.Bus.Publish(eventbus.Event{Type: typ, Time: e.now(), Data: data})
}

func (e *Engine) publishStateLocked() {
	e.publishLocked(EventState, e.statusLocked())
}

func (e *Engine) statusLocked() Status {
	return Status{
		Lifecycle:    e.rt.Lifecycle,
		Config:       e.cfg,
		Epoch:        e.rt.Epoch,
		LastFire:     e.rt.LastFire,
		NextDeadline: e.next,
		TimerMode:    e.mode,
		Degraded:     e.degraded,
		Dirty:        e.dirty,
		GatedNow:     e.gatedLocked(e.now()),
	}
}

// Status returns a snapshot including the current permission signals.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := e.statusLocked()
	e.mu.Unlock()

	st.CanScheduleExact = true
	st.PowerSavingExempt = true
	if p := e.deps.Permissions; p != nil {
		st.CanScheduleExact = p.CanScheduleExact()
		st.PowerSavingExempt = p.IsPowerSavingExempt()
	}
	return st
}

// Location is the zone used for quiet hours and status text.
func (e *Engine) Location() *time.Location { return e.opts.Location }

// RequestPermissions asks the permission provider for everything the engine
// can use, then re-checks the timer so a granted exact permission takes effect.
func (e *Engine) RequestPermissions(ctx context.Context) error {
	p := e.deps.Permissions
	if p == nil {
		return nil
	}
	var errs []error
	if !p.CanScheduleExact() {
		if err := p.RequestExactPermission(ctx); err != nil {
			errs = append(errs, fmt.Errorf("exact scheduling: %w", err))
		}
	}
	if !p.IsPowerSavingExempt() {
		if err := p.RequestPowerSavingExemption(ctx); err != nil {
			errs = append(errs, fmt.Errorf("power saving exemption: %w", err))
		}
	}
	e.Reconcile()
	return errors.Join(errs...)
}

// Close disarms everything, flushes dirty state and waits for in-flight
// deliveries until ctx expires. The store stays open.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.cancelHandleLocked()
	e.stopReconcilerLocked()
	var err error
	if e.dirty {
		e.persistLocked()
		if e.dirty {
			err = errors.New("reminder: state not persisted")
		}
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, fmt.Errorf("reminder: waiting for deliveries: %w", ctx.Err()))
	}
	return err
}

type nopSink struct{}

func (nopSink) Emit(context.Context, AlertContext) error         { return nil }
func (nopSink) UpdateStatus(context.Context, StatusUpdate) error { return nil }
