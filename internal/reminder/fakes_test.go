package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"reminderd/internal/deadline"
	"reminderd/internal/eventbus"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type armCall struct {
	h     deadline.Handle
	at    time.Time
	epoch uint64
	mode  deadline.Mode
}

type fakeTimer struct {
	mu          sync.Mutex
	seq         uint64
	arms        []armCall
	live        map[deadline.Handle]armCall
	exactDenied bool
}

func newFakeTimer() *fakeTimer { return &fakeTimer{live: map[deadline.Handle]armCall{}} }

func (f *fakeTimer) Arm(at time.Time, epoch uint64, mode deadline.Mode, _ deadline.FireFunc) (deadline.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mode == deadline.Exact && f.exactDenied {
		return deadline.Handle{}, deadline.ErrExactUnavailable
	}
	f.seq++
	c := armCall{h: deadline.NewHandle(f.seq), at: at, epoch: epoch, mode: mode}
	f.arms = append(f.arms, c)
	f.live[c.h] = c
	return c.h, nil
}

func (f *fakeTimer) Cancel(h deadline.Handle) {
	f.mu.Lock()
	delete(f.live, h)
	f.mu.Unlock()
}

func (f *fakeTimer) setExactDenied(v bool) {
	f.mu.Lock()
	f.exactDenied = v
	f.mu.Unlock()
}

func (f *fakeTimer) armCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.arms)
}

func (f *fakeTimer) liveCalls() []armCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]armCall, 0, len(f.live))
	for _, c := range f.live {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].epoch < out[j].epoch })
	return out
}

// onlyLive fails unless exactly one deadline is armed, and returns it.
func (f *fakeTimer) onlyLive(t *testing.T) armCall {
	t.Helper()
	live := f.liveCalls()
	if len(live) != 1 {
		t.Fatalf("live deadlines = %d (%+v), want 1", len(live), live)
	}
	return live[0]
}

type fakeSink struct {
	mu       sync.Mutex
	emits    []AlertContext
	statuses []StatusUpdate
	failEmit func(AlertContext) error
	panicky  bool
}

func (s *fakeSink) Emit(_ context.Context, a AlertContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicky {
		panic("speaker on fire")
	}
	s.emits = append(s.emits, a)
	if s.failEmit != nil {
		return s.failEmit(a)
	}
	return nil
}

func (s *fakeSink) UpdateStatus(_ context.Context, u StatusUpdate) error {
	s.mu.Lock()
	s.statuses = append(s.statuses, u)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) emitted() []AlertContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AlertContext(nil), s.emits...)
}

func (s *fakeSink) lastStatus(t *testing.T) StatusUpdate {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		t.Fatal("no status update delivered")
	}
	return s.statuses[len(s.statuses)-1]
}

type fakeReservations struct {
	mu       sync.Mutex
	acquired int
	released int
	caps     []time.Duration
}

type fakeReservation struct {
	p    *fakeReservations
	once sync.Once
}

func (r *fakeReservation) Release() {
	r.once.Do(func() {
		r.p.mu.Lock()
		r.p.released++
		r.p.mu.Unlock()
	})
}

func (p *fakeReservations) Acquire(_ context.Context, _ string, hardCap time.Duration) (Reservation, error) {
	p.mu.Lock()
	p.acquired++
	p.caps = append(p.caps, hardCap)
	p.mu.Unlock()
	return &fakeReservation{p: p}, nil
}

func (p *fakeReservations) counts() (acquired, released int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired, p.released
}

type fakePermissions struct {
	mu    sync.Mutex
	exact bool
}

func (p *fakePermissions) CanScheduleExact() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exact
}

func (p *fakePermissions) RequestExactPermission(context.Context) error {
	p.mu.Lock()
	p.exact = true
	p.mu.Unlock()
	return nil
}

func (p *fakePermissions) IsPowerSavingExempt() bool { return true }

func (p *fakePermissions) RequestPowerSavingExemption(context.Context) error { return nil }

// manualTicks records the reconciler registration; tests drive it with tick().
type manualTicks struct {
	mu     sync.Mutex
	every  time.Duration
	fn     func()
	active bool
	starts int
}

func (m *manualTicks) Every(d time.Duration, fn func()) func() {
	m.mu.Lock()
	m.every, m.fn, m.active = d, fn, true
	m.starts++
	gen := m.starts
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		if m.starts == gen {
			m.active = false
		}
		m.mu.Unlock()
	}
}

func (m *manualTicks) tick() {
	m.mu.Lock()
	fn, active := m.fn, m.active
	m.mu.Unlock()
	if active && fn != nil {
		fn()
	}
}

func (m *manualTicks) state() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.every, m.active
}

type flakyStore struct {
	storage.Store
	mu         sync.Mutex
	failWrites bool
	failReads  bool
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) setFailWrites(v bool) {
	s.mu.Lock()
	s.failWrites = v
	s.mu.Unlock()
}

func (s *flakyStore) Load(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	fail := s.failReads
	s.mu.Unlock()
	if fail {
		return nil, errDiskFull
	}
	return s.Store.Load(ctx)
}

func (s *flakyStore) Put(ctx context.Context, kv map[string]string) error {
	s.mu.Lock()
	fail := s.failWrites
	s.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return s.Store.Put(ctx, kv)
}

type harness struct {
	engine *Engine
	clock  *fakeClock
	timer  *fakeTimer
	sink   *fakeSink
	res    *fakeReservations
	perms  *fakePermissions
	ticks  *manualTicks
	store  *flakyStore
	bus    eventbus.Bus
}

func newHarness(t *testing.T, seed map[string]string, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		clock: &fakeClock{now: t0},
		timer: newFakeTimer(),
		sink:  &fakeSink{},
		res:   &fakeReservations{},
		perms: &fakePermissions{exact: true},
		ticks: &manualTicks{},
		store: &flakyStore{Store: storage.NewMemory()},
		bus:   eventbus.New(),
	}
	if len(seed) > 0 {
		if err := h.store.Store.Put(context.Background(), seed); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	opts := Options{Location: time.UTC, Now: h.clock.Now}
	if mutate != nil {
		mutate(&opts)
	}
	e, err := New(Deps{
		Store:        h.store,
		Timer:        h.timer,
		Sink:         h.sink,
		Permissions:  h.perms,
		Reservations: h.res,
		Ticks:        h.ticks,
		Bus:          h.bus,
	}, opts, logx.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	h.engine = e
	return h
}

func (h *harness) persisted(t *testing.T) map[string]string {
	t.Helper()
	kv, err := h.store.Store.Load(context.Background())
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	return kv
}
