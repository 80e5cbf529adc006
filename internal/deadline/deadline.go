package deadline

import (
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "reminderd/pkg/logx"
)

var (
	// ErrExactUnavailable is a degraded-mode signal, not a failure: the caller
	// should re-arm the same deadline in Inexact mode.
	ErrExactUnavailable = errors.New("exact scheduling unavailable")
	ErrStopped          = errors.New("deadline service stopped")
)

type Mode int

const (
	Exact Mode = iota
	Inexact
)

func (m Mode) String() string {
	if m == Inexact {
		return "inexact"
	}
	return "exact"
}

// Handle identifies one armed deadline. The zero Handle is never armed.
type Handle struct{ id uint64 }

func (h Handle) IsZero() bool { return h.id == 0 }

// NewHandle builds a handle for timers implemented outside this package. id must be non-zero.
func NewHandle(id uint64) Handle { return Handle{id: id} }

// FireFunc receives the epoch the deadline was armed with.
type FireFunc func(epoch uint64)

// Capability reports whether exact scheduling is currently permitted.
type Capability interface {
	CanScheduleExact() bool
}

type Config struct {
	// MaxSleep caps a single exact-timer sleep (default 30s).
	MaxSleep time.Duration
	// Granularity is the inexact sweep period (default 30s, minimum 1s).
	Granularity time.Duration
	// Now overrides the wall clock (tests).
	Now func() time.Time
}

type entry struct {
	id    uint64
	at    time.Time
	epoch uint64
	mode  Mode
	fire  FireFunc
	timer *time.Timer // exact only
}

type Service struct {
	log  logx.Logger
	cfg  Config
	caps Capability

	mu      sync.Mutex
	seq     uint64
	entries map[uint64]*entry
	sweeper *cron.Cron
	stopped bool
}

func New(cfg Config, caps Capability, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MaxSleep <= 0 {
		cfg.MaxSleep = 30 * time.Second
	}
	if cfg.Granularity < time.Second {
		cfg.Granularity = 30 * time.Second
	}
	if cfg.Now == nil {
		// Strip the monotonic reading: comparisons must follow the wall clock.
		cfg.Now = func() time.Time { return time.Now().Round(0) }
	}
	return &Service{
		log:     log,
		cfg:     cfg,
		caps:    caps,
		entries: map[uint64]*entry{},
	}
}

// Arm registers fire to run once the wall clock reaches at.
func (s *Service) Arm(at time.Time, epoch uint64, mode Mode, fire FireFunc) (Handle, error) {
	if fire == nil {
		return Handle{}, errors.New("deadline: nil fire func")
	}
	if mode == Exact && s.caps != nil && !s.caps.CanScheduleExact() {
		return Handle{}, ErrExactUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return Handle{}, ErrStopped
	}

	s.seq++
	e := &entry{id: s.seq, at: at.Round(0), epoch: epoch, mode: mode, fire: fire}
	s.entries[e.id] = e

	switch mode {
	case Exact:
		id := e.id
		e.timer = time.AfterFunc(s.sleepFor(e.at), func() { s.check(id) })
	default:
		s.ensureSweeperLocked()
	}

	s.log.Debug("deadline armed",
		logx.Uint64("handle", e.id),
		logx.Uint64("epoch", epoch),
		logx.String("mode", mode.String()),
		logx.Time("at", e.at),
	)
	return Handle{id: e.id}, nil
}

// Cancel disarms h. Cancelling an unknown or already fired handle is a no-op.
func (s *Service) Cancel(h Handle) {
	if h.IsZero() {
		return
	}
	s.mu.Lock()
	e, ok := s.entries[h.id]
	if ok {
		delete(s.entries, h.id)
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	s.mu.Unlock()
	if ok {
		s.log.Debug("deadline cancelled", logx.Uint64("handle", h.id), logx.Uint64("epoch", e.epoch))
	}
}

// Pending returns the number of armed deadlines.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop disarms everything. Arm fails with ErrStopped afterwards.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.entries, id)
	}
	c := s.sweeper
	s.sweeper = nil
	s.mu.Unlock()

	if c != nil {
		// Don't wait for a running sweep: it may be blocked on a fire callback.
		c.Stop()
	}
}

func (s *Service) sleepFor(at time.Time) time.Duration {
	d := at.Sub(s.cfg.Now())
	if d < 0 {
		d = 0
	}
	if d > s.cfg.MaxSleep {
		d = s.cfg.MaxSleep
	}
	return d
}

// check runs on the exact timer goroutine: fire if due, otherwise sleep again.
func (s *Service) check(id uint64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if s.cfg.Now().Before(e.at) {
		e.timer = time.AfterFunc(s.sleepFor(e.at), func() { s.check(id) })
		s.mu.Unlock()
		return
	}
	delete(s.entries, id)
	s.mu.Unlock()

	e.fire(e.epoch)
}

func (s *Service) ensureSweeperLocked() {
	if s.sweeper != nil {
		return
	}
	c := cron.New()
	c.Schedule(cron.Every(s.cfg.Granularity), cron.FuncJob(func() { s.sweep(s.cfg.Now()) }))
	c.Start()
	s.sweeper = c
	s.log.Debug("inexact sweeper started", logx.Duration("granularity", s.cfg.Granularity))
}

// sweep fires every due inexact entry.
func (s *Service) sweep(now time.Time) {
	s.mu.Lock()
	var due []*entry
	for id, e := range s.entries {
		if e.mode != Inexact || now.Before(e.at) {
			continue
		}
		delete(s.entries, id)
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		go e.fire(e.epoch)
	}
}
