//go:build linux

package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/login1"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

// Inhibitor hands out logind "sleep" delay locks. Each lock is released when
// the reservation is released or its hard cap elapses, whichever comes first.
type Inhibitor struct {
	log  logx.Logger
	who  string
	mode string

	mu   sync.Mutex
	conn *login1.Conn
}

// NewInhibitor connects lazily; a missing logind only disables reservations.
func NewInhibitor(who string, block bool, log logx.Logger) *Inhibitor {
	mode := "delay"
	if block {
		mode = "block"
	}
	if who == "" {
		who = "reminderd"
	}
	return &Inhibitor{log: log.With(logx.String("comp", "inhibitor")), who: who, mode: mode}
}

func (i *Inhibitor) connLocked() (*login1.Conn, error) {
	if i.conn != nil {
		return i.conn, nil
	}
	c, err := login1.New()
	if err != nil {
		return nil, fmt.Errorf("logind: %w", err)
	}
	i.conn = c
	return c, nil
}

func (i *Inhibitor) Acquire(ctx context.Context, why string, hardCap time.Duration) (reminder.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.Lock()
	conn, err := i.connLocked()
	if err != nil {
		i.mu.Unlock()
		return nil, err
	}
	f, err := conn.Inhibit("sleep", i.who, why, i.mode)
	if err != nil {
		// Drop the connection; the next Acquire reconnects.
		conn.Close()
		i.conn = nil
		i.mu.Unlock()
		return nil, fmt.Errorf("logind inhibit: %w", err)
	}
	i.mu.Unlock()

	started := time.Now()
	i.log.Debug("sleep inhibitor taken", logx.String("why", why), logx.Duration("cap", hardCap))
	return newCapped(hardCap, func() {
		_ = f.Close()
		i.log.Debug("sleep inhibitor released", logx.Duration("held", time.Since(started)))
	}), nil
}

func (i *Inhibitor) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.conn != nil {
		i.conn.Close()
		i.conn = nil
	}
}
