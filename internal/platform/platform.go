package platform

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

var ErrUnsupported = errors.New("platform: not supported on this host")

// TimerPolicy mirrors the timer.mode config value.
type TimerPolicy string

const (
	TimerAuto    TimerPolicy = "auto"
	TimerExact   TimerPolicy = "exact"
	TimerInexact TimerPolicy = "inexact"
)

const bootIDPath = "/proc/sys/kernel/random/boot_id"

// BootID returns the kernel boot id, or "" when unavailable.
func BootID() string {
	b, err := os.ReadFile(bootIDPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// nopReservation is returned when no inhibitor could be taken.
type nopReservation struct{}

func (nopReservation) Release() {}

// capped releases fn exactly once: on Release or when the hard cap elapses.
type capped struct {
	once  sync.Once
	timer *time.Timer
	fn    func()
}

func newCapped(hardCap time.Duration, fn func()) *capped {
	c := &capped{fn: fn}
	c.timer = time.AfterFunc(hardCap, c.Release)
	return c
}

func (c *capped) Release() {
	c.once.Do(func() {
		c.timer.Stop()
		c.fn()
	})
}

// NopReservations never blocks sleep.
type NopReservations struct{}

func (NopReservations) Acquire(context.Context, string, time.Duration) (reminder.Reservation, error) {
	return nopReservation{}, nil
}

// SleepFunc receives true right before the machine suspends and false after it resumes.
type SleepFunc func(sleeping bool)

func logSleep(log logx.Logger, sleeping bool) {
	if sleeping {
		log.Info("system suspending")
		return
	}
	log.Info("system resumed")
}
