//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sddbus "github.com/coreos/go-systemd/v22/dbus"
	"golang.org/x/sys/unix"

	logx "reminderd/pkg/logx"
)

var sleepTargets = []string{"sleep.target", "suspend.target", "hibernate.target", "hybrid-sleep.target"}

// Permissions answers the engine's permission questions from the host:
//   - exact scheduling: timer policy "exact", or "auto" with CAP_WAKE_ALARM
//   - power-saving exemption: sleep.target is masked, so the host never suspends
//
// The exact deadline variant is a wall-clock checked timer inside the process
// and does not itself use an alarm clock. Under "auto", CAP_WAKE_ALARM is the
// signal that the unit was provisioned for timely wakeups; without it the
// engine reports itself degraded and arms inexact deadlines. Set timer.mode
// to "exact" to opt out of the capability check.
type Permissions struct {
	log    logx.Logger
	policy TimerPolicy

	mu        sync.Mutex
	exempt    bool
	checkedAt time.Time
}

const exemptCacheTTL = time.Minute

func NewPermissions(policy TimerPolicy, log logx.Logger) *Permissions {
	if policy == "" {
		policy = TimerAuto
	}
	return &Permissions{log: log.With(logx.String("comp", "permissions")), policy: policy}
}

func (p *Permissions) CanScheduleExact() bool {
	switch p.policy {
	case TimerExact:
		return true
	case TimerInexact:
		return false
	}
	return hasWakeAlarm()
}

func (p *Permissions) RequestExactPermission(ctx context.Context) error {
	_ = ctx
	if p.CanScheduleExact() {
		return nil
	}
	if p.policy == TimerInexact {
		return errors.New("timer.mode is inexact")
	}
	return errors.New("grant CAP_WAKE_ALARM (AmbientCapabilities=CAP_WAKE_ALARM in the unit) or set timer.mode: exact")
}

func (p *Permissions) IsPowerSavingExempt() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.checkedAt.IsZero() && time.Since(p.checkedAt) < exemptCacheTTL {
		return p.exempt
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	exempt, err := sleepMasked(ctx)
	if err != nil {
		p.log.Debug("sleep.target state unavailable", logx.Err(err))
	}
	p.exempt = exempt
	p.checkedAt = time.Now()
	return exempt
}

// RequestPowerSavingExemption masks the sleep targets until the next reboot.
func (p *Permissions) RequestPowerSavingExemption(ctx context.Context) error {
	conn, err := sddbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("systemd: %w", err)
	}
	defer conn.Close()

	if _, err := conn.MaskUnitFilesContext(ctx, sleepTargets, true, false); err != nil {
		return fmt.Errorf("mask sleep targets: %w", err)
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return fmt.Errorf("systemd reload: %w", err)
	}
	p.mu.Lock()
	p.checkedAt = time.Time{}
	p.mu.Unlock()
	p.log.Info("sleep targets masked until reboot")
	return nil
}

func sleepMasked(ctx context.Context) (bool, error) {
	conn, err := sddbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	prop, err := conn.GetUnitPropertyContext(ctx, "sleep.target", "LoadState")
	if err != nil {
		return false, err
	}
	state, _ := prop.Value.Value().(string)
	return state == "masked", nil
}

func hasWakeAlarm() bool {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData
	if err := unix.Capget(&hdr, &data[0]); err != nil {
		return false
	}
	const bit = unix.CAP_WAKE_ALARM
	return data[bit/32].Effective&(1<<(bit%32)) != 0
}
