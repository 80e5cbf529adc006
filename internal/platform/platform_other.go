//go:build !linux

package platform

import (
	"context"
	"time"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

type Inhibitor struct{}

func NewInhibitor(string, bool, logx.Logger) *Inhibitor { return &Inhibitor{} }

func (*Inhibitor) Acquire(context.Context, string, time.Duration) (reminder.Reservation, error) {
	return nil, ErrUnsupported
}

func (*Inhibitor) Close() {}

func WatchSleep(ctx context.Context, _ logx.Logger, _ SleepFunc) error {
	<-ctx.Done()
	return ctx.Err()
}

type Permissions struct{ policy TimerPolicy }

func NewPermissions(policy TimerPolicy, _ logx.Logger) *Permissions {
	return &Permissions{policy: policy}
}

func (p *Permissions) CanScheduleExact() bool { return p.policy != TimerInexact }

func (p *Permissions) RequestExactPermission(context.Context) error {
	if p.CanScheduleExact() {
		return nil
	}
	return ErrUnsupported
}

func (*Permissions) IsPowerSavingExempt() bool { return false }

func (*Permissions) RequestPowerSavingExemption(context.Context) error { return ErrUnsupported }
