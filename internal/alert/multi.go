package alert

import (
	"context"
	"errors"

	"reminderd/internal/reminder"
)

// Multi delivers to every sink in order and joins their errors.
type Multi []reminder.AlertSink

var _ reminder.AlertSink = Multi(nil)

func (m Multi) Emit(ctx context.Context, a reminder.AlertContext) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) UpdateStatus(ctx context.Context, st reminder.StatusUpdate) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.UpdateStatus(ctx, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
