package alert

import (
	"context"
	"time"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

// LogSink writes every alert and status change as a structured log line.
type LogSink struct {
	log logx.Logger
	loc *time.Location
}

func NewLogSink(log logx.Logger, loc *time.Location) *LogSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSink{log: log.With(logx.String("comp", "alert.log")), loc: loc}
}

func (s *LogSink) Emit(_ context.Context, a reminder.AlertContext) error {
	s.log.Info("reminder alert",
		logx.String("id", a.ID),
		logx.String("reason", string(a.Reason)),
		logx.Time("fired_at", a.FiredAt),
		logx.Time("next", a.NextDeadline),
		logx.Bool("vibration", a.Profile.VibrationEnabled),
		logx.String("sound", a.Profile.SoundRef),
		logx.Uint64("epoch", a.Epoch),
	)
	return nil
}

func (s *LogSink) UpdateStatus(_ context.Context, st reminder.StatusUpdate) error {
	s.log.Info("reminder status",
		logx.String("text", st.Text(s.loc)),
		logx.String("reason", string(st.Reason)),
		logx.Bool("degraded", st.Degraded),
		logx.Uint64("epoch", st.Epoch),
	)
	return nil
}
