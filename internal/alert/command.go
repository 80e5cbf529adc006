package alert

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

// DefaultVibrationPattern is wait/vibrate/pause/... in milliseconds.
var DefaultVibrationPattern = []int{0, 300, 200, 300, 200, 300}

// CommandConfig describes the local player commands. Arguments may contain
// {sound}, {pattern}, {reason} and {id}; they are substituted per alert.
type CommandConfig struct {
	SoundCommand   []string
	VibrateCommand []string
	Pattern        []int
	Timeout        time.Duration
}

var ErrCommandFailed = errors.New("alert command failed")

// CommandSink plays the alert through local commands (e.g. paplay, a
// rumble helper). It has no status surface.
type CommandSink struct {
	cfg CommandConfig
	log logx.Logger
	run func(ctx context.Context, argv []string) ([]byte, error)
}

func NewCommandSink(cfg CommandConfig, log logx.Logger) *CommandSink {
	if len(cfg.Pattern) == 0 {
		cfg.Pattern = DefaultVibrationPattern
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandSink{cfg: cfg, log: log.With(logx.String("comp", "alert.command")), run: runCommand}
}

func runCommand(ctx context.Context, argv []string) ([]byte, error) {
	return exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
}

func (s *CommandSink) Emit(ctx context.Context, a reminder.AlertContext) error {
	vars := map[string]string{
		"{sound}":   a.Profile.SoundRef,
		"{pattern}": patternString(s.cfg.Pattern),
		"{reason}":  string(a.Reason),
		"{id}":      a.ID,
	}
	var errs []error
	if err := s.exec(ctx, "sound", s.cfg.SoundCommand, vars); err != nil {
		if a.Profile.SoundRef == "" || a.Profile.SoundRef == reminder.DefaultSoundRef {
			errs = append(errs, err)
		} else {
			// Unplayable custom sound: replay the default, leave vibration alone.
			s.log.Warn("custom sound failed; using default", logx.String("alert_id", a.ID), logx.String("sound", a.Profile.SoundRef))
			vars["{sound}"] = reminder.DefaultSoundRef
			if err := s.exec(ctx, "sound", s.cfg.SoundCommand, vars); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if a.Profile.VibrationEnabled {
		if err := s.exec(ctx, "vibrate", s.cfg.VibrateCommand, vars); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *CommandSink) UpdateStatus(context.Context, reminder.StatusUpdate) error { return nil }

func (s *CommandSink) exec(ctx context.Context, what string, tmpl []string, vars map[string]string) error {
	if len(tmpl) == 0 || strings.TrimSpace(tmpl[0]) == "" {
		return nil
	}
	argv := expandArgs(tmpl, vars)
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out, err := s.run(cctx, argv)
	if err != nil {
		s.log.Warn("alert command failed", logx.String("what", what), logx.String("cmd", argv[0]), logx.String("output", tail(out, 256)), logx.Err(err))
		return fmt.Errorf("%w: %s: %w", ErrCommandFailed, what, err)
	}
	s.log.Debug("alert command done", logx.String("what", what), logx.Duration("took", time.Since(start)))
	return nil
}

func expandArgs(tmpl []string, vars map[string]string) []string {
	out := make([]string, len(tmpl))
	for i, arg := range tmpl {
		for k, v := range vars {
			arg = strings.ReplaceAll(arg, k, v)
		}
		out[i] = arg
	}
	return out
}

func patternString(p []int) string {
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
