package alert

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"reminderd/internal/reminder"
	"reminderd/internal/storage"
	kit "reminderd/internal/transport"
	logx "reminderd/pkg/logx"
)

// Callback data carried by the status message buttons.
const (
	ActionPause  = "reminder:pause"
	ActionResume = "reminder:resume"
	ActionStatus = "reminder:status"
)

// statusRefKey persists the status message across restarts so it keeps being edited.
const statusRefKey = "telegramStatusMessage"

type TelegramConfig struct {
	Target     kit.ChatTarget
	RatePerSec float64
	Burst      int
	Location   *time.Location
}

// TelegramSink posts one message per alert and keeps a single status message
// up to date with Pause/Resume buttons.
type TelegramSink struct {
	cfg     TelegramConfig
	adapter kit.Adapter
	store   storage.Store
	log     logx.Logger
	limiter *rate.Limiter

	mu         sync.Mutex
	ref        kit.MessageRef
	refLoaded  bool
	lastStatus string
}

func NewTelegramSink(cfg TelegramConfig, adapter kit.Adapter, store storage.Store, log logx.Logger) (*TelegramSink, error) {
	if adapter == nil {
		return nil, errors.New("alert: telegram adapter is required")
	}
	if cfg.Target.IsZero() {
		return nil, errors.New("alert: telegram chat id is required")
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 3
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &TelegramSink{
		cfg:     cfg,
		adapter: adapter,
		store:   store,
		log:     log.With(logx.String("comp", "alert.telegram")),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
	}, nil
}

func (s *TelegramSink) Emit(ctx context.Context, a reminder.AlertContext) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.adapter.SendText(ctx, s.cfg.Target, alertText(a, s.cfg.Location), &kit.SendOptions{
		DisablePreview: true,
		Silent:         !a.Profile.VibrationEnabled,
	})
	if err != nil {
		return fmt.Errorf("telegram alert: %w", err)
	}
	return nil
}

func alertText(a reminder.AlertContext, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("⏰ Reminder")
	switch a.Reason {
	case reminder.ReasonMissed:
		b.WriteString(" (late)")
	case reminder.ReasonBoot:
		b.WriteString(" (after reboot)")
	}
	if !a.NextDeadline.IsZero() {
		b.WriteString("\nNext at ")
		b.WriteString(a.NextDeadline.In(loc).Format("15:04"))
	}
	return b.String()
}

func statusButtons(l reminder.Lifecycle) []kit.Button {
	switch l {
	case reminder.Active:
		return []kit.Button{{Text: "Pause", Data: ActionPause}, {Text: "Status", Data: ActionStatus}}
	case reminder.Paused:
		return []kit.Button{{Text: "Resume", Data: ActionResume}, {Text: "Status", Data: ActionStatus}}
	}
	return nil
}

func (s *TelegramSink) statusText(st reminder.StatusUpdate) string {
	txt := st.Text(s.cfg.Location)
	if st.Degraded {
		txt += "\n⚠️ exact timing unavailable, alerts may be late"
	}
	return txt
}

func (s *TelegramSink) UpdateStatus(ctx context.Context, st reminder.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadRefLocked(ctx)
	text := s.statusText(st)
	key := st.Lifecycle.String() + "\x00" + text
	if key == s.lastStatus && !s.ref.IsZero() {
		return nil
	}
	opt := &kit.SendOptions{DisablePreview: true, Silent: true, Buttons: statusButtons(st.Lifecycle)}

	if !s.ref.IsZero() {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		err := s.adapter.EditText(ctx, s.ref, text, opt)
		if err == nil {
			s.lastStatus = key
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		// Deleted or too old to edit: post a fresh one.
		s.log.Debug("status edit failed, reposting", logx.Err(err))
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	ref, err := s.adapter.SendText(ctx, s.cfg.Target, text, opt)
	if err != nil {
		return fmt.Errorf("telegram status: %w", err)
	}
	s.ref = ref
	s.lastStatus = key
	s.saveRefLocked(ctx)
	return nil
}

func (s *TelegramSink) loadRefLocked(ctx context.Context) {
	if s.refLoaded || s.store == nil {
		return
	}
	s.refLoaded = true
	kv, err := s.store.Load(ctx)
	if err != nil {
		s.log.Warn("status message ref load failed", logx.Err(err))
		return
	}
	if ref, ok := parseRef(kv[statusRefKey]); ok && ref.ChatID == s.cfg.Target.ChatID {
		s.ref = ref
	}
}

func (s *TelegramSink) saveRefLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Put(ctx, map[string]string{statusRefKey: formatRef(s.ref)}); err != nil {
		s.log.Warn("status message ref save failed", logx.Err(err))
	}
}

func formatRef(r kit.MessageRef) string {
	return strconv.FormatInt(r.ChatID, 10) + ":" + strconv.Itoa(r.ThreadID) + ":" + strconv.Itoa(r.MessageID)
}

func parseRef(s string) (kit.MessageRef, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return kit.MessageRef{}, false
	}
	chat, err1 := strconv.ParseInt(parts[0], 10, 64)
	thread, err2 := strconv.Atoi(parts[1])
	msg, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || msg == 0 {
		return kit.MessageRef{}, false
	}
	return kit.MessageRef{ChatID: chat, ThreadID: thread, MessageID: msg}, true
}
