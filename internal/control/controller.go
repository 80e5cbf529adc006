package control

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reminderd/internal/alert"
	"reminderd/internal/reminder"
	rtsup "reminderd/internal/runtime/supervisor"
	kit "reminderd/internal/transport"
	logx "reminderd/pkg/logx"
)

// Engine is the part of reminder.Engine the chat surface drives.
type Engine interface {
	Apply(ctx context.Context, cmd reminder.Command) error
	Status() reminder.Status
	RequestPermissions(ctx context.Context) error
	Location() *time.Location
}

// Controller turns owner chat commands and status-message buttons into engine
// commands. Requests run one at a time in arrival order.
type Controller struct {
	engine  Engine
	adapter kit.Adapter
	log     logx.Logger
	timeout time.Duration

	mu     sync.RWMutex
	owners []int64

	jobs chan func()
}

func New(engine Engine, adapter kit.Adapter, owners []int64, timeout time.Duration, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Controller{
		engine:  engine,
		adapter: adapter,
		log:     log.With(logx.String("comp", "control")),
		timeout: timeout,
		owners:  slices.Clone(owners),
		jobs:    make(chan func(), 64),
	}
}

// SetOwners replaces the owner list; safe during hot reload.
func (c *Controller) SetOwners(owners []int64) {
	c.mu.Lock()
	c.owners = slices.Clone(owners)
	c.mu.Unlock()
}

func (c *Controller) isOwner(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.owners, id)
}

// Menu lists the commands for the chat client's command menu.
func Menu() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(commands))
	for _, s := range commands {
		out = append(out, kit.BotCommand{Command: s.name, Description: s.desc})
	}
	return out
}

// Run dispatches updates until ctx is done or updates is closed.
func (c *Controller) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(c.log), rtsup.WithCancelOnError(false))

	if up, ok := c.adapter.(kit.CommandMenuUpdater); ok {
		sup.Go("menu.update", func(ctx context.Context) error {
			mctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, Menu()); err != nil {
				c.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}

	sup.GoRestart("command.worker", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case job := <-c.jobs:
				job()
			}
		}
	}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		c.log.Info("command dispatcher stopped")
	}()

	c.log.Info("command dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			c.route(ctx, up)
		}
	}
}

func (c *Controller) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			c.routeMessage(ctx, up)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			c.routeCallback(ctx, up)
		}
	}
}

func (c *Controller) newRequest(up kit.Update, chat kit.ChatTarget, from int64, cmd, text string) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: cmd,
		Text:    text,
		Log: c.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", cmd),
		),
	}
}

func (c *Controller) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if !c.isOwner(msg.FromID) {
		_, _ = c.adapter.SendText(ctx, chat, "unauthorized", nil)
		return
	}
	name, _, _ := strings.Cut(text, " ")
	req := c.newRequest(up, chat, msg.FromID, name, text)
	h := Chain(c.handleMessage, MWPanicRecover(), MWRequestLog(), MWTimeout(c.timeout))
	if !c.tryEnqueue(func() { _ = h(ctx, req) }) {
		_, _ = c.adapter.SendText(ctx, chat, "busy, try again", nil)
	}
}

func (c *Controller) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if !c.isOwner(cb.FromID) {
		_ = c.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}
	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	req := c.newRequest(up, chat, cb.FromID, "cb:"+cb.Data, cb.Data)
	h := Chain(c.handleCallback, MWPanicRecover(), MWRequestLog(), MWTimeout(c.timeout))
	if !c.tryEnqueue(func() { _ = h(ctx, req) }) {
		_ = c.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (c *Controller) tryEnqueue(fn func()) bool {
	select {
	case c.jobs <- fn:
		return true
	default:
		return false
	}
}

func (c *Controller) handleMessage(ctx context.Context, req *Request) error {
	act, err := Parse(req.Text, c.engine.Status().Config)
	if err != nil {
		c.reply(ctx, req, err.Error())
		return nil
	}
	switch act.Op {
	case OpHelp:
		c.reply(ctx, req, helpText())
		return nil
	case OpStatus:
		c.reply(ctx, req, StatusText(c.engine.Status(), c.engine.Location()))
		return nil
	case OpPermissions:
		err := c.engine.RequestPermissions(ctx)
		txt := StatusText(c.engine.Status(), c.engine.Location())
		if err != nil {
			txt = err.Error() + "\n\n" + txt
		}
		c.reply(ctx, req, txt)
		return err
	}

	if err := c.engine.Apply(ctx, act.Cmd); err != nil {
		c.reply(ctx, req, friendly(err))
		if isUserError(err) {
			return nil
		}
		return err
	}
	// Lifecycle commands are acknowledged by the status message itself.
	switch act.Cmd.Kind {
	case reminder.CmdUpdateInterval, reminder.CmdUpdateDisabledHours, reminder.CmdUpdateAlertProfile:
		c.reply(ctx, req, "saved")
	}
	return nil
}

func (c *Controller) handleCallback(ctx context.Context, req *Request) error {
	id := req.Update.Callback.ID
	var (
		kind reminder.CommandKind
		ack  string
	)
	switch req.Text {
	case alert.ActionPause:
		kind, ack = reminder.CmdPause, "paused"
	case alert.ActionResume:
		kind, ack = reminder.CmdResume, "resumed"
	case alert.ActionStatus:
		_ = c.adapter.AnswerCallback(ctx, id, "")
		c.reply(ctx, req, StatusText(c.engine.Status(), c.engine.Location()))
		return nil
	default:
		_ = c.adapter.AnswerCallback(ctx, id, "")
		return nil
	}
	if err := c.engine.Apply(ctx, reminder.Command{Kind: kind}); err != nil {
		_ = c.adapter.AnswerCallback(ctx, id, friendly(err))
		if isUserError(err) {
			return nil
		}
		return err
	}
	_ = c.adapter.AnswerCallback(ctx, id, ack)
	return nil
}

func (c *Controller) reply(ctx context.Context, req *Request, text string) {
	if _, err := c.adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		req.Log.Warn("reply failed", logx.Err(err))
	}
}

func isUserError(err error) bool {
	return errors.Is(err, reminder.ErrInvalidInterval) ||
		errors.Is(err, reminder.ErrInvalidDisabledHours) ||
		errors.Is(err, reminder.ErrInvalidTransition)
}

func friendly(err error) string {
	switch {
	case errors.Is(err, reminder.ErrInvalidTransition):
		return "reminders are not running, use /start first"
	case errors.Is(err, reminder.ErrInvalidInterval):
		return fmt.Sprintf("interval must be between %d and %d minutes", reminder.MinIntervalMinutes, reminder.MaxIntervalMinutes)
	case errors.Is(err, reminder.ErrInvalidDisabledHours):
		return "quiet hours must be between 0 and 23"
	case errors.Is(err, reminder.ErrClosed):
		return "shutting down"
	}
	return "failed: " + err.Error()
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, s := range commands {
		fmt.Fprintf(&b, "%s  %s\n", s.usage, s.desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

// StatusText renders Engine.Status for chat.
func StatusText(st reminder.Status, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	yesNo := func(v bool) string {
		if v {
			return "yes"
		}
		return "no"
	}
	onOff := func(v bool) string {
		if v {
			return "on"
		}
		return "off"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", st.Lifecycle)
	fmt.Fprintf(&b, "Interval: %d min\n", st.Config.IntervalMinutes)
	if st.Lifecycle == reminder.Active && !st.NextDeadline.IsZero() {
		fmt.Fprintf(&b, "Next alert at %s\n", st.NextDeadline.In(loc).Format("15:04"))
	}
	if !st.LastFire.IsZero() {
		fmt.Fprintf(&b, "Last alert: %s\n", st.LastFire.In(loc).Format("Jan 2 15:04"))
	}
	dh := st.Config.DisabledHours
	fmt.Fprintf(&b, "Quiet hours: %02d:00-%02d:00 (%s)", dh.StartHour, dh.EndHour, onOff(dh.Enabled))
	if st.GatedNow {
		b.WriteString(", quiet now")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Vibration: %s, sound: %s\n", onOff(st.Config.Alert.VibrationEnabled), st.Config.Alert.SoundRef)
	fmt.Fprintf(&b, "Timer: %s", st.TimerMode)
	if st.Degraded {
		b.WriteString(" (degraded)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Exact timing allowed: %s\n", yesNo(st.CanScheduleExact))
	fmt.Fprintf(&b, "Sleep exemption: %s", yesNo(st.PowerSavingExempt))
	if st.Dirty {
		b.WriteString("\nUnsaved changes pending")
	}
	return b.String()
}
