package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"reminderd/internal/alert"
	"reminderd/internal/deadline"
	"reminderd/internal/reminder"
	kit "reminderd/internal/transport"
	logx "reminderd/pkg/logx"
)

func TestParse(t *testing.T) {
	t.Parallel()
	cur := reminder.DefaultConfig()
	tests := []struct {
		in      string
		want    Action
		wantErr error
	}{
		{in: "/start", want: Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdStart, IntervalMinutes: 15}}},
		{in: "/start 30", want: Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdStart, IntervalMinutes: 30}}},
		{in: "/start@reminder_bot 5m", want: Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdStart, IntervalMinutes: 5}}},
		{in: "/stop", want: Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdStop}}},
		{in: "/Pause", want: Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdPause}}},
		{in: "/resume", want: Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdResume}}},
		{in: "/interval 45", want: Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdUpdateInterval, IntervalMinutes: 45}}},
		{in: "/interval 0", wantErr: reminder.ErrInvalidInterval},
		{in: "/interval 1441", wantErr: reminder.ErrInvalidInterval},
		{in: "/interval", wantErr: ErrUsage},
		{in: "/quiet 23 7", want: Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdUpdateDisabledHours, DisabledHours: reminder.DisabledHours{Enabled: true, StartHour: 23, EndHour: 7}}}},
		{in: "/quiet off", want: Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdUpdateDisabledHours, DisabledHours: reminder.DisabledHours{StartHour: 22, EndHour: 8}}}},
		{in: "/quiet 24 7", wantErr: reminder.ErrInvalidDisabledHours},
		{in: "/vibration off", want: Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdUpdateAlertProfile, Alert: reminder.AlertProfile{SoundRef: "default"}}}},
		{in: "/sound bell.ogg", want: Action{Op: OpApply, Cmd: reminder.Command{Kind: reminder.CmdUpdateAlertProfile, Alert: reminder.AlertProfile{VibrationEnabled: true, SoundRef: "bell.ogg"}}}},
		{in: "/vibration maybe", wantErr: ErrUsage},
		{in: "/status", want: Action{Op: OpStatus}},
		{in: "/permissions", want: Action{Op: OpPermissions}},
		{in: "/bogus", wantErr: ErrUsage},
		{in: "hello", wantErr: ErrUsage},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.in, cur)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%q) err = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

type fakeEngine struct {
	mu      sync.Mutex
	cmds    []reminder.Command
	err     error
	permErr error
	perms   int
	status  reminder.Status
}

func (f *fakeEngine) Apply(_ context.Context, cmd reminder.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return f.err
}

func (f *fakeEngine) Status() reminder.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeEngine) RequestPermissions(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perms++
	return f.permErr
}

func (f *fakeEngine) Location() *time.Location { return time.UTC }

type fakeAdapter struct {
	mu      sync.Mutex
	texts   []string
	answers []string
	sent    chan struct{}
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{sent: make(chan struct{}, 16)} }

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	f.sent <- struct{}{}
	return kit.MessageRef{MessageID: 1}, nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	f.answers = append(f.answers, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

const owner = 7

func newController(e *fakeEngine, a *fakeAdapter) *Controller {
	if e.status.Config == (reminder.Config{}) {
		e.status.Config = reminder.DefaultConfig()
	}
	return New(e, a, []int64{owner}, time.Second, logx.Nop())
}

func msgReq(c *Controller, text string) *Request {
	up := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1, FromID: owner, Text: text}}
	return c.newRequest(up, kit.ChatTarget{ChatID: 1}, owner, text, text)
}

func TestHandleMessageAppliesCommand(t *testing.T) {
	t.Parallel()
	e, a := &fakeEngine{}, newFakeAdapter()
	c := newController(e, a)

	if err := c.handleMessage(context.Background(), msgReq(c, "/start 20")); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if len(e.cmds) != 1 || e.cmds[0].Kind != reminder.CmdStart || e.cmds[0].IntervalMinutes != 20 {
		t.Fatalf("cmds = %+v", e.cmds)
	}
	if len(a.texts) != 0 {
		t.Fatalf("start should not reply, got %q", a.texts)
	}

	_ = c.handleMessage(context.Background(), msgReq(c, "/interval 10"))
	if a.lastText() != "saved" {
		t.Fatalf("reply = %q, want saved", a.lastText())
	}
}

func TestHandleMessageReportsUserErrors(t *testing.T) {
	t.Parallel()
	e, a := &fakeEngine{err: reminder.ErrInvalidTransition}, newFakeAdapter()
	c := newController(e, a)

	if err := c.handleMessage(context.Background(), msgReq(c, "/pause")); err != nil {
		t.Fatalf("user error should not be returned: %v", err)
	}
	if !strings.Contains(a.lastText(), "/start") {
		t.Fatalf("reply = %q", a.lastText())
	}

	_ = c.handleMessage(context.Background(), msgReq(c, "/interval abc"))
	if !strings.Contains(a.lastText(), "/interval <minutes>") {
		t.Fatalf("usage reply = %q", a.lastText())
	}
	if len(e.cmds) != 1 {
		t.Fatalf("invalid command reached the engine: %+v", e.cmds)
	}
}

func TestHandleMessagePermissions(t *testing.T) {
	t.Parallel()
	e, a := &fakeEngine{permErr: errors.New("grant CAP_WAKE_ALARM")}, newFakeAdapter()
	c := newController(e, a)

	_ = c.handleMessage(context.Background(), msgReq(c, "/permissions"))
	if e.perms != 1 {
		t.Fatalf("perms = %d", e.perms)
	}
	if !strings.HasPrefix(a.lastText(), "grant CAP_WAKE_ALARM") || !strings.Contains(a.lastText(), "State:") {
		t.Fatalf("reply = %q", a.lastText())
	}
}

func TestHandleCallback(t *testing.T) {
	t.Parallel()
	e, a := &fakeEngine{}, newFakeAdapter()
	c := newController(e, a)

	up := kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", FromID: owner, ChatID: 1, Data: alert.ActionPause}}
	req := c.newRequest(up, kit.ChatTarget{ChatID: 1}, owner, "cb", alert.ActionPause)
	if err := c.handleCallback(context.Background(), req); err != nil {
		t.Fatalf("handleCallback: %v", err)
	}
	if len(e.cmds) != 1 || e.cmds[0].Kind != reminder.CmdPause {
		t.Fatalf("cmds = %+v", e.cmds)
	}
	if len(a.answers) != 1 || a.answers[0] != "paused" {
		t.Fatalf("answers = %q", a.answers)
	}
}

func TestRunRejectsStrangers(t *testing.T) {
	t.Parallel()
	e, a := &fakeEngine{}, newFakeAdapter()
	c := newController(e, a)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 2)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, updates) }()

	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1, FromID: 99, Text: "/stop"}}
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1, FromID: owner, Text: "/status"}}
	for range 2 {
		select {
		case <-a.sent:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for replies")
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(e.cmds) != 0 {
		t.Fatalf("stranger reached the engine: %+v", e.cmds)
	}
	if a.texts[0] != "unauthorized" || !strings.HasPrefix(a.texts[1], "State: ") {
		t.Fatalf("texts = %q", a.texts)
	}
}

func TestStatusText(t *testing.T) {
	t.Parallel()
	st := reminder.Status{
		Lifecycle:    reminder.Active,
		Config:       reminder.DefaultConfig(),
		NextDeadline: time.Date(2026, 3, 14, 12, 15, 0, 0, time.UTC),
		TimerMode:    deadline.Inexact,
		Degraded:     true,
	}
	got := StatusText(st, time.UTC)
	for _, want := range []string{"State: active", "Interval: 15 min", "Next alert at 12:15", "Quiet hours: 22:00-08:00 (off)", "Vibration: on, sound: default", "Timer: inexact (degraded)"} {
		if !strings.Contains(got, want) {
			t.Fatalf("StatusText missing %q:\n%s", want, got)
		}
	}
}

func TestMenuMatchesCommands(t *testing.T) {
	t.Parallel()
	m := Menu()
	if len(m) != len(commands) || m[0].Command != "start" {
		t.Fatalf("Menu = %+v", m)
	}
}
