// Package transport holds the chat-transport types shared by the telegram
// adapter, the alert sink and the control surface.
package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update is one inbound event; exactly one of Message or Callback is set.
type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID       int
	ChatID   int64
	ThreadID int // forum topic, 0 if none
	FromID   int64
	Text     string
}

// Callback is a press on an inline button of a message the daemon sent.
type Callback struct {
	ID        string
	ChatID    int64
	ThreadID  int
	MessageID int
	FromID    int64
	Data      string
}

// ChatTarget addresses a chat (and optionally a forum topic).
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

// MessageRef identifies a sent message so it can be edited later. The status
// message ref is persisted across restarts.
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.MessageID == 0 }

// Button is one inline button; Data comes back as Callback.Data.
type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// Silent delivers without a notification sound on the client.
	Silent  bool
	Buttons []Button // one row, attached to the first chunk
}

// Adapter is a chat transport. Send and edit calls are safe for concurrent use.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters with a client-side command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
