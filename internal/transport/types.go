package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is a normalized inbound chat message.
//
// ScopeID is the owning group: the Telegram group chat ID or the Discord
// guild ID. It is 0 for private chats.
type Message struct {
	ID           string
	ChatID       int64
	ThreadID     int // telegram forum topic (0 if none)
	ScopeID      int64
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsGroup      bool

	// MentionIDs are users referenced in the message (telegram text mentions,
	// discord <@id> mentions).
	MentionIDs []int64
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID string
}

// ParseMarkdown marks text using **bold**, _italic_ and `code`. Adapters
// translate it to their own markup.
const ParseMarkdown = "markdown"

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Rich is a structured message. Adapters render it natively (Discord embed,
// Telegram HTML).
type Rich struct {
	Title  string
	Body   string
	Fields []RichField
	Color  int
	Footer string

	// Mentions are rendered as platform mentions before the rich body.
	Mentions []int64
}

type RichField struct {
	Name   string
	Value  string
	Inline bool
}

type Notification struct {
	Channel  string
	Priority int // 0 low .. 10 high
	Target   ChatTarget
	Text     string
	Options  *SendOptions
}

type Adapter interface {
	Name() string
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendRich(ctx context.Context, to ChatTarget, msg Rich) (MessageRef, error)

	// Mention renders a user mention in the adapter's markup.
	Mention(userID int64) string
}

// TargetResolver is implemented by adapters that know a scope's default and
// postable channels.
type TargetResolver interface {
	// DefaultTarget returns the scope's own default channel (discord system
	// channel, telegram group chat).
	DefaultTarget(ctx context.Context, scope int64) (ChatTarget, bool)
	// FirstPostable returns the first channel in the scope the bot may post in.
	FirstPostable(ctx context.Context, scope int64) (ChatTarget, bool)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters with a native command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
