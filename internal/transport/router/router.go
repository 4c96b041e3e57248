package router

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	// Route is a space separated path such as "list" or "set tz".
	Route       string
	Aliases     []string // root-level shortcuts
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

// ErrorReply answers a failed request.
type ErrorReply func(ctx context.Context, req *Request, err error)

var ErrUnauthorized = errors.New("unauthorized")

// Request is one matched command invocation.
type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	Scope   int64
	FromID  int64
	Command string
	Path    []string

	Args      []string // positionals after the route
	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool

	ReqID   string
	Adapter kit.Adapter
	Logger  logx.Logger
}

func (r *Request) Flag(names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := r.Flags[n]; ok {
			return v, true
		}
	}
	return "", false
}

func (r *Request) Bool(names ...string) bool {
	return slices.ContainsFunc(names, func(n string) bool { return r.BoolFlags[n] })
}

// Reply sends markdown text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: kit.ParseMarkdown, DisablePreview: true})
	return err
}

func (r *Request) ReplyRich(ctx context.Context, msg kit.Rich) error {
	_, err := r.Adapter.SendRich(ctx, r.Chat, msg)
	return err
}

type Options struct {
	Workers   int
	QueueSize int
	// UnknownText is sent for an unknown command. Empty stays silent.
	UnknownText string
	BusyText    string
	DeniedText  string
}

// Router dispatches updates to registered commands.
type Router struct {
	mu      sync.RWMutex
	root    *cmdNode
	alias   map[string]*cmdNode
	owners  []int64
	onError ErrorReply

	opt     Options
	log     logx.Logger
	adapter kit.Adapter
	jobs    chan func()

	runMu sync.Mutex
	sup   *rtsup.Supervisor
}

func New(log logx.Logger, adapter kit.Adapter, owners []int64, opt Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	return &Router{
		root:    newRoot(),
		alias:   map[string]*cmdNode{},
		owners:  slices.Clone(owners),
		opt:     opt,
		log:     log,
		adapter: adapter,
		jobs:    make(chan func(), opt.QueueSize),
	}
}

// SetOwners replaces the owner list. Safe during hot reload.
func (m *Router) SetOwners(owners []int64) {
	m.mu.Lock()
	m.owners = slices.Clone(owners)
	m.mu.Unlock()
}

func (m *Router) SetErrorReply(fn ErrorReply) {
	m.mu.Lock()
	m.onError = fn
	m.mu.Unlock()
}

func (m *Router) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.owners, id)
}

// SetRegistry installs cmds plus a generated /help and returns the menu
// entries for adapters with a native command list.
func (m *Router) SetRegistry(cmds []Command) []kit.BotCommand {
	cmds = append(slices.Clone(cmds), Command{
		Route:       "help",
		Aliases:     []string{"h", "start"},
		Description: "tampilkan bantuan",
		Usage:       "/help [perintah]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText(req.Args))
		},
	})

	root := newRoot()
	alias := map[string]*cmdNode{}
	var leaves []Command
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		leaf := root.add(route, c)
		leaves = append(leaves, c)

		// Multi-word routes get a joined alias ("set tz" -> "set_tz") so
		// platforms with single-word commands can reach them.
		if len(route) > 1 {
			if name := menuName(strings.Join(route, "_")); name != "" {
				alias[name] = leaf
			}
		}
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = leaf
		}
	}

	m.mu.Lock()
	m.root = root
	m.alias = alias
	m.mu.Unlock()
	return buildMenu(root, leaves)
}

// Supervisor returns the dispatcher's supervisor while Run is active.
func (m *Router) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.sup
}

// Run consumes updates until ctx ends or updates closes.
func (m *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log),
		rtsup.WithCancelOnError(false),
	)
	m.runMu.Lock()
	m.sup = sup
	m.runMu.Unlock()

	jobs := m.jobs
	for i := 0; i < m.opt.Workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-jobs:
					job()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}
	m.log.Info("command dispatcher started", logx.Int("workers", m.opt.Workers), logx.Int("queue_cap", cap(jobs)))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.runMu.Lock()
		m.sup = nil
		m.runMu.Unlock()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind == kit.UpdateMessage && up.Message != nil {
				m.route(sup.Context(), up.Message)
			}
		}
	}
}

// Match resolves text to a command. ok is false when text is not a command
// for this bot.
func (m *Router) Match(text string) (cmd Command, path, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") && !strings.HasPrefix(text, "!") {
		return Command{}, nil, nil, false
	}
	parts := Tokenize(text[1:])
	if len(parts) == 0 {
		return Command{}, nil, nil, false
	}
	word := strings.ToLower(parts[0])
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args = parts[1:]

	m.mu.RLock()
	root, alias := m.root, m.alias
	m.mu.RUnlock()

	if leaf, found := alias[word]; found && leaf.cmd != nil {
		return *leaf.cmd, splitRoute(leaf.cmd.Route), args, true
	}
	first, found := root.child(word)
	if !found {
		return Command{}, []string{word}, args, false
	}
	node, rest, args := first.walk(args)
	path = append([]string{word}, rest...)
	if node.cmd == nil {
		// A group without its own handler shows its help.
		return Command{Route: strings.Join(path, " "), Handle: m.groupHelp(path)}, path, args, true
	}
	return *node.cmd, path, args, true
}

func (m *Router) route(ctx context.Context, msg *kit.Message) {
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	cmd, path, raw, ok := m.Match(msg.Text)
	if !ok {
		// "!" is shared with other bots; only "/" gets a hint.
		if len(path) > 0 && m.opt.UnknownText != "" && strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
			_, _ = m.adapter.SendText(ctx, chat, m.opt.UnknownText, nil)
		}
		return
	}

	rid := newReqID()
	req := &Request{
		Message: msg,
		Chat:    chat,
		Scope:   msg.ScopeID,
		FromID:  msg.FromID,
		Command: cmd.Route,
		Path:    path,
		RawArgs: raw,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.String("cmd", cmd.Route),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
		),
	}
	req.Args, req.Flags, req.BoolFlags = ParseFlags(raw)

	if cmd.Access == AccessOwnerOnly && !m.isOwner(msg.FromID) {
		req.Logger.Warn("command denied")
		if m.opt.DeniedText != "" {
			_ = req.Reply(ctx, m.opt.DeniedText)
		}
		return
	}

	m.mu.RLock()
	onError := m.onError
	m.mu.RUnlock()
	final := Chain(cmd.Handle,
		MWRequestLog(),
		MWErrorReply(onError),
		MWPanicRecover(),
		MWTimeout(cmd.Timeout),
	)

	select {
	case m.jobs <- func() { _ = final(ctx, req) }:
	default:
		req.Logger.Warn("command dropped: queue full", logx.Int("queue_cap", cap(m.jobs)))
		if m.opt.BusyText != "" {
			_ = req.Reply(ctx, m.opt.BusyText)
		}
	}
}
