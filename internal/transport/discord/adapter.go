// Package discord adapts a discordgo gateway session to the transport
// interfaces. A guild is a scope; its system channel is the default target.
package discord

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

const (
	textLimit        = 2000
	embedTitleLimit  = 256
	embedDescLimit   = 4096
	embedFieldsLimit = 25
	fieldValueLimit  = 1024
)

type Config struct {
	Token string
}

type Adapter struct {
	log logx.Logger
	s   *discordgo.Session

	out     atomic.Pointer[chan<- kit.Update]
	dropped atomic.Uint64

	runMu   sync.Mutex
	running bool
	remove  func()
}

var (
	_ kit.Adapter        = (*Adapter)(nil)
	_ kit.TargetResolver = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{log: log, s: s}, nil
}

func (a *Adapter) Name() string { return "discord" }

func (a *Adapter) Mention(userID int64) string { return "<@" + strconv.FormatInt(userID, 10) + ">" }

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.out.Store(&out)
	a.remove = a.s.AddHandler(a.onMessage)
	if err := a.s.Open(); err != nil {
		a.remove()
		a.out.Store(nil)
		return err
	}
	a.running = true
	a.log.Info("gateway connected")
	return nil
}

func (a *Adapter) Stop(context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	a.out.Store(nil)
	if a.remove != nil {
		a.remove()
	}
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
	}
	return a.s.Close()
}

func (a *Adapter) onMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	msg, err := toMessage(m.Message)
	if err != nil {
		a.log.Debug("message skipped", logx.Err(err))
		return
	}
	p := a.out.Load()
	if p == nil {
		return
	}
	select {
	case *p <- kit.Update{Kind: kit.UpdateMessage, Message: msg}:
	default:
		if a.dropped.Add(1)%50 == 1 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", a.dropped.Load()))
		}
	}
}

func toMessage(m *discordgo.Message) (*kit.Message, error) {
	chatID, err := parseID(m.ChannelID)
	if err != nil {
		return nil, err
	}
	from, err := parseID(m.Author.ID)
	if err != nil {
		return nil, err
	}
	msg := &kit.Message{
		ID:           m.ID,
		ChatID:       chatID,
		FromID:       from,
		FromUsername: m.Author.Username,
		FromName:     m.Author.GlobalName,
		Text:         m.Content,
		IsGroup:      m.GuildID != "",
	}
	if msg.IsGroup {
		if msg.ScopeID, err = parseID(m.GuildID); err != nil {
			return nil, err
		}
	}
	for _, u := range m.Mentions {
		if id, err := parseID(u.ID); err == nil {
			msg.MentionIDs = append(msg.MentionIDs, id)
		}
	}
	return msg, nil
}

func parseID(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	var first kit.MessageRef
	for i, chunk := range splitText(text, textLimit) {
		m, err := a.s.ChannelMessageSendComplex(formatID(to.ChatID), &discordgo.MessageSend{
			Content:         chunk,
			AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}},
		}, discordgo.WithContext(ctx))
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, MessageID: m.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendRich(ctx context.Context, to kit.ChatTarget, msg kit.Rich) (kit.MessageRef, error) {
	send := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{toEmbed(msg)},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: mentionIDs(msg.Mentions),
		},
	}
	if len(msg.Mentions) > 0 {
		ms := make([]string, 0, len(msg.Mentions))
		for _, id := range msg.Mentions {
			ms = append(ms, a.Mention(id))
		}
		// Embeds never ping, so mentions go in the content.
		send.Content = strings.Join(ms, " ")
	}
	m, err := a.s.ChannelMessageSendComplex(formatID(to.ChatID), send, discordgo.WithContext(ctx))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: m.ID}, nil
}

func toEmbed(msg kit.Rich) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       truncate(msg.Title, embedTitleLimit),
		Description: truncate(msg.Body, embedDescLimit),
		Color:       msg.Color,
	}
	for _, f := range msg.Fields[:min(len(msg.Fields), embedFieldsLimit)] {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   truncate(f.Name, embedTitleLimit),
			Value:  truncate(f.Value, fieldValueLimit),
			Inline: f.Inline,
		})
	}
	if msg.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: truncate(msg.Footer, 2048)}
	}
	return e
}

func mentionIDs(ids []int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, formatID(id))
	}
	return out
}

// DefaultTarget returns the guild's system channel.
func (a *Adapter) DefaultTarget(ctx context.Context, scope int64) (kit.ChatTarget, bool) {
	if scope == 0 {
		return kit.ChatTarget{}, false
	}
	g, err := a.guild(ctx, scope)
	if err != nil || g.SystemChannelID == "" {
		return kit.ChatTarget{}, false
	}
	id, err := parseID(g.SystemChannelID)
	if err != nil {
		return kit.ChatTarget{}, false
	}
	return kit.ChatTarget{ChatID: id}, true
}

// FirstPostable returns the top-most text channel the bot can write to.
func (a *Adapter) FirstPostable(ctx context.Context, scope int64) (kit.ChatTarget, bool) {
	if scope == 0 || a.s.State.User == nil {
		return kit.ChatTarget{}, false
	}
	chans, err := a.s.GuildChannels(formatID(scope), discordgo.WithContext(ctx))
	if err != nil {
		a.log.Debug("guild channels lookup failed", logx.Int64("scope", scope), logx.Err(err))
		return kit.ChatTarget{}, false
	}
	chans = slices.DeleteFunc(slices.Clone(chans), func(c *discordgo.Channel) bool {
		return c.Type != discordgo.ChannelTypeGuildText
	})
	slices.SortStableFunc(chans, func(x, y *discordgo.Channel) int { return x.Position - y.Position })

	const need = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages
	for _, c := range chans {
		perms, err := a.s.State.UserChannelPermissions(a.s.State.User.ID, c.ID)
		if err != nil || perms&need != need {
			continue
		}
		if id, err := parseID(c.ID); err == nil {
			return kit.ChatTarget{ChatID: id}, true
		}
	}
	return kit.ChatTarget{}, false
}

func (a *Adapter) guild(ctx context.Context, scope int64) (*discordgo.Guild, error) {
	if g, err := a.s.State.Guild(formatID(scope)); err == nil {
		return g, nil
	}
	return a.s.Guild(formatID(scope), discordgo.WithContext(ctx))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// splitText cuts s into chunks of at most limit runes on line boundaries
// where possible.
func splitText(s string, limit int) []string {
	r := []rune(s)
	if len(r) <= limit {
		return []string{s}
	}
	var out []string
	for len(r) > 0 {
		end := min(limit, len(r))
		if end < len(r) {
			if i := lastIndex(r[:end], '\n'); i > limit/3 {
				end = i + 1
			}
		}
		out = append(out, strings.TrimRight(string(r[:end]), "\n"))
		r = r[end:]
	}
	return out
}

func lastIndex(r []rune, c rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == c {
			return i
		}
	}
	return -1
}
