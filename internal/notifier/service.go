package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

var ErrNoAdapter = errors.New("notifier: no transport adapter")

const historySize = 300

// Service implements reminder.Sink on top of a kit.Adapter. It is safe for
// concurrent use.
type Service struct {
	mu       sync.Mutex
	cfg      Config
	limiter  *rate.Limiter
	adapter  kit.Adapter
	settings Settings

	log logx.Logger
	bus eventbus.Bus

	rngMu sync.Mutex
	rng   *rand.Rand

	hmu     sync.Mutex
	history []HistoryItem
}

var _ reminder.Sink = (*Service)(nil)

func New(cfg Config, adapter kit.Adapter, settings Settings, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter:  adapter,
		settings: settings,
		log:      log,
		bus:      bus,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.Apply(cfg)
	return s
}

func normalize(cfg Config) Config {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RatePerSec
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return cfg
}

func (s *Service) Apply(cfg Config) {
	cfg = normalize(cfg)
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	s.mu.Unlock()
}

// SetAdapter swaps the transport, e.g. once it finished connecting.
func (s *Service) SetAdapter(ad kit.Adapter) {
	s.mu.Lock()
	s.adapter = ad
	s.mu.Unlock()
}

func (s *Service) snapshot() (Config, *rate.Limiter, kit.Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter, s.adapter
}

func (s *Service) ResolveTarget(ctx context.Context, scope int64, kind reminder.Kind) (kit.ChatTarget, bool) {
	if s.settings != nil {
		gs, err := s.settings.GetGuildSettings(ctx, scope)
		if err != nil {
			s.log.Warn("guild settings lookup failed", logx.Int64("scope", scope), logx.Err(err))
		} else if t := gs.Target(kind); !t.IsZero() {
			return t, true
		}
	}
	if scope == 0 {
		return kit.ChatTarget{}, false
	}
	_, _, ad := s.snapshot()
	tr, ok := ad.(kit.TargetResolver)
	if !ok {
		return kit.ChatTarget{}, false
	}
	if t, ok := tr.DefaultTarget(ctx, scope); ok && !t.IsZero() {
		return t, true
	}
	if t, ok := tr.FirstPostable(ctx, scope); ok && !t.IsZero() {
		return t, true
	}
	return kit.ChatTarget{}, false
}

// Send delivers msg and returns only after it landed or every attempt
// failed. Errors wrap reminder.ErrDeliveryFailure.
func (s *Service) Send(ctx context.Context, to kit.ChatTarget, mentions []int64, msg kit.Rich) error {
	if len(msg.Mentions) == 0 {
		msg.Mentions = mentions
	}
	return s.deliver(ctx, to, msg.Title, func(ctx context.Context, ad kit.Adapter) error {
		_, err := ad.SendRich(ctx, to, msg)
		return err
	})
}

// Notify sends a plain operator notification, tagged by priority.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	text := prefixForPriority(n.Priority) + n.Text
	if n.Target.IsZero() || text == "" {
		return nil
	}
	return s.deliver(ctx, n.Target, n.Channel, func(ctx context.Context, ad kit.Adapter) error {
		_, err := ad.SendText(ctx, n.Target, text, n.Options)
		return err
	})
}

func (s *Service) deliver(ctx context.Context, to kit.ChatTarget, title string, send func(context.Context, kit.Adapter) error) error {
	cfg, lim, ad := s.snapshot()
	if ad == nil {
		return fmt.Errorf("%w: %w", reminder.ErrDeliveryFailure, ErrNoAdapter)
	}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			lastErr = err
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := send(callCtx, ad)
		cancel()
		if err == nil {
			s.record(to, title, attempt, nil)
			return nil
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Int64("chat_id", to.ChatID), logx.Int("attempt", attempt), logx.Int("max", maxAttempts), logx.Err(err))
		if attempt >= maxAttempts || ctx.Err() != nil {
			break
		}

		t := time.NewTimer(s.retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			lastErr = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}
	attempt = min(attempt, maxAttempts)
	s.record(to, title, attempt, lastErr)
	return fmt.Errorf("%w: %w", reminder.ErrDeliveryFailure, lastErr)
}

func (s *Service) record(to kit.ChatTarget, title string, attempts int, err error) {
	now := time.Now()
	item := HistoryItem{At: now, ChatID: to.ChatID, Title: title, Attempts: attempts}
	ev := NotificationEvent{ChatID: to.ChatID, ThreadID: to.ThreadID, Attempts: attempts, At: now}
	typ := eventbus.TypeNotifySent
	if err != nil {
		item.Error = err.Error()
		ev.Error = item.Error
		typ = eventbus.TypeNotifyFailed
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
	}
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// retryDelay is the wait before attempt+1: base doubled per attempt, capped,
// with 0.7..1.3 jitter.
func (s *Service) retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = min(d, cfg.RetryMaxDelay)

	s.rngMu.Lock()
	j := 0.7 + s.rng.Float64()*0.6
	s.rngMu.Unlock()
	return min(time.Duration(float64(d)*j), cfg.RetryMaxDelay)
}

func prefixForPriority(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 7:
		return "⚠️ "
	case p >= 5:
		return "ℹ️ "
	default:
		return ""
	}
}
