package reminder

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"remindbot/internal/timeutil"
	logx "remindbot/pkg/logx"
)

// Deps are the collaborators shared by the sweep, the weekly job and the
// item service.
type Deps struct {
	Store   Store
	Sink    Sink
	Pool    Runner
	Log     logx.Logger
	Metrics Metrics
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Pool == nil {
		d.Pool = Inline{}
	}
	if d.Metrics == nil {
		d.Metrics = nopMetrics{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// TickResult summarizes one sweep tick.
type TickResult struct {
	Loaded      int
	Sent        int
	Failed      int
	NoTarget    int
	Expired     int
	ItemErrors  int
	PhaseErrors int
	Took        time.Duration
}

// Sweeper runs the periodic reminder pass.
type Sweeper struct {
	deps Deps
	log  logx.Logger

	mu        sync.RWMutex
	policy    Policy
	defaultTZ *time.Location
}

func NewSweeper(deps Deps, policy Policy, defaultTZ *time.Location) *Sweeper {
	deps = deps.withDefaults()
	if defaultTZ == nil {
		defaultTZ = time.UTC
	}
	return &Sweeper{
		deps:      deps,
		log:       deps.Log.With(logx.String("comp", "sweep")),
		policy:    policy.Normalize(),
		defaultTZ: defaultTZ,
	}
}

// Apply swaps the policy and default zone used by later ticks.
func (s *Sweeper) Apply(policy Policy, defaultTZ *time.Location) {
	s.mu.Lock()
	s.policy = policy.Normalize()
	if defaultTZ != nil {
		s.defaultTZ = defaultTZ
	}
	s.mu.Unlock()
}

func (s *Sweeper) settings() (Policy, *time.Location) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy, s.defaultTZ
}

// Tick evaluates every open task, then every open event, at one instant.
// A failed phase is logged and skipped; it never aborts the other phase.
// Once started a tick runs to completion: ctx's deadline and cancellation
// are dropped, and each store call and send is bounded on its own.
func (s *Sweeper) Tick(ctx context.Context) TickResult {
	ctx = context.WithoutCancel(ctx)
	now := s.deps.Now().UTC()
	policy, defTZ := s.settings()
	tz := newZoneCache(s.deps, defTZ)

	var res TickResult
	for _, kind := range []Kind{KindTask, KindEvent} {
		s.sweepPhase(ctx, kind, now, policy, tz, &res)
	}
	res.Took = s.deps.Now().Sub(now)
	s.deps.Metrics.SweepDuration(res.Took)

	if res.Sent > 0 || res.Failed > 0 || res.Expired > 0 || res.ItemErrors > 0 || res.PhaseErrors > 0 {
		s.log.Info("sweep tick done",
			logx.Int("loaded", res.Loaded),
			logx.Int("sent", res.Sent),
			logx.Int("failed", res.Failed),
			logx.Int("no_target", res.NoTarget),
			logx.Int("expired", res.Expired),
			logx.Int("item_errors", res.ItemErrors),
			logx.Int("phase_errors", res.PhaseErrors),
			logx.Duration("took", res.Took),
		)
	} else {
		s.log.Debug("sweep tick done", logx.Int("loaded", res.Loaded), logx.Duration("took", res.Took))
	}
	return res
}

func (s *Sweeper) sweepPhase(ctx context.Context, kind Kind, now time.Time, policy Policy, tz *zoneCache, res *TickResult) {
	var items []Item
	err := s.deps.Pool.Do(ctx, "sweep.load."+string(kind), func(ctx context.Context) error {
		var err error
		items, err = s.deps.Store.FindItems(ctx, Filter{Kind: kind, Open: true})
		return err
	})
	if err != nil {
		res.PhaseErrors++
		s.deps.Metrics.PhaseFailure(kind)
		s.log.Error("sweep phase skipped", logx.String("kind", string(kind)), logx.Err(err))
		return
	}
	res.Loaded += len(items)
	for _, it := range items {
		s.sweepItem(ctx, it, now, policy, tz, res)
	}
}

// sweepItem is the per-item error boundary.
func (s *Sweeper) sweepItem(ctx context.Context, it Item, now time.Time, policy Policy, tz *zoneCache, res *TickResult) {
	kind := it.Kind()
	log := s.log.With(logx.String("kind", string(kind)), logx.String("item", ShortID(it.ID)))
	defer func() {
		if r := recover(); r != nil {
			res.ItemErrors++
			s.deps.Metrics.ItemError(kind)
			log.Error("sweep item panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()

	dec := Evaluate(it, now, policy)
	if dec.Empty() {
		return
	}
	for _, n := range dec.Notices {
		s.deliver(ctx, it, n, now, tz, log, res)
	}
	if !dec.Expire {
		return
	}
	err := s.deps.Pool.Do(ctx, "sweep.expire", func(ctx context.Context) error {
		return s.deps.Store.DeleteItem(ctx, it.ID)
	})
	if err != nil {
		res.ItemErrors++
		s.deps.Metrics.ItemError(kind)
		log.Error("expire item failed", logx.Err(err))
		return
	}
	res.Expired++
	s.deps.Metrics.Expired(kind)
	log.Info("item expired", logx.Duration("overdue", now.Sub(it.Anchor())))
}

// deliver sends one notice and records it only after the send succeeded.
func (s *Sweeper) deliver(ctx context.Context, it Item, n Notice, now time.Time, tz *zoneCache, log logx.Logger, res *TickResult) {
	kind := it.Kind()
	log = log.With(logx.String("notice", n.Kind.String()))
	if n.Label != "" {
		log = log.With(logx.String("label", n.Label))
	}

	target, ok := s.deps.Sink.ResolveTarget(ctx, it.Scope, kind)
	if !ok {
		res.NoTarget++
		s.deps.Metrics.Delivery(kind, ResultNoTarget)
		if it.Scope == 0 {
			log.Debug("no delivery target for unscoped item")
		} else {
			log.Warn("no delivery target", logx.Int64("scope", it.Scope))
		}
		return
	}

	msg := RenderNotice(it, n, now, tz.get(ctx, it.Owner))
	if err := s.deps.Sink.Send(ctx, target, msg.Mentions, msg); err != nil {
		res.Failed++
		s.deps.Metrics.Delivery(kind, ResultFailed)
		log.Warn("notice delivery failed; will retry", logx.Int64("chat_id", target.ChatID), logx.Err(err))
		return
	}
	res.Sent++
	s.deps.Metrics.Delivery(kind, ResultSent)

	err := s.deps.Pool.Do(ctx, "sweep.mark", func(ctx context.Context) error {
		if n.Kind == NoticeCustom {
			return s.deps.Store.MarkCustomSent(ctx, it.ID, n.Reminder.ID)
		}
		_, err := s.deps.Store.AddLabel(ctx, it.ID, n.Label)
		return err
	})
	if err != nil {
		// Delivered but not recorded: the next tick may repeat it once.
		res.ItemErrors++
		s.deps.Metrics.ItemError(kind)
		log.Error("notice sent but not recorded", logx.Err(err))
		return
	}
	log.Info("notice sent")
}

// zoneCache memoizes owner zones for one tick.
type zoneCache struct {
	deps  Deps
	def   *time.Location
	zones map[int64]*time.Location
}

func newZoneCache(deps Deps, def *time.Location) *zoneCache {
	return &zoneCache{deps: deps, def: def, zones: make(map[int64]*time.Location)}
}

func (c *zoneCache) get(ctx context.Context, user int64) *time.Location {
	if loc, ok := c.zones[user]; ok {
		return loc
	}
	loc := c.def
	var us UserSettings
	err := c.deps.Pool.Do(ctx, "sweep.user_tz", func(ctx context.Context) error {
		var err error
		us, err = c.deps.Store.GetUserSettings(ctx, user)
		return err
	})
	if err == nil && us.Timezone != "" {
		if l, lerr := timeutil.LoadLocation(us.Timezone); lerr == nil {
			loc = l
		}
	}
	c.zones[user] = loc
	return loc
}

// String is used in logs and by the CLI.
func (r TickResult) String() string {
	return fmt.Sprintf("loaded=%d sent=%d failed=%d no_target=%d expired=%d item_errors=%d phase_errors=%d took=%s",
		r.Loaded, r.Sent, r.Failed, r.NoTarget, r.Expired, r.ItemErrors, r.PhaseErrors, r.Took)
}
