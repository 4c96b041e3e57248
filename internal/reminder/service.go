package reminder

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"remindbot/internal/timeutil"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// Service implements the item operations behind the chat commands.
type Service struct {
	deps Deps
	log  logx.Logger

	mu        sync.RWMutex
	defaultTZ string
}

func NewService(deps Deps, defaultTZ string) *Service {
	deps = deps.withDefaults()
	return &Service{
		deps:      deps,
		log:       deps.Log.With(logx.String("comp", "reminder")),
		defaultTZ: defaultTZ,
	}
}

func (s *Service) SetDefaultTimezone(tz string) {
	s.mu.Lock()
	s.defaultTZ = tz
	s.mu.Unlock()
}

func (s *Service) DefaultTimezone() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultTZ
}

func (s *Service) do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return s.deps.Pool.Do(ctx, name, fn)
}

// Timezone returns the user's zone name and location, falling back to the
// default zone.
func (s *Service) Timezone(ctx context.Context, user int64) (string, *time.Location, error) {
	var us UserSettings
	if err := s.do(ctx, "user.get", func(ctx context.Context) error {
		var err error
		us, err = s.deps.Store.GetUserSettings(ctx, user)
		return err
	}); err != nil {
		return "", nil, err
	}
	tz := us.Timezone
	if tz == "" {
		tz = s.DefaultTimezone()
	}
	loc, err := timeutil.LoadLocation(tz)
	if err != nil {
		// A stored zone the runtime no longer knows falls back to the default.
		tz = s.DefaultTimezone()
		if loc, err = timeutil.LoadLocation(tz); err != nil {
			return "", nil, err
		}
	}
	return tz, loc, nil
}

func (s *Service) SetTimezone(ctx context.Context, user int64, tz string) (string, error) {
	tz = strings.TrimSpace(tz)
	loc, err := timeutil.LoadLocation(tz)
	if err != nil {
		return "", err
	}
	name := loc.String()
	return name, s.do(ctx, "user.tz", func(ctx context.Context) error {
		return s.deps.Store.PutUserTimezone(ctx, user, name)
	})
}

// SetChannel records where the scope's notices of kind go.
func (s *Service) SetChannel(ctx context.Context, scope int64, kind Kind, target kit.ChatTarget) error {
	if scope == 0 {
		return fmt.Errorf("%w: /setchannel hanya bisa di grup", ErrInvalidRange)
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: jenis harus task atau event", ErrInvalidFormat)
	}
	return s.do(ctx, "guild.target", func(ctx context.Context) error {
		return s.deps.Store.PutGuildTarget(ctx, scope, kind, target)
	})
}

type NewTaskInput struct {
	Owner       int64
	Scope       int64
	Title       string
	Deadline    string // wall clock in the owner's zone
	Description string
	Tag         Tag
}

func (s *Service) AddTask(ctx context.Context, in NewTaskInput) (Item, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Item{}, fmt.Errorf("%w: judul kosong", ErrInvalidFormat)
	}
	_, loc, err := s.Timezone(ctx, in.Owner)
	if err != nil {
		return Item{}, err
	}
	deadline, err := timeutil.ParseWallClock(in.Deadline, loc.String())
	if err != nil {
		return Item{}, err
	}
	now := s.deps.Now().UTC()
	if !deadline.After(now) {
		return Item{}, ErrPastDeadline
	}
	tag := in.Tag
	if tag == "" {
		tag = TagIndividual
	}

	it := NewTask(in.Owner, in.Scope, title, deadline, tag)
	it.Description = strings.TrimSpace(in.Description)
	it.CreatedAt = now
	if err := s.insert(ctx, it); err != nil {
		return Item{}, err
	}
	s.log.Info("task added", logx.String("item", ShortID(it.ID)), logx.Int64("owner", in.Owner), logx.Int64("scope", in.Scope))
	return it, nil
}

type NewEventInput struct {
	Owner       int64
	Scope       int64
	Title       string
	Start       string
	End         string
	Description string
}

func (s *Service) AddEvent(ctx context.Context, in NewEventInput) (Item, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Item{}, fmt.Errorf("%w: judul kosong", ErrInvalidFormat)
	}
	_, loc, err := s.Timezone(ctx, in.Owner)
	if err != nil {
		return Item{}, err
	}
	start, err := timeutil.ParseWallClock(in.Start, loc.String())
	if err != nil {
		return Item{}, err
	}
	now := s.deps.Now().UTC()
	if !start.After(now) {
		return Item{}, ErrPastDeadline
	}
	end, err := timeutil.ParseWallClock(in.End, loc.String())
	if err != nil {
		return Item{}, err
	}
	if !end.After(start) {
		return Item{}, fmt.Errorf("%w: selesai harus setelah mulai", ErrInvalidRange)
	}

	it := NewEvent(in.Owner, in.Scope, title, start, end)
	it.Description = strings.TrimSpace(in.Description)
	it.CreatedAt = now
	if err := s.insert(ctx, it); err != nil {
		return Item{}, err
	}
	s.log.Info("event added", logx.String("item", ShortID(it.ID)), logx.Int64("owner", in.Owner), logx.Int64("scope", in.Scope))
	return it, nil
}

func (s *Service) insert(ctx context.Context, it Item) error {
	if err := it.Validate(); err != nil {
		return err
	}
	return s.do(ctx, "item.insert", func(ctx context.Context) error {
		return s.deps.Store.InsertItem(ctx, it)
	})
}

// ListOpen is the view every per-user command numbers against: open items
// whose anchor is still ahead, ordered with SortByAnchor.
func (s *Service) ListOpen(ctx context.Context, owner, scope int64, kind Kind) ([]Item, error) {
	now := s.deps.Now().UTC()
	return s.find(ctx, Filter{Kind: kind, Owner: owner, Scope: ScopeOf(scope), Open: true, AnchorAfter: now})
}

// ListGroupTasks returns the scope's open group tasks.
func (s *Service) ListGroupTasks(ctx context.Context, scope int64) ([]Item, error) {
	return s.find(ctx, Filter{Kind: KindTask, Scope: ScopeOf(scope), Open: true, Tag: TagGroup})
}

func (s *Service) find(ctx context.Context, f Filter) ([]Item, error) {
	var items []Item
	err := s.do(ctx, "item.find", func(ctx context.Context) error {
		var err error
		items, err = s.deps.Store.FindItems(ctx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	SortByAnchor(items)
	return items, nil
}

func (s *Service) resolve(ctx context.Context, owner, scope int64, kind Kind, token string) (Item, error) {
	view, err := s.ListOpen(ctx, owner, scope, kind)
	if err != nil {
		return Item{}, err
	}
	return Resolve(view, kind, token)
}

func (s *Service) get(ctx context.Context, id string) (Item, error) {
	var it Item
	err := s.do(ctx, "item.get", func(ctx context.Context) error {
		var err error
		it, err = s.deps.Store.GetItem(ctx, id)
		return err
	})
	return it, err
}

func (s *Service) update(ctx context.Context, id string, p Patch) error {
	return s.do(ctx, "item.update", func(ctx context.Context) error {
		return s.deps.Store.UpdateItem(ctx, id, p)
	})
}

// EditRequest carries the optional new values. Due is wall-clock text in
// the owner's zone; for events it moves the start.
type EditRequest struct {
	Title       *string
	Description *string
	Due         *string
	End         *string // events only
	Tag         *Tag    // tasks only
}

func (r EditRequest) empty() bool {
	return r.Title == nil && r.Description == nil && r.Due == nil && r.End == nil && r.Tag == nil
}

// EditResult reports the item before and after the edit.
type EditResult struct {
	Before Item
	After  Item
}

// Edit applies req. A new deadline or start must be in the future and
// resets the sent labels.
func (s *Service) Edit(ctx context.Context, owner, scope int64, kind Kind, token string, req EditRequest) (EditResult, error) {
	if req.empty() {
		return EditResult{}, fmt.Errorf("%w: tidak ada perubahan", ErrInvalidFormat)
	}
	before, err := s.resolve(ctx, owner, scope, kind, token)
	if err != nil {
		return EditResult{}, err
	}

	var p Patch
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		if t == "" {
			return EditResult{}, fmt.Errorf("%w: judul kosong", ErrInvalidFormat)
		}
		p.Title = &t
	}
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		p.Description = &d
	}
	if req.Tag != nil {
		if before.Task == nil {
			return EditResult{}, fmt.Errorf("%w: tag hanya untuk tugas", ErrInvalidFormat)
		}
		p.Tag = req.Tag
	}

	if req.Due != nil || req.End != nil {
		_, loc, err := s.Timezone(ctx, owner)
		if err != nil {
			return EditResult{}, err
		}
		now := s.deps.Now().UTC()
		anchor := before.Anchor()
		if req.Due != nil {
			anchor, err = timeutil.ParseWallClock(*req.Due, loc.String())
			if err != nil {
				return EditResult{}, err
			}
			if !anchor.After(now) {
				return EditResult{}, ErrPastDeadline
			}
			p.Anchor = &anchor
			p.ResetLabels = true
		}
		if before.Event != nil {
			end := before.Event.End
			if req.End != nil {
				end, err = timeutil.ParseWallClock(*req.End, loc.String())
				if err != nil {
					return EditResult{}, err
				}
				if !end.After(anchor) {
					return EditResult{}, fmt.Errorf("%w: selesai harus setelah mulai", ErrInvalidRange)
				}
			} else if !end.After(anchor) {
				// Keep the original length when the start moves past the end.
				end = anchor.Add(before.Event.End.Sub(before.Event.Start))
			}
			if !end.Equal(before.Event.End) {
				p.End = &end
			}
		} else if req.End != nil {
			return EditResult{}, fmt.Errorf("%w: waktu selesai hanya untuk event", ErrInvalidFormat)
		}
	}

	if err := s.update(ctx, before.ID, p); err != nil {
		return EditResult{}, err
	}
	after, err := s.get(ctx, before.ID)
	if err != nil {
		return EditResult{}, err
	}
	s.log.Info("item edited", logx.String("item", ShortID(before.ID)), logx.Bool("reset_labels", p.ResetLabels))
	return EditResult{Before: before, After: after}, nil
}

// CompleteResult carries how early (positive) or late the item was done.
type CompleteResult struct {
	Item Item
	Lead time.Duration
}

func (s *Service) Complete(ctx context.Context, owner, scope int64, kind Kind, token string) (CompleteResult, error) {
	it, err := s.resolve(ctx, owner, scope, kind, token)
	if err != nil {
		return CompleteResult{}, err
	}
	now := s.deps.Now().UTC()
	done := true
	if err := s.update(ctx, it.ID, Patch{Completed: &done, CompletedAt: &now}); err != nil {
		return CompleteResult{}, err
	}
	it.Completed = true
	it.CompletedAt = now
	s.log.Info("item completed", logx.String("item", ShortID(it.ID)), logx.String("kind", string(kind)))
	return CompleteResult{Item: it, Lead: it.Anchor().Sub(now)}, nil
}

// Assign adds users to a task and reports how many were new.
func (s *Service) Assign(ctx context.Context, owner, scope int64, token string, users []int64) (Item, int, error) {
	users = slices.DeleteFunc(slices.Clone(users), func(u int64) bool { return u == 0 })
	if len(users) == 0 {
		return Item{}, 0, fmt.Errorf("%w: mention minimal 1 user", ErrInvalidFormat)
	}
	it, err := s.resolve(ctx, owner, scope, KindTask, token)
	if err != nil {
		return Item{}, 0, err
	}
	added := 0
	for _, u := range users {
		if !slices.Contains(it.Task.Assigned, u) {
			it.Task.Assigned = append(it.Task.Assigned, u)
			added++
		}
	}
	if added > 0 {
		if err := s.update(ctx, it.ID, Patch{AddAssigned: users}); err != nil {
			return Item{}, 0, err
		}
	}
	return it, added, nil
}

var relativeRe = regexp.MustCompile(`^(\d+)([dhm])$`)

// ReminderResult describes a custom reminder that was added.
type ReminderResult struct {
	Item     Item
	Reminder CustomReminder
	// AfterAnchor is set when the reminder fires after the deadline or
	// start; it is allowed but worth a warning.
	AfterAnchor bool
}

// SetReminder adds a custom reminder. when is "1d", "3h", "30m" or a wall
// clock time in the owner's zone.
func (s *Service) SetReminder(ctx context.Context, owner, scope int64, kind Kind, token, when string) (ReminderResult, error) {
	it, err := s.resolve(ctx, owner, scope, kind, token)
	if err != nil {
		return ReminderResult{}, err
	}
	now := s.deps.Now().UTC()
	at, err := s.parseWhen(ctx, owner, when, now)
	if err != nil {
		return ReminderResult{}, err
	}
	if !at.After(now) {
		return ReminderResult{}, fmt.Errorf("%w: waktu reminder harus di masa depan", ErrInvalidRange)
	}

	r := CustomReminder{ID: NewID(), FireAt: at, CreatedBy: owner}
	if err := s.do(ctx, "item.custom_add", func(ctx context.Context) error {
		return s.deps.Store.AddCustomReminder(ctx, it.ID, r)
	}); err != nil {
		return ReminderResult{}, err
	}
	it.CustomReminders = append(it.CustomReminders, r)
	return ReminderResult{Item: it, Reminder: r, AfterAnchor: !at.Before(it.Anchor())}, nil
}

// maxRelativeReminder caps "<n>d|h|m" offsets well below time.Duration's range.
const maxRelativeReminder = 3650 * 24 * time.Hour

func (s *Service) parseWhen(ctx context.Context, owner int64, when string, now time.Time) (time.Time, error) {
	when = strings.TrimSpace(when)
	if m := relativeRe.FindStringSubmatch(strings.ToLower(when)); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFormat, when)
		}
		unit := time.Minute
		switch m[2] {
		case "d":
			unit = 24 * time.Hour
		case "h":
			unit = time.Hour
		}
		if int64(n) > int64(maxRelativeReminder/unit) {
			return time.Time{}, fmt.Errorf("%w: %q (maksimal %d hari)", ErrInvalidFormat, when, maxRelativeReminder/(24*time.Hour))
		}
		return now.Add(time.Duration(n) * unit), nil
	}
	_, loc, err := s.Timezone(ctx, owner)
	if err != nil {
		return time.Time{}, err
	}
	return timeutil.ParseWallClock(when, loc.String())
}

// Stats are the counts shown by /ping.
type Stats struct {
	OpenTasks  int
	OpenEvents int
}

func (s *Service) Stats(ctx context.Context, owner, scope int64) (Stats, error) {
	tasks, err := s.ListOpen(ctx, owner, scope, KindTask)
	if err != nil {
		return Stats{}, err
	}
	events, err := s.ListOpen(ctx, owner, scope, KindEvent)
	if err != nil {
		return Stats{}, err
	}
	return Stats{OpenTasks: len(tasks), OpenEvents: len(events)}, nil
}

// Import inserts items in canonical UTC, skipping IDs that exist.
func (s *Service) Import(ctx context.Context, items []Item) (inserted, skipped int, err error) {
	for _, it := range items {
		it = it.Canonical()
		if _, gerr := s.get(ctx, it.ID); gerr == nil {
			skipped++
			continue
		}
		if err := s.insert(ctx, it); err != nil {
			return inserted, skipped, fmt.Errorf("import %s: %w", ShortID(it.ID), err)
		}
		inserted++
	}
	return inserted, skipped, nil
}
