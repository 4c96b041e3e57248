package reminder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	kit "remindbot/internal/transport"
)

type fakeStore struct {
	mu     sync.Mutex
	items  map[string]Item
	users  map[int64]UserSettings
	guilds map[int64]GuildSettings

	findErr map[Kind]error
	ops     []string
}

func newFakeStore(items ...Item) *fakeStore {
	s := &fakeStore{
		items:   make(map[string]Item),
		users:   make(map[int64]UserSettings),
		guilds:  make(map[int64]GuildSettings),
		findErr: make(map[Kind]error),
	}
	for _, it := range items {
		s.items[it.ID] = it.Clone()
	}
	return s
}

func (s *fakeStore) record(op string) { s.ops = append(s.ops, op) }

func (s *fakeStore) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ops)
}

func (s *fakeStore) InsertItem(_ context.Context, it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[it.ID]; ok {
		return fmt.Errorf("duplicate %s", it.ID)
	}
	s.items[it.ID] = it.Clone()
	s.record("insert:" + ShortID(it.ID))
	return nil
}

func (s *fakeStore) FindItems(_ context.Context, f Filter) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.findErr[f.Kind]; err != nil {
		return nil, err
	}
	var out []Item
	for _, it := range s.items {
		if f.Match(it) {
			out = append(out, it.Clone())
		}
	}
	SortByAnchor(out)
	return out, nil
}

func (s *fakeStore) GetItem(_ context.Context, id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return it.Clone(), nil
}

func (s *fakeStore) UpdateItem(_ context.Context, id string, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Description != nil {
		it.Description = *p.Description
	}
	if p.Anchor != nil {
		if it.Task != nil {
			it.Task.Deadline = *p.Anchor
		} else {
			it.Event.Start = *p.Anchor
		}
	}
	if p.End != nil && it.Event != nil {
		it.Event.End = *p.End
	}
	if p.Tag != nil && it.Task != nil {
		it.Task.Tag = *p.Tag
	}
	if p.Completed != nil {
		it.Completed = *p.Completed
	}
	if p.CompletedAt != nil {
		it.CompletedAt = *p.CompletedAt
	}
	if p.ResetLabels {
		it.SentLabels = nil
	}
	for _, u := range p.AddAssigned {
		if it.Task != nil && !slices.Contains(it.Task.Assigned, u) {
			it.Task.Assigned = append(it.Task.Assigned, u)
		}
	}
	s.items[id] = it
	s.record("update:" + ShortID(id))
	return nil
}

func (s *fakeStore) AddLabel(_ context.Context, id, label string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return false, ErrNotFound
	}
	s.record("label:" + label)
	if it.HasLabel(label) {
		return false, nil
	}
	it.SentLabels = append(it.SentLabels, label)
	s.items[id] = it
	return true, nil
}

func (s *fakeStore) AddCustomReminder(_ context.Context, id string, r CustomReminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	it.CustomReminders = append(it.CustomReminders, r)
	s.items[id] = it
	return nil
}

func (s *fakeStore) MarkCustomSent(_ context.Context, id, reminderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	for i := range it.CustomReminders {
		if it.CustomReminders[i].ID == reminderID {
			it.CustomReminders[i].Sent = true
			s.items[id] = it
			s.record("custom_sent")
			return nil
		}
	}
	return ErrNotFound
}

func (s *fakeStore) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	s.record("delete:" + ShortID(id))
	return nil
}

func (s *fakeStore) GetUserSettings(_ context.Context, user int64) (UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[user], nil
}

func (s *fakeStore) PutUserTimezone(_ context.Context, user int64, tz string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user] = UserSettings{UserID: user, Timezone: tz}
	return nil
}

func (s *fakeStore) GetGuildSettings(_ context.Context, scope int64) (GuildSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guilds[scope], nil
}

func (s *fakeStore) PutGuildTarget(_ context.Context, scope int64, kind Kind, target kit.ChatTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guilds[scope]
	g.Scope = scope
	if kind == KindEvent {
		g.EventTarget = target
	} else {
		g.TaskTarget = target
	}
	s.guilds[scope] = g
	return nil
}

func (s *fakeStore) Close() error { return nil }

// fakeSink resolves every non-zero scope to a chat with the same ID unless
// listed in noTarget.
type fakeSink struct {
	mu       sync.Mutex
	store    *fakeStore
	noTarget map[int64]bool
	fail     error
	panicMsg string
	sent     []kit.Rich
}

func (k *fakeSink) ResolveTarget(_ context.Context, scope int64, _ Kind) (kit.ChatTarget, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if scope == 0 || k.noTarget[scope] {
		return kit.ChatTarget{}, false
	}
	return kit.ChatTarget{ChatID: scope}, true
}

func (k *fakeSink) Send(_ context.Context, _ kit.ChatTarget, _ []int64, msg kit.Rich) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.panicMsg != "" {
		panic(k.panicMsg)
	}
	if k.fail != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailure, k.fail)
	}
	k.sent = append(k.sent, msg)
	if k.store != nil {
		k.store.mu.Lock()
		k.store.record("send:" + msg.Title)
		k.store.mu.Unlock()
	}
	return nil
}

func (k *fakeSink) Sent() []kit.Rich {
	k.mu.Lock()
	defer k.mu.Unlock()
	return slices.Clone(k.sent)
}

func (k *fakeSink) SetFail(err error) {
	k.mu.Lock()
	k.fail = err
	k.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

var baseNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func taskAt(id string, owner, scope int64, deadline time.Time) Item {
	return Item{
		ID:        id,
		Owner:     owner,
		Scope:     scope,
		Title:     "tugas " + id,
		CreatedAt: baseNow.Add(-time.Hour),
		Task:      &TaskData{Deadline: deadline, Tag: TagIndividual},
	}
}

func eventAt(id string, owner, scope int64, start time.Time) Item {
	return Item{
		ID:        id,
		Owner:     owner,
		Scope:     scope,
		Title:     "event " + id,
		CreatedAt: baseNow.Add(-time.Hour),
		Event:     &EventData{Start: start, End: start.Add(time.Hour)},
	}
}
