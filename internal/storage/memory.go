package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
)

// Memory is the in-process store. The file driver wraps it and persists a
// snapshot after each mutation.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]reminder.Item
	users  map[int64]reminder.UserSettings
	guilds map[int64]reminder.GuildSettings

	// persist runs under mu after a mutation. A failure rolls the mutation
	// back.
	persist func() error
}

func NewMemory() *Memory {
	return &Memory{
		items:  make(map[string]reminder.Item),
		users:  make(map[int64]reminder.UserSettings),
		guilds: make(map[int64]reminder.GuildSettings),
	}
}

func (s *Memory) commit(undo func()) error {
	if s.persist == nil {
		return nil
	}
	if err := s.persist(); err != nil {
		undo()
		return unavailable("write", err)
	}
	return nil
}

// restoreItem returns an undo func that puts back the item as it is now.
func (s *Memory) restoreItem(id string) func() {
	prev, existed := s.items[id]
	return func() {
		if existed {
			s.items[id] = prev
		} else {
			delete(s.items, id)
		}
	}
}

func (s *Memory) InsertItem(ctx context.Context, it reminder.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := it.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[it.ID]; ok {
		return fmt.Errorf("item %s: already exists", reminder.ShortID(it.ID))
	}
	undo := s.restoreItem(it.ID)
	s.items[it.ID] = it.Clone()
	return s.commit(undo)
}

func (s *Memory) FindItems(ctx context.Context, f reminder.Filter) ([]reminder.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]reminder.Item, 0, len(s.items))
	for _, it := range s.items {
		if f.Match(it) {
			out = append(out, it.Clone())
		}
	}
	s.mu.RUnlock()
	reminder.SortByAnchor(out)
	return out, nil
}

func (s *Memory) GetItem(ctx context.Context, id string) (reminder.Item, error) {
	if err := ctx.Err(); err != nil {
		return reminder.Item{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return reminder.Item{}, notFound(id)
	}
	return it.Clone(), nil
}

func (s *Memory) UpdateItem(ctx context.Context, id string, p reminder.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return notFound(id)
	}
	undo := s.restoreItem(id)
	s.items[id] = applyPatch(it.Clone(), p)
	return s.commit(undo)
}

func (s *Memory) AddLabel(ctx context.Context, id, label string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return false, notFound(id)
	}
	if it.HasLabel(label) {
		return false, nil
	}
	undo := s.restoreItem(id)
	it = it.Clone()
	it.SentLabels = append(it.SentLabels, label)
	s.items[id] = it
	if err := s.commit(undo); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Memory) AddCustomReminder(ctx context.Context, id string, r reminder.CustomReminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return notFound(id)
	}
	undo := s.restoreItem(id)
	it = it.Clone()
	r.FireAt = r.FireAt.UTC()
	it.CustomReminders = append(it.CustomReminders, r)
	s.items[id] = it
	return s.commit(undo)
}

func (s *Memory) MarkCustomSent(ctx context.Context, id, reminderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return notFound(id)
	}
	i := slices.IndexFunc(it.CustomReminders, func(r reminder.CustomReminder) bool { return r.ID == reminderID })
	if i < 0 {
		return fmt.Errorf("custom reminder %s: %w", reminderID, reminder.ErrNotFound)
	}
	if it.CustomReminders[i].Sent {
		return nil
	}
	undo := s.restoreItem(id)
	it = it.Clone()
	it.CustomReminders[i].Sent = true
	s.items[id] = it
	return s.commit(undo)
}

func (s *Memory) DeleteItem(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return notFound(id)
	}
	undo := s.restoreItem(id)
	delete(s.items, id)
	return s.commit(undo)
}

func (s *Memory) GetUserSettings(ctx context.Context, user int64) (reminder.UserSettings, error) {
	if err := ctx.Err(); err != nil {
		return reminder.UserSettings{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	us, ok := s.users[user]
	if !ok {
		return reminder.UserSettings{UserID: user}, nil
	}
	return us, nil
}

func (s *Memory) PutUserTimezone(ctx context.Context, user int64, tz string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.users[user]
	s.users[user] = reminder.UserSettings{UserID: user, Timezone: tz}
	return s.commit(func() {
		if existed {
			s.users[user] = prev
		} else {
			delete(s.users, user)
		}
	})
}

func (s *Memory) GetGuildSettings(ctx context.Context, scope int64) (reminder.GuildSettings, error) {
	if err := ctx.Err(); err != nil {
		return reminder.GuildSettings{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guilds[scope]
	if !ok {
		return reminder.GuildSettings{Scope: scope}, nil
	}
	return g, nil
}

func (s *Memory) PutGuildTarget(ctx context.Context, scope int64, kind reminder.Kind, target kit.ChatTarget) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.guilds[scope]
	g := prev
	g.Scope = scope
	if kind == reminder.KindEvent {
		g.EventTarget = target
	} else {
		g.TaskTarget = target
	}
	s.guilds[scope] = g
	return s.commit(func() {
		if existed {
			s.guilds[scope] = prev
		} else {
			delete(s.guilds, scope)
		}
	})
}

func (s *Memory) Close() error { return nil }

// applyPatch returns it with p applied. it must already be a private copy.
func applyPatch(it reminder.Item, p reminder.Patch) reminder.Item {
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Description != nil {
		it.Description = *p.Description
	}
	if p.Anchor != nil {
		switch {
		case it.Task != nil:
			it.Task.Deadline = p.Anchor.UTC()
		case it.Event != nil:
			it.Event.Start = p.Anchor.UTC()
		}
	}
	if p.End != nil && it.Event != nil {
		it.Event.End = p.End.UTC()
	}
	if p.Tag != nil && it.Task != nil {
		it.Task.Tag = *p.Tag
	}
	if p.Completed != nil {
		it.Completed = *p.Completed
	}
	if p.CompletedAt != nil {
		it.CompletedAt = p.CompletedAt.UTC()
	}
	if p.ResetLabels {
		it.SentLabels = nil
	}
	if it.Task != nil {
		for _, u := range p.AddAssigned {
			if u != 0 && !slices.Contains(it.Task.Assigned, u) {
				it.Task.Assigned = append(it.Task.Assigned, u)
			}
		}
	}
	return it
}
