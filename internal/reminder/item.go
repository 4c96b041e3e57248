package reminder

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/timeutil"
	kit "remindbot/internal/transport"
)

type Kind string

const (
	KindTask  Kind = "task"
	KindEvent Kind = "event"
)

func (k Kind) Valid() bool { return k == KindTask || k == KindEvent }

type Tag string

const (
	TagIndividual Tag = "individual"
	TagGroup      Tag = "group"
)

// ParseTag accepts the English names and the Indonesian command words.
func ParseTag(s string) (Tag, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "individual", "individu":
		return TagIndividual, true
	case "group", "kelompok":
		return TagGroup, true
	}
	return "", false
}

const LabelDue = "due"

// ThresholdLabel is the sent-label of an N-hour notice.
func ThresholdLabel(hours int) string { return "threshold_" + strconv.Itoa(hours) + "h" }

// ShortIDLen is how many ID characters are shown to users.
const ShortIDLen = 8

// NewID returns 32 lowercase hex characters.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func ShortID(id string) string {
	if len(id) <= ShortIDLen {
		return id
	}
	return id[:ShortIDLen]
}

// TaskData holds the task-only fields.
type TaskData struct {
	Deadline time.Time `json:"deadline"`
	Tag      Tag       `json:"tag"`
	Assigned []int64   `json:"assigned,omitempty"`
}

// EventData holds the event-only fields. End is strictly after Start.
type EventData struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type CustomReminder struct {
	ID        string    `json:"id"`
	FireAt    time.Time `json:"fire_at"`
	Sent      bool      `json:"sent"`
	CreatedBy int64     `json:"created_by"`
}

// Item is a task or an event. Exactly one of Task and Event is set.
type Item struct {
	ID          string    `json:"id"`
	Owner       int64     `json:"owner"`
	Scope       int64     `json:"scope,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	CreatedAt   time.Time `json:"created_at"`

	SentLabels      []string         `json:"sent_labels,omitempty"`
	CustomReminders []CustomReminder `json:"custom_reminders,omitempty"`

	Task  *TaskData  `json:"task,omitempty"`
	Event *EventData `json:"event,omitempty"`
}

func NewTask(owner, scope int64, title string, deadline time.Time, tag Tag) Item {
	return Item{
		ID:    NewID(),
		Owner: owner,
		Scope: scope,
		Title: title,
		Task:  &TaskData{Deadline: deadline.UTC(), Tag: tag},
	}
}

func NewEvent(owner, scope int64, title string, start, end time.Time) Item {
	return Item{
		ID:    NewID(),
		Owner: owner,
		Scope: scope,
		Title: title,
		Event: &EventData{Start: start.UTC(), End: end.UTC()},
	}
}

func (it Item) Kind() Kind {
	if it.Event != nil {
		return KindEvent
	}
	return KindTask
}

// Anchor is the instant reminders count down to: the deadline of a task or
// the start of an event.
func (it Item) Anchor() time.Time {
	switch {
	case it.Task != nil:
		return it.Task.Deadline
	case it.Event != nil:
		return it.Event.Start
	}
	return time.Time{}
}

func (it Item) HasLabel(label string) bool { return slices.Contains(it.SentLabels, label) }

func (it Item) IsGroup() bool { return it.Task != nil && it.Task.Tag == TagGroup }

// Recipients returns the owner followed by any assignees, deduplicated.
func (it Item) Recipients() []int64 {
	out := []int64{it.Owner}
	if it.Task != nil {
		for _, u := range it.Task.Assigned {
			if u != 0 && !slices.Contains(out, u) {
				out = append(out, u)
			}
		}
	}
	return out
}

// Validate checks the union shape and the stored-instant invariants.
func (it Item) Validate() error {
	if strings.TrimSpace(it.ID) == "" {
		return fmt.Errorf("item: empty id")
	}
	if (it.Task == nil) == (it.Event == nil) {
		return fmt.Errorf("item %s: exactly one of task and event must be set", ShortID(it.ID))
	}
	if it.Event != nil && !it.Event.End.After(it.Event.Start) {
		return fmt.Errorf("item %s: %w: end must be after start", ShortID(it.ID), ErrInvalidRange)
	}
	if it.Anchor().IsZero() {
		return fmt.Errorf("item %s: missing deadline", ShortID(it.ID))
	}
	return nil
}

// Clone returns a deep copy so callers can mutate freely.
// Canonical returns a copy with every instant in UTC.
func (it Item) Canonical() Item {
	cp := it.Clone()
	cp.CreatedAt = timeutil.ToCanonicalUTC(cp.CreatedAt)
	cp.CompletedAt = timeutil.ToCanonicalUTC(cp.CompletedAt)
	if cp.Task != nil {
		cp.Task.Deadline = timeutil.ToCanonicalUTC(cp.Task.Deadline)
	}
	if cp.Event != nil {
		cp.Event.Start = timeutil.ToCanonicalUTC(cp.Event.Start)
		cp.Event.End = timeutil.ToCanonicalUTC(cp.Event.End)
	}
	for i := range cp.CustomReminders {
		cp.CustomReminders[i].FireAt = timeutil.ToCanonicalUTC(cp.CustomReminders[i].FireAt)
	}
	return cp
}

func (it Item) Clone() Item {
	cp := it
	cp.SentLabels = slices.Clone(it.SentLabels)
	cp.CustomReminders = slices.Clone(it.CustomReminders)
	if it.Task != nil {
		t := *it.Task
		t.Assigned = slices.Clone(it.Task.Assigned)
		cp.Task = &t
	}
	if it.Event != nil {
		e := *it.Event
		cp.Event = &e
	}
	return cp
}

// SortByAnchor orders items by anchor, then creation time, then ID. Every
// user-visible listing uses this order.
func SortByAnchor(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return lessByAnchor(items[i], items[j])
	})
}

func lessByAnchor(a, b Item) bool {
	aa, ba := a.Anchor(), b.Anchor()
	if !aa.Equal(ba) {
		return aa.Before(ba)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

type UserSettings struct {
	UserID   int64  `json:"user_id"`
	Timezone string `json:"timezone,omitempty"`
}

// GuildSettings holds the configured notification target per kind.
type GuildSettings struct {
	Scope       int64          `json:"scope"`
	TaskTarget  kit.ChatTarget `json:"task_target,omitzero"`
	EventTarget kit.ChatTarget `json:"event_target,omitzero"`
}

func (g GuildSettings) Target(kind Kind) kit.ChatTarget {
	if kind == KindEvent {
		return g.EventTarget
	}
	return g.TaskTarget
}
