package reminder

import (
	"context"
	"time"

	kit "remindbot/internal/transport"
)

// Filter selects items. Zero fields do not filter.
type Filter struct {
	Kind  Kind
	Owner int64
	// Scope restricts to one scope when set. A pointer because 0 is a real
	// scope (direct messages).
	Scope *int64
	Open  bool
	Tag   Tag

	// AnchorAfter is exclusive; AnchorFrom and AnchorTo are inclusive.
	AnchorAfter time.Time
	AnchorFrom  time.Time
	AnchorTo    time.Time
}

func ScopeOf(scope int64) *int64 { return &scope }

// Match reports whether it satisfies f. Drivers without a query language
// use it directly.
func (f Filter) Match(it Item) bool {
	if f.Kind != "" && it.Kind() != f.Kind {
		return false
	}
	if f.Owner != 0 && it.Owner != f.Owner {
		return false
	}
	if f.Scope != nil && it.Scope != *f.Scope {
		return false
	}
	if f.Open && it.Completed {
		return false
	}
	if f.Tag != "" && (it.Task == nil || it.Task.Tag != f.Tag) {
		return false
	}
	a := it.Anchor()
	if !f.AnchorAfter.IsZero() && !a.After(f.AnchorAfter) {
		return false
	}
	if !f.AnchorFrom.IsZero() && a.Before(f.AnchorFrom) {
		return false
	}
	if !f.AnchorTo.IsZero() && a.After(f.AnchorTo) {
		return false
	}
	return true
}

// Patch is a partial single-item update. Nil fields are left alone.
type Patch struct {
	Title       *string
	Description *string
	Anchor      *time.Time // deadline or start
	End         *time.Time // events only
	Tag         *Tag       // tasks only
	Completed   *bool
	CompletedAt *time.Time

	// ResetLabels empties SentLabels; custom reminders keep their flags.
	ResetLabels bool
	// AddAssigned is unioned into the task's assignees.
	AddAssigned []int64
}

// Store persists items and settings. Implementations wrap I/O failures with
// ErrStoreUnavailable and report missing rows as ErrNotFound.
type Store interface {
	InsertItem(ctx context.Context, it Item) error
	// FindItems returns matches sorted with SortByAnchor.
	FindItems(ctx context.Context, f Filter) ([]Item, error)
	GetItem(ctx context.Context, id string) (Item, error)
	UpdateItem(ctx context.Context, id string, p Patch) error
	// AddLabel adds label if absent and reports whether it was added.
	AddLabel(ctx context.Context, id, label string) (bool, error)
	AddCustomReminder(ctx context.Context, id string, r CustomReminder) error
	MarkCustomSent(ctx context.Context, id, reminderID string) error
	DeleteItem(ctx context.Context, id string) error

	// GetUserSettings returns zero settings, not ErrNotFound, for unknown users.
	GetUserSettings(ctx context.Context, user int64) (UserSettings, error)
	PutUserTimezone(ctx context.Context, user int64, tz string) error
	// GetGuildSettings returns zero settings for unknown scopes.
	GetGuildSettings(ctx context.Context, scope int64) (GuildSettings, error)
	PutGuildTarget(ctx context.Context, scope int64, kind Kind, target kit.ChatTarget) error

	Close() error
}

// Sink delivers notifications.
type Sink interface {
	// ResolveTarget tries the configured target, then the scope's default
	// channel, then the first channel the bot may post in.
	ResolveTarget(ctx context.Context, scope int64, kind Kind) (kit.ChatTarget, bool)
	// Send delivers synchronously. Errors wrap ErrDeliveryFailure.
	Send(ctx context.Context, to kit.ChatTarget, mentions []int64, msg kit.Rich) error
}

// Runner runs blocking work off the caller's goroutine and waits for it.
type Runner interface {
	Do(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Inline runs work on the calling goroutine.
type Inline struct{}

func (Inline) Do(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Metrics records the sweep's otherwise silent outcomes.
type Metrics interface {
	Delivery(kind Kind, result string)
	PhaseFailure(kind Kind)
	ItemError(kind Kind)
	Expired(kind Kind)
	SweepDuration(d time.Duration)
	WeeklySummaries(sent, skipped int)
}

type nopMetrics struct{}

func (nopMetrics) Delivery(Kind, string)       {}
func (nopMetrics) PhaseFailure(Kind)           {}
func (nopMetrics) ItemError(Kind)              {}
func (nopMetrics) Expired(Kind)                {}
func (nopMetrics) SweepDuration(time.Duration) {}
func (nopMetrics) WeeklySummaries(int, int)    {}

// Delivery results.
const (
	ResultSent     = "sent"
	ResultFailed   = "failed"
	ResultNoTarget = "no_target"
)
