package notifier

import (
	"context"
	"time"

	"remindbot/internal/reminder"
)

// Config controls delivery pacing and retries.
type Config struct {
	RatePerSec    int
	Burst         int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// Settings is the slice of the store the notifier reads.
type Settings interface {
	GetGuildSettings(ctx context.Context, scope int64) (reminder.GuildSettings, error)
}

type HistoryItem struct {
	At       time.Time
	ChatID   int64
	Title    string
	Attempts int
	Error    string
}

// NotificationEvent is published on the bus after each delivery.
type NotificationEvent struct {
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
