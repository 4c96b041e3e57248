package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("90s", "1m", "24h").
type Config struct {
	Transport     TransportConfig     `json:"transport"`
	Logging       LoggingConfig       `json:"logging"`
	Reminders     RemindersConfig     `json:"reminders"`
	WeeklySummary WeeklySummaryConfig `json:"weekly_summary"`

	TaskEngine    *TaskEngineConfig    `json:"task_engine,omitempty"`
	Notifier      *NotifierConfig      `json:"notifier,omitempty"`
	Storage       *StorageConfig       `json:"storage,omitempty"`
	Observability *ObservabilityConfig `json:"observability,omitempty"`
}

type TransportConfig struct {
	Platform     string         `json:"platform"` // telegram | discord
	Telegram     TelegramConfig `json:"telegram"`
	Discord      DiscordConfig  `json:"discord"`
	OwnerUserIDs []int64        `json:"owner_user_ids,omitempty"`
	OpsChat      ChatRef        `json:"ops_chat"`
}

type TelegramConfig struct {
	Token       string `json:"token,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token,omitempty"`
}

type ChatRef struct {
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Ops     LoggingOps  `json:"ops"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingOps forwards warnings to transport.ops_chat.
type LoggingOps struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// RemindersConfig drives the sweep.
//
// Defaults:
//   - default_timezone: "Asia/Jakarta"
//   - thresholds_hours: [72, 24, 5]
//   - sweep_interval: "1m"
//   - tolerance: "90s"
//   - expire_after: "24h"
//   - sweep_timeout: "5m"
type RemindersConfig struct {
	DefaultTimezone string `json:"default_timezone"`
	ThresholdsHours []int  `json:"thresholds_hours,omitempty"`
	SweepInterval   string `json:"sweep_interval,omitempty"`
	Tolerance       string `json:"tolerance,omitempty"`
	ExpireAfter     string `json:"expire_after,omitempty"`
	SweepTimeout    string `json:"sweep_timeout,omitempty"`
}

type WeeklySummaryConfig struct {
	// Enabled is a pointer so an omitted key means on.
	Enabled  *bool  `json:"enabled,omitempty"`
	Schedule string `json:"schedule,omitempty"` // cron in reminders.default_timezone
	TopN     int    `json:"top_n,omitempty"`
}

func (w WeeklySummaryConfig) IsEnabled() bool { return w.Enabled == nil || *w.Enabled }

// TaskEngineConfig controls the worker pool.
//
// Defaults: enabled, workers 4, queue_size 256, retry_max 2 (store I/O
// failures only), history_size 200.
type TaskEngineConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// NotifierConfig controls reminder delivery.
type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	Burst         int    `json:"burst,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// StorageConfig selects the store driver.
//
//	"storage": { "driver": "sqlite", "path": "./data/remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ObservabilityConfig controls the HTTP endpoint serving /metrics, /healthz
// and optionally pprof. Bind to loopback unless a token is set.
type ObservabilityConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default "127.0.0.1:9090"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
