package config

import "strings"

const (
	DefaultTimezone       = "Asia/Jakarta"
	DefaultSweepInterval  = "1m"
	DefaultTolerance      = "90s"
	DefaultExpireAfter    = "24h"
	DefaultSweepTimeout   = "5m"
	DefaultWeeklySchedule = "0 20 * * 0"
	DefaultWeeklyTopN     = 5
	DefaultStoragePath    = "./data/remindbot.db"
)

func DefaultThresholdsHours() []int { return []int{72, 24, 5} }

func applyDefaults(cfg *Config) {
	t := &cfg.Transport
	t.Platform = strings.ToLower(strings.TrimSpace(t.Platform))
	if t.Platform == "" {
		t.Platform = "telegram"
	}

	r := &cfg.Reminders
	if strings.TrimSpace(r.DefaultTimezone) == "" {
		r.DefaultTimezone = DefaultTimezone
	}
	if len(r.ThresholdsHours) == 0 {
		r.ThresholdsHours = DefaultThresholdsHours()
	}
	setIfEmpty(&r.SweepInterval, DefaultSweepInterval)
	setIfEmpty(&r.Tolerance, DefaultTolerance)
	setIfEmpty(&r.ExpireAfter, DefaultExpireAfter)
	setIfEmpty(&r.SweepTimeout, DefaultSweepTimeout)

	w := &cfg.WeeklySummary
	setIfEmpty(&w.Schedule, DefaultWeeklySchedule)
	if w.TopN <= 0 {
		w.TopN = DefaultWeeklyTopN
	}

	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{}
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Driver != "memory" {
		setIfEmpty(&cfg.Storage.Path, DefaultStoragePath)
	}
}

func setIfEmpty(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}
