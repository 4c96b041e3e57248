package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides. Secrets usually live here instead of the file.
const (
	EnvTelegramToken  = "REMINDBOT_TELEGRAM_TOKEN"
	EnvDiscordToken   = "REMINDBOT_DISCORD_TOKEN"
	EnvDefaultTZ      = "REMINDBOT_DEFAULT_TZ"
	EnvStoragePath    = "REMINDBOT_STORAGE_PATH"
	EnvPlatform       = "REMINDBOT_PLATFORM"
	EnvObservabilityT = "REMINDBOT_OBSERVABILITY_TOKEN"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set win, and a missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Transport.Telegram.Token = v
	}
	if v, ok := get(EnvDiscordToken); ok {
		cfg.Transport.Discord.Token = v
	}
	if v, ok := get(EnvPlatform); ok {
		cfg.Transport.Platform = v
	}
	if v, ok := get(EnvDefaultTZ); ok {
		cfg.Reminders.DefaultTimezone = v
	}
	if v, ok := get(EnvStoragePath); ok {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{}
		}
		cfg.Storage.Path = v
	}
	if v, ok := get(EnvObservabilityT); ok {
		if cfg.Observability == nil {
			cfg.Observability = &ObservabilityConfig{}
		}
		cfg.Observability.Token = v
	}
}
