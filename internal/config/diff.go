package config

import (
	"encoding/json"
	"slices"

	logx "remindbot/pkg/logx"
)

// Sections whose change needs a process restart to take effect.
var restartSections = []string{"transport", "storage"}

// SummarizeConfigChange lists the top-level sections that differ and a few
// safe attributes describing the new values. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field

	if !sameJSON(redactTransport(oldCfg.Transport), redactTransport(newCfg.Transport)) ||
		(oldCfg.Transport.Telegram.Token == "") != (newCfg.Transport.Telegram.Token == "") ||
		(oldCfg.Transport.Discord.Token == "") != (newCfg.Transport.Discord.Token == "") {
		changed = append(changed, "transport")
		attrs = append(attrs,
			logx.String("transport.platform", newCfg.Transport.Platform),
			logx.Int("transport.owner_count", len(newCfg.Transport.OwnerUserIDs)),
			logx.Bool("transport.ops_chat_set", newCfg.Transport.OpsChat.ChatID != 0),
		)
	}
	if !sameJSON(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.ops", newCfg.Logging.Ops.Enabled),
		)
	}
	if !sameJSON(oldCfg.Reminders, newCfg.Reminders) {
		r := newCfg.Reminders
		changed = append(changed, "reminders")
		attrs = append(attrs,
			logx.String("reminders.default_timezone", r.DefaultTimezone),
			logx.Any("reminders.thresholds_hours", r.ThresholdsHours),
			logx.String("reminders.sweep_interval", r.SweepInterval),
		)
	}
	if !sameJSON(oldCfg.WeeklySummary, newCfg.WeeklySummary) {
		changed = append(changed, "weekly_summary")
		attrs = append(attrs,
			logx.Bool("weekly_summary.enabled", newCfg.WeeklySummary.IsEnabled()),
			logx.String("weekly_summary.schedule", newCfg.WeeklySummary.Schedule),
		)
	}
	if !sameJSON(oldCfg.TaskEngine, newCfg.TaskEngine) {
		changed = append(changed, "task_engine")
	}
	if !sameJSON(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
	}
	if !sameJSON(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if s := newCfg.Storage; s != nil {
			attrs = append(attrs, logx.String("storage.driver", s.Driver))
		}
	}
	if !sameJSON(redactObservability(oldCfg.Observability), redactObservability(newCfg.Observability)) {
		changed = append(changed, "observability")
		if o := newCfg.Observability; o != nil {
			attrs = append(attrs,
				logx.Bool("observability.enabled", o.Enabled),
				logx.String("observability.addr", o.Addr),
				logx.Bool("observability.token_set", o.Token != ""),
			)
		}
	}
	return changed, attrs
}

// NeedsRestart reports whether any changed section only applies at startup.
func NeedsRestart(changed []string) bool {
	for _, s := range changed {
		if slices.Contains(restartSections, s) {
			return true
		}
	}
	return false
}

func redactTransport(t TransportConfig) TransportConfig {
	t.Telegram.Token, t.Discord.Token = "", ""
	return t
}

func redactObservability(o *ObservabilityConfig) *ObservabilityConfig {
	if o == nil {
		return nil
	}
	c := *o
	if c.Token != "" {
		c.Token = "set"
	}
	return &c
}

func sameJSON(a, b any) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && string(ab) == string(bb)
}
