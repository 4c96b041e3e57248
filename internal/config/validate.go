package config

import (
	"errors"
	"fmt"
	"strings"

	"remindbot/internal/timeutil"
)

// Validate checks a config after defaults were applied. All problems are
// reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch cfg.Transport.Platform {
	case "telegram", "discord":
	default:
		add("transport.platform: unsupported %q", cfg.Transport.Platform)
	}

	r := cfg.Reminders
	if _, err := timeutil.LoadLocation(r.DefaultTimezone); err != nil {
		add("reminders.default_timezone: %w", err)
	}
	for i, h := range r.ThresholdsHours {
		if h <= 0 {
			add("reminders.thresholds_hours[%d]: must be > 0", i)
		}
		if i > 0 && h >= r.ThresholdsHours[i-1] {
			add("reminders.thresholds_hours: must be strictly descending")
		}
	}
	interval, err := ParseDurationField("reminders.sweep_interval", r.SweepInterval)
	if err != nil {
		errs = append(errs, err)
	}
	tol, err := ParseDurationField("reminders.tolerance", r.Tolerance)
	if err != nil {
		errs = append(errs, err)
	}
	if interval > 0 && tol > 0 && interval > 2*tol {
		add("reminders.sweep_interval %s exceeds twice the tolerance %s; thresholds could be missed", interval, tol)
	}
	for path, raw := range map[string]string{
		"reminders.expire_after":  r.ExpireAfter,
		"reminders.sweep_timeout": r.SweepTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.WeeklySummary.TopN < 0 {
		add("weekly_summary.top_n: must be >= 0")
	}
	if _, err := ParseDurationField("transport.telegram.poll_timeout", cfg.Transport.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	if te := cfg.TaskEngine; te != nil {
		for path, raw := range map[string]string{
			"task_engine.default_timeout": te.DefaultTimeout,
			"task_engine.max_queue_delay": te.MaxQueueDelay,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
		if te.Workers < 0 || te.QueueSize < 0 || te.RetryMax < 0 {
			add("task_engine: workers, queue_size and retry_max must be >= 0")
		}
	}
	if n := cfg.Notifier; n != nil {
		for path, raw := range map[string]string{
			"notifier.retry_base":      n.RetryBase,
			"notifier.retry_max_delay": n.RetryMaxDelay,
			"notifier.send_timeout":    n.SendTimeout,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if s := cfg.Storage; s != nil {
		switch s.Driver {
		case "", "memory", "file", "sqlite", "sqlite3":
		default:
			add("storage.driver: unsupported %q", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if o := cfg.Observability; o != nil && o.Enabled {
		if strings.TrimSpace(o.Token) == "" && !o.AllowInsecure && !isLoopback(o.Addr) {
			add("observability: non-loopback addr %q needs a token or allow_insecure", o.Addr)
		}
	}
	return errors.Join(errs...)
}

func isLoopback(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return true
	}
	for _, p := range []string{"127.", "localhost:", "[::1]:"} {
		if strings.HasPrefix(addr, p) {
			return true
		}
	}
	return false
}
