package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/notifier"
	"remindbot/internal/observability"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	logx "remindbot/pkg/logx"
)

// minWorkers covers the two pool-hosted jobs (sweep and weekly summary) plus
// one worker for the store calls they submit to the same pool.
const minWorkers = 3

func mapLogging(cfg *config.Config) logx.Config {
	l := cfg.Logging
	ops := cfg.Transport.OpsChat
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Ops: logx.OpsConfig{
			Enabled:    l.Ops.Enabled && ops.ChatID != 0,
			ChatID:     ops.ChatID,
			ThreadID:   ops.ThreadID,
			MinLevel:   l.Ops.MinLevel,
			RatePerSec: l.Ops.RatePerSec,
		},
	}
}

func mapPolicy(cfg *config.Config) (reminder.Policy, error) {
	r := cfg.Reminders
	def := reminder.DefaultPolicy()
	tol, err := config.ParseDurationOrDefault("reminders.tolerance", r.Tolerance, def.Tolerance)
	if err != nil {
		return reminder.Policy{}, err
	}
	expire, err := config.ParseDurationOrDefault("reminders.expire_after", r.ExpireAfter, def.ExpireAfter)
	if err != nil {
		return reminder.Policy{}, err
	}
	thresholds := r.ThresholdsHours
	if len(thresholds) == 0 {
		thresholds = def.Thresholds
	}
	return reminder.Policy{
		Thresholds:  thresholds,
		Tolerance:   tol,
		ExpireAfter: expire,
	}.Normalize(), nil
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	s := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(s.Driver))
	switch driver {
	case "", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file", "sqlite", "sqlite3":
		path := strings.TrimSpace(s.Path)
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
		busy, err := config.ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("%w: %s", storage.ErrUnknownDriver, s.Driver)
	}
}

// mapEngine applies the pool defaults. Only store outages are retried;
// validation errors and missing rows fail on the first attempt.
func mapEngine(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{
		Enabled:     true,
		Workers:     4,
		QueueSize:   256,
		HistorySize: 200,
		RetryMax:    2,
		RetryIf: func(err error) bool {
			return errors.Is(err, reminder.ErrStoreUnavailable)
		},
	}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	if te.Enabled != nil {
		out.Enabled = *te.Enabled
	}
	if te.Workers > 0 {
		out.Workers = max(te.Workers, minWorkers)
	}
	if te.QueueSize > 0 {
		out.QueueSize = te.QueueSize
	}
	if te.HistorySize > 0 {
		out.HistorySize = te.HistorySize
	}
	if te.RetryMax > 0 {
		out.RetryMax = te.RetryMax
	}
	var err error
	if out.DefaultTimeout, err = config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
		return engine.Config{}, err
	}
	if out.MaxQueueDelay, err = config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

func mapNotifier(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{RetryMax: 3}, nil
	}
	out := notifier.Config{
		RatePerSec: n.RatePerSec,
		Burst:      n.Burst,
		RetryMax:   n.RetryMax,
	}
	if out.RetryMax == 0 {
		out.RetryMax = 3
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	if out.SendTimeout, err = config.ParseDurationField("notifier.send_timeout", n.SendTimeout); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

// mapObservability turns the optional section into a listener config. The
// runtime profile rates stay untouched (-1) unless pprof is on.
func mapObservability(cfg *config.Config) observability.Config {
	o := cfg.Observability
	if o == nil {
		return observability.Config{MutexProfileFraction: -1, BlockProfileRate: -1}
	}
	out := observability.Config{
		Enabled:              o.Enabled,
		Addr:                 o.Addr,
		Token:                o.Token,
		AllowInsecure:        o.AllowInsecure,
		Pprof:                o.Pprof,
		MutexProfileFraction: -1,
		BlockProfileRate:     -1,
	}
	if o.Pprof {
		out.MutexProfileFraction = o.MutexProfileFraction
		out.BlockProfileRate = o.BlockProfileRate
	}
	return out
}

// validateReload rejects a reloaded config whose sections cannot be mapped,
// so a bad edit never replaces a working one.
func validateReload(_ context.Context, cfg *config.Config) error {
	if _, err := mapPolicy(cfg); err != nil {
		return err
	}
	if _, err := mapEngine(cfg); err != nil {
		return err
	}
	if _, err := mapNotifier(cfg); err != nil {
		return err
	}
	if _, err := mapStorage(cfg); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("reminders.sweep_interval", cfg.Reminders.SweepInterval, time.Minute); err != nil {
		return err
	}
	return nil
}

// OpenStore opens the configured store without building the rest of the
// app, for offline maintenance such as imports.
func OpenStore(cfg *config.Config, log logx.Logger) (reminder.Store, error) {
	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(sc, log.With(logx.String("comp", "storage")))
}
