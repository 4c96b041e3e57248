package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remindbot/internal/commands"
	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/metrics"
	"remindbot/internal/notifier"
	"remindbot/internal/observability"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/timeutil"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/discord"
	"remindbot/internal/transport/router"
	"remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

// Schedule names registered with the scheduler.
const (
	JobSweep  = "reminders.sweep"
	JobWeekly = "reminders.weekly"
)

// App holds every long-lived component. It is built once in main and
// passed down; nothing here is a package-level singleton.
type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   reminder.Store
	adapter kit.Adapter
	engine  *engine.Service
	sched   *scheduler.Service
	notif   *notifier.Service
	router  *router.Router
	menu    []kit.BotCommand

	svc     *reminder.Service
	sweeper *reminder.Sweeper
	weekly  *reminder.WeeklyJob

	metrics *metrics.Recorder
	obs     *observability.Server

	updates chan kit.Update
	now     func() time.Time
}

// Option adjusts construction, mostly for tests and one-shot commands.
type Option func(*options)

type options struct {
	adapter kit.Adapter
	store   reminder.Store
	now     func() time.Time
}

// WithAdapter skips building the platform adapter from config.
func WithAdapter(ad kit.Adapter) Option { return func(o *options) { o.adapter = ad } }

// WithStore skips opening the configured store.
func WithStore(st reminder.Store) Option { return func(o *options) { o.store = st } }

// WithClock replaces time.Now for the reminder components.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New loads the config at cfgPath and builds the app. Configuration errors
// surface here, before anything starts.
func New(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return build(cfgm, cfg, opts...)
}

func build(cfgm *config.ConfigManager, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	// The ops sink needs the adapter, which needs a logger; attach it after.
	logSvc, root := logx.New(mapLogging(cfg), nil)
	log := root.With(logx.String("comp", "app"))

	defLoc, err := timeutil.LoadLocation(cfg.Reminders.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("reminders.default_timezone: %w", err)
	}
	policy, err := mapPolicy(cfg)
	if err != nil {
		return nil, err
	}

	ad := o.adapter
	if ad == nil {
		if ad, err = newAdapter(cfg, root); err != nil {
			return nil, err
		}
	}
	logSvc.SetSender(ad)

	st := o.store
	if st == nil {
		sc, err := mapStorage(cfg)
		if err != nil {
			return nil, err
		}
		if st, err = storage.Open(sc, root.With(logx.String("comp", "storage"))); err != nil {
			return nil, err
		}
		log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	bus := eventbus.New()
	rec := metrics.New(bus)

	engCfg, err := mapEngine(cfg)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engCfg, root.With(logx.String("comp", "taskengine")), bus)
	sched := scheduler.New(scheduler.Config{
		Enabled:  true,
		Timezone: cfg.Reminders.DefaultTimezone,
	}, eng, root.With(logx.String("comp", "scheduler")))

	ncfg, err := mapNotifier(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, st, root.With(logx.String("comp", "notifier")), bus)

	deps := reminder.Deps{
		Store:   st,
		Sink:    notif,
		Pool:    eng,
		Log:     root.With(logx.String("comp", "reminders")),
		Metrics: rec,
		Now:     o.now,
	}
	svc := reminder.NewService(deps, cfg.Reminders.DefaultTimezone)

	rt := router.New(root.With(logx.String("comp", "router")), ad, cfg.Transport.OwnerUserIDs, router.Options{
		UnknownText: "❓ Perintah tidak dikenal. Ketik /help untuk daftar perintah.",
		BusyText:    "⏳ Bot sedang sibuk, coba lagi sebentar.",
		DeniedText:  "⛔ Perintah ini khusus pemilik bot.",
	})
	handlers := commands.New(svc, commands.Config{Platform: ad.Name(), Now: o.now}, root.With(logx.String("comp", "commands")))
	rt.SetErrorReply(commands.ErrorReply)
	menu := rt.SetRegistry(handlers.Commands())

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   st,
		adapter: ad,
		engine:  eng,
		sched:   sched,
		notif:   notif,
		router:  rt,
		menu:    menu,
		svc:     svc,
		sweeper: reminder.NewSweeper(deps, policy, defLoc),
		weekly:  reminder.NewWeeklyJob(deps, defLoc, cfg.WeeklySummary.TopN),
		metrics: rec,
		updates: make(chan kit.Update, 256),
		now:     o.now,
	}
	if err := rec.GaugeFunc("engine", "queue_length", "Tasks waiting for a worker.", func() float64 {
		return float64(eng.Snapshot().QueueLen)
	}); err != nil {
		return nil, err
	}
	a.obs = observability.New(mapObservability(cfg), rec.Handler(), a.health, root)
	return a, nil
}

func newAdapter(cfg *config.Config, log logx.Logger) (kit.Adapter, error) {
	t := cfg.Transport
	switch t.Platform {
	case "discord":
		return discord.New(discord.Config{Token: t.Discord.Token}, log.With(logx.String("comp", "discord")))
	case "telegram":
		poll, err := config.ParseDurationOrDefault("transport.telegram.poll_timeout", t.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{Token: t.Telegram.Token, PollTimeout: poll}, log.With(logx.String("comp", "telegram")))
	default:
		return nil, fmt.Errorf("transport.platform: unsupported %q", t.Platform)
	}
}

func (a *App) Logger() logx.Logger           { return a.log }
func (a *App) Service() *reminder.Service    { return a.svc }
func (a *App) Metrics() *metrics.Recorder    { return a.metrics }
func (a *App) Config() *config.Config        { return a.cfgm.Get() }
func (a *App) Store() reminder.Store         { return a.store }
func (a *App) Engine() *engine.Service       { return a.engine }
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Done is closed when the app supervisor stops, on a fatal error or Stop.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// health backs /healthz: the supervisor is alive and the store answers.
func (a *App) health(ctx context.Context) error {
	if err := a.Err(); err != nil {
		return err
	}
	if _, err := a.store.GetGuildSettings(ctx, 0); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// Start brings components up in dependency order: workers, transport,
// dispatcher, schedules, then the observability listener.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateReload)

	a.engine.Start(c)
	if err := a.adapter.Start(c, a.updates); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("start %s adapter: %w", a.adapter.Name(), err)
	}
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok && len(a.menu) > 0 {
		a.sup.Go0("commands.menu", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 15*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mctx, a.menu); err != nil {
				a.log.Warn("command menu update failed", logx.Err(err))
			}
		})
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})
	a.sup.Go("metrics.watch", func(c context.Context) error {
		return a.metrics.Watch(c, a.bus)
	})

	if err := a.registerJobs(a.cfgm.Get()); err != nil {
		a.sup.Cancel()
		return err
	}
	a.sched.Start(c)
	a.obs.Reconfigure(c, mapObservability(a.cfgm.Get()))

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", func(c context.Context) error { return a.cfgm.Watch(c) })

	a.log.Info("app started",
		logx.String("platform", a.adapter.Name()),
		logx.Int("commands", len(a.menu)),
	)
	return nil
}

// registerJobs installs the sweep and, when enabled, the weekly summary.
// Calling it again replaces both.
func (a *App) registerJobs(cfg *config.Config) error {
	every, err := config.ParseDurationOrDefault("reminders.sweep_interval", cfg.Reminders.SweepInterval, time.Minute)
	if err != nil {
		return err
	}
	timeout, err := config.ParseDurationOrDefault("reminders.sweep_timeout", cfg.Reminders.SweepTimeout, 5*time.Minute)
	if err != nil {
		return err
	}
	if err := a.sched.AddInterval(JobSweep, every, timeout, a.runSweep); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}

	w := cfg.WeeklySummary
	if !w.IsEnabled() {
		if a.sched.Remove(JobWeekly) {
			a.log.Info("weekly summary disabled")
		}
		return nil
	}
	if err := a.sched.AddSchedule(JobWeekly, w.Schedule, timeout, a.runWeekly); err != nil {
		return fmt.Errorf("register weekly summary: %w", err)
	}
	return nil
}

func (a *App) runSweep(ctx context.Context) error {
	res := a.sweeper.Tick(ctx)
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeSweepDone, Time: a.now(), Data: res})
	return nil
}

func (a *App) runWeekly(ctx context.Context) error {
	res, err := a.weekly.Run(ctx)
	if err != nil {
		return err
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeWeeklyDone, Time: a.now(), Data: res})
	return nil
}

// SweepOnce runs a single sweep tick outside the scheduler.
func (a *App) SweepOnce(ctx context.Context) (reminder.TickResult, error) {
	stop := a.startWorkers(ctx)
	defer stop()
	return a.sweeper.Tick(ctx), nil
}

// WeeklyOnce posts the weekly summary for the last completed window now.
func (a *App) WeeklyOnce(ctx context.Context) (reminder.WeeklyResult, error) {
	stop := a.startWorkers(ctx)
	defer stop()
	return a.weekly.Run(ctx)
}

// Import inserts decoded items, skipping IDs that already exist.
func (a *App) Import(ctx context.Context, items []reminder.Item) (inserted, skipped int, err error) {
	stop := a.startWorkers(ctx)
	defer stop()
	return a.svc.Import(ctx, items)
}

func (a *App) startWorkers(ctx context.Context) func() {
	a.engine.Start(ctx)
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		a.engine.Stop(sctx)
	}
}

// Close releases what New acquired for apps that were never started.
func (a *App) Close() error {
	sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	a.engine.Stop(sctx)
	cancel()
	err := a.store.Close()
	if cerr := a.logs.Close(); err == nil {
		err = cerr
	}
	return err
}

// Stop shuts components down in reverse start order. Each step is bounded so
// one stuck component cannot hold up the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("observability", time.Second, func(c context.Context) error { a.obs.Stop(c); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}
