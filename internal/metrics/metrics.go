// Package metrics exposes the bot's prometheus collectors. It records the
// sweep outcomes through reminder.Metrics and follows the event bus for
// everything else.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	"remindbot/internal/task/engine"
)

const namespace = "remindbot"

// Recorder owns a private registry; nothing is registered globally.
type Recorder struct {
	reg *prometheus.Registry

	deliveries    *prometheus.CounterVec
	phaseFailures *prometheus.CounterVec
	itemErrors    *prometheus.CounterVec
	expired       *prometheus.CounterVec
	sweepDur      prometheus.Histogram
	lastSweep     prometheus.Gauge
	weekly        *prometheus.CounterVec

	tasks       *prometheus.CounterVec
	taskDur     *prometheus.HistogramVec
	notify      *prometheus.CounterVec
	reloads     prometheus.Counter
	busDropped  prometheus.GaugeFunc
	lastWeekly  prometheus.Gauge
	eventsSeen  prometheus.Counter
}

var _ reminder.Metrics = (*Recorder)(nil)

// New builds the collectors. bus may be nil; its drop counter is exported
// when set.
func New(bus eventbus.Bus) *Recorder {
	r := &Recorder{reg: prometheus.NewRegistry()}

	r.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "deliveries_total",
		Help:      "Reminder notices by item kind and result (sent, failed, no_target).",
	}, []string{"kind", "result"})
	r.phaseFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "phase_failures_total",
		Help:      "Sweep phases that could not load their items.",
	}, []string{"kind"})
	r.itemErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "item_errors_total",
		Help:      "Items whose evaluation or bookkeeping failed during a sweep.",
	}, []string{"kind"})
	r.expired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "expired_total",
		Help:      "Items deleted after passing the expiry window.",
	}, []string{"kind"})
	r.sweepDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "duration_seconds",
		Help:      "Wall time of one sweep tick.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})
	r.lastSweep = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sweep",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the last finished sweep tick.",
	})
	r.weekly = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "weekly",
		Name:      "summaries_total",
		Help:      "Weekly summaries by result (sent, skipped).",
	}, []string{"result"})
	r.lastWeekly = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "weekly",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time of the last weekly summary run.",
	})

	r.tasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "tasks_total",
		Help:      "Worker pool task outcomes (finished, failed, skipped, dropped).",
	}, []string{"outcome"})
	r.taskDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "task_duration_seconds",
		Help:      "Worker pool task run time by task name.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"task"})
	r.notify = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifier",
		Name:      "messages_total",
		Help:      "Notifier deliveries by result.",
	}, []string{"result"})
	r.reloads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "config",
		Name:      "reloads_total",
		Help:      "Applied configuration reloads.",
	})
	r.eventsSeen = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "observed_total",
		Help:      "Bus events consumed by the metrics watcher.",
	})

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.deliveries, r.phaseFailures, r.itemErrors, r.expired, r.sweepDur, r.lastSweep,
		r.weekly, r.lastWeekly, r.tasks, r.taskDur, r.notify, r.reloads, r.eventsSeen,
	)
	if bus != nil {
		r.busDropped = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped",
			Help:      "Bus events lost to slow subscribers.",
		}, func() float64 { return float64(bus.Dropped()) })
		r.reg.MustRegister(r.busDropped)
	}
	return r
}

// Registry is exposed for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// Handler serves the registry in the prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// GaugeFunc registers a gauge read at scrape time, e.g. a queue length.
func (r *Recorder) GaugeFunc(subsystem, name, help string, fn func() float64) error {
	return r.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

func (r *Recorder) Delivery(kind reminder.Kind, result string) {
	r.deliveries.WithLabelValues(string(kind), result).Inc()
}

func (r *Recorder) PhaseFailure(kind reminder.Kind) {
	r.phaseFailures.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) ItemError(kind reminder.Kind) {
	r.itemErrors.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) Expired(kind reminder.Kind) {
	r.expired.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) SweepDuration(d time.Duration) {
	r.sweepDur.Observe(d.Seconds())
}

func (r *Recorder) WeeklySummaries(sent, skipped int) {
	r.weekly.WithLabelValues(reminder.ResultSent).Add(float64(sent))
	r.weekly.WithLabelValues("skipped").Add(float64(skipped))
}

// Watch folds bus events into the collectors until ctx ends.
func (r *Recorder) Watch(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			r.observe(ev)
		}
	}
}

func (r *Recorder) observe(ev eventbus.Event) {
	r.eventsSeen.Inc()
	switch ev.Type {
	case eventbus.TypeTaskFinished, eventbus.TypeTaskFailed:
		outcome := "finished"
		if ev.Type == eventbus.TypeTaskFailed {
			outcome = "failed"
		}
		r.tasks.WithLabelValues(outcome).Inc()
		if te, ok := ev.Data.(engine.TaskEvent); ok {
			r.taskDur.WithLabelValues(te.Name).Observe(te.Duration.Seconds())
		}
	case eventbus.TypeTaskSkipped:
		r.tasks.WithLabelValues("skipped").Inc()
	case eventbus.TypeTaskDropped:
		r.tasks.WithLabelValues("dropped").Inc()
	case eventbus.TypeNotifySent:
		r.notify.WithLabelValues(reminder.ResultSent).Inc()
	case eventbus.TypeNotifyFailed:
		r.notify.WithLabelValues(reminder.ResultFailed).Inc()
	case eventbus.TypeConfigReloaded:
		r.reloads.Inc()
	case eventbus.TypeSweepDone:
		r.lastSweep.Set(float64(ev.Time.Unix()))
	case eventbus.TypeWeeklyDone:
		r.lastWeekly.Set(float64(ev.Time.Unix()))
	}
}
