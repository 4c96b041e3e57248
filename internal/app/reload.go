package app

import (
	"context"
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/timeutil"
	logx "remindbot/pkg/logx"
)

// reloadLoop applies published configs until ctx ends. Bursts are coalesced
// so only the newest config is applied.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

// applyConfig pushes the hot-reloadable sections into the running
// components. Transport and storage changes only take effect on restart.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	if config.NeedsRestart(sections) {
		a.log.Warn("transport or storage config changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogging(next))
	a.router.SetOwners(next.Transport.OwnerUserIDs)

	if ec, err := mapEngine(next); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, ec)
	}

	if nc, err := mapNotifier(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(nc)
	}

	a.applyReminders(next)

	a.obs.Reconfigure(ctx, mapObservability(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Time: time.Now(), Data: sections})
}

func (a *App) applyReminders(next *config.Config) {
	policy, err := mapPolicy(next)
	if err != nil {
		a.log.Warn("invalid reminders config; keeping previous", logx.Err(err))
		return
	}
	tz := next.Reminders.DefaultTimezone
	loc, err := timeutil.LoadLocation(tz)
	if err != nil {
		a.log.Warn("invalid default timezone; keeping previous", logx.String("tz", tz), logx.Err(err))
		return
	}
	a.svc.SetDefaultTimezone(tz)
	a.sweeper.Apply(policy, loc)
	a.weekly.Apply(loc, next.WeeklySummary.TopN)
	a.sched.Apply(scheduler.Config{Enabled: true, Timezone: tz})
	if err := a.registerJobs(next); err != nil {
		a.log.Warn("schedule update failed", logx.Err(err))
	}
}
