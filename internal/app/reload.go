package app

import (
	"context"
	"strings"

	"duckbot/internal/config"
	"duckbot/internal/eventbus"
	"duckbot/internal/render"
	"duckbot/internal/task/scheduler"
	logx "duckbot/pkg/logx"
)

// reloadLoop applies configs published by the watcher.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
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
			// Coalesce bursts to the newest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.apply(ctx, last, next)
			last = next
		}
	}
}

func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.cfg = next

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogConfig(next))
		case "feed":
			a.feed.Apply(mapFeedConfig(next))
			a.disp.SetRenderer(render.New(a.logs.Logger().With(logx.String("comp", "render")), feedLocation(next)))
		case "notifier":
			a.disp.Apply(mapNotifierConfig(next))
		case "scheduler":
			a.sched.Apply(scheduler.Config{Timezone: next.Scheduler.Timezone})
			a.installJobs(mapJobSpecs(next))
		case "metrics":
			if err := a.obs.Apply(ctx, mapObservabilityConfig(next)); err != nil {
				a.log.Error("observability reconfigure failed", logx.Err(err))
			}
		}
	}
	if restart := config.RestartOnly(sections); len(restart) > 0 {
		a.log.Warn("restart required for some changes", logx.Strings("sections", restart))
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigApplied, Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
