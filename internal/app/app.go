package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"duckbot/internal/commands"
	"duckbot/internal/config"
	"duckbot/internal/confirm"
	"duckbot/internal/notifier"
	"duckbot/internal/observability"
	"duckbot/internal/runtime/supervisor"
	"duckbot/internal/task/scheduler"
	"duckbot/internal/transport"
	"duckbot/internal/transport/discord"
	logx "duckbot/pkg/logx"
)

type App struct {
	*base

	sup *supervisor.Supervisor

	adapter *discord.Adapter
	disp    *notifier.Dispatcher
	sched   *scheduler.Service
	router  *commands.Router
	confirm *confirm.Registry
	obs     *observability.Server

	updates chan transport.Update
}

func New(cfgPath string) (*App, error) {
	b, err := openBase(cfgPath)
	if err != nil {
		return nil, err
	}
	a, err := build(b)
	if err != nil {
		b.close()
		return nil, err
	}
	return a, nil
}

func build(b *base) (*App, error) {
	comp := func(name string) logx.Logger { return b.logs.Logger().With(logx.String("comp", name)) }

	ad, err := discord.New(mapDiscordConfig(b.cfg), comp("discord"))
	if err != nil {
		return nil, err
	}
	b.logs.SetSender(ad)

	disp := notifier.New(mapNotifierConfig(b.cfg), ad, b.store, b.renderer(), comp("notifier"), b.bus)
	sched := scheduler.New(scheduler.Config{Timezone: b.cfg.Scheduler.Timezone}, comp("scheduler"))
	reg := confirm.NewRegistry()

	router := commands.NewRouter(comp("commands"), ad, 0)
	commands.NewHandlers(commands.Deps{
		Store:      b.store,
		Dispatcher: disp,
		Feed:       b.feed,
		Confirm:    reg,
		Bus:        b.bus,
	}).Register(router)
	ad.SetCommands(router.Specs())

	a := &App{
		base:    b,
		adapter: ad,
		disp:    disp,
		sched:   sched,
		router:  router,
		confirm: reg,
		updates: make(chan transport.Update, 256),
	}
	a.obs = observability.New(mapObservabilityConfig(b.cfg), comp("observability"), a.health)
	return a, nil
}

// Done is closed when the app context ends (fatal error or Stop).
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

func (a *App) health() error {
	if a.feed.FetchedAt().IsZero() {
		return errors.New("feed not loaded")
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetValidator(validateSchedules)

	if err := a.feed.Load(ctx); err != nil {
		a.log.Warn("restore feed failed", logx.Err(err))
	}
	a.obs.SetStatus(func() any { return a.sup.Counters() })
	if err := a.obs.Start(a.sup.Context()); err != nil {
		a.log.Error("observability server not started", logx.Err(err))
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("discord: %w", err)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.sched.Start(a.sup.Context())
	a.installJobs(mapJobSpecs(a.cfg))

	// Initial refresh goes through the scheduler so it shares the re-entry guard.
	if err := a.sched.RunNow(JobFeedRefresh); err != nil {
		if !errors.Is(err, scheduler.ErrUnknown) {
			a.log.Warn("initial feed refresh not started", logx.Err(err))
		} else {
			a.sup.Go0("feed.initial", func(c context.Context) { _ = a.feed.Refresh(c) })
		}
	}

	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, time.Minute))
	a.sup.Go0("systemd.watchdog", func(c context.Context) { watchdogLoop(c, a.log) })

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.Int("commands", len(a.router.Specs())))
	return nil
}

func (a *App) installJobs(js jobSpecs) {
	install := func(name, spec string, job scheduler.Job) {
		if config.Disabled(spec) {
			if a.sched.Remove(name) {
				a.log.Info("job disabled", logx.String("job", name))
			}
			return
		}
		if err := a.sched.AddSchedule(name, spec, js.timeout, job); err != nil {
			a.log.Error("schedule job failed", logx.String("job", name), logx.String("spec", spec), logx.Err(err))
		}
	}
	install(JobFeedRefresh, js.feedRefresh, a.feed.Refresh)
	install(JobNotifyAll, js.notify, a.notifyAll)
}

func (a *App) notifyAll(ctx context.Context) error {
	_, err := a.disp.Notify(ctx, a.feed.Snapshot(), "")
	return err
}

func (a *App) logEvents(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			if n := a.bus.Dropped(); n > 0 {
				a.log.Debug("eventbus drops", logx.Int64("dropped", int64(n)))
			}
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func validateSchedules(_ context.Context, cfg *config.Config) error {
	js := mapJobSpecs(cfg)
	for name, spec := range map[string]string{"scheduler.feed_refresh": js.feedRefresh, "scheduler.notify": js.notify} {
		if config.Disabled(spec) {
			continue
		}
		if err := scheduler.ValidateSchedule(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Stop shuts components down in order, each bounded so one slow step cannot
// stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.base.close()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.sup.Cancel()

	a.step(ctx, "scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "confirm", 0, func(context.Context) error { a.confirm.Close(); return nil })
	a.step(ctx, "adapter", 3*time.Second, a.adapter.Stop)
	a.step(ctx, "observability", 2*time.Second, a.obs.Stop)
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.step(ctx, "storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx := ctx
	if limit > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

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
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
		}()
	}
}
