package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"streamwatch/internal/config"
	"streamwatch/internal/eventbus"
	"streamwatch/internal/notify"
	"streamwatch/internal/observability/pprof"
	"streamwatch/internal/plan"
	"streamwatch/internal/poller"
	"streamwatch/internal/registry"
	"streamwatch/internal/runtime/supervisor"
	"streamwatch/internal/scheduler"
	"streamwatch/internal/store"
	"streamwatch/internal/upstream/twitch"
	"streamwatch/internal/upstream/youtube"
	"streamwatch/internal/watch"
	"streamwatch/pkg/logx"
	"streamwatch/pkg/systemd"
)

// App owns the full engine: store, platform handlers, scheduler,
// registry and the config hot-reload loop.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	bus    eventbus.Bus
	store  store.Store
	lookup *planLookup
	gate   *plan.Gate
	reg    *registry.Service

	sched    *scheduler.Service
	pprof    *pprof.Service
	handlers []*poller.Handler

	retention time.Duration
}

// planLookup wraps the config-backed tier lookup so plan changes apply
// on hot-reload without rebuilding the gate.
type planLookup struct {
	v atomic.Value // stores plan.StaticLookup
}

func newPlanLookup(pc config.PlansConfig) *planLookup {
	l := &planLookup{}
	l.swap(pc)
	return l
}

func (l *planLookup) swap(pc config.PlansConfig) {
	l.v.Store(plan.StaticLookup{Tenants: pc.Tenants, Default: pc.Default})
}

func (l *planLookup) GetTier(ctx context.Context, tenantID string) (plan.Tier, error) {
	return l.v.Load().(plan.StaticLookup).GetTier(ctx, tenantID)
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	sc, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(sc, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}
	log.Info("store opened", logx.String("driver", sc.Driver))

	bus := eventbus.New()

	lookup := newPlanLookup(cfg.Plans)
	gate := plan.NewGate(lookup, st)
	reg := registry.New(st, gate, bus, log.With(logx.String("comp", "registry")))

	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return nil, err
	}
	dispatcher := notify.NewDispatcher(ncfg, log.With(logx.String("comp", "dispatch")))
	notifier := notify.NewNotifier(dispatcher, st, bus, log.With(logx.String("comp", "notify")))

	sched := scheduler.New(log.With(logx.String("comp", "scheduler")))

	ytClient := youtube.NewClient(youtube.Config{APIKeys: cfg.YouTube.APIKeys},
		log.With(logx.String("comp", "youtube")))
	ytSource := youtube.NewSource(ytClient, st,
		youtube.SourceConfig{FeedProbe: cfg.YouTube.FeedProbe},
		log.With(logx.String("comp", "youtube")))

	twClient := twitch.NewClient(twitch.Config{
		ClientID:     cfg.Twitch.ClientID,
		ClientSecret: cfg.Twitch.ClientSecret,
	}, log.With(logx.String("comp", "twitch")))
	twSource := twitch.NewSource(twClient, log.With(logx.String("comp", "twitch")))

	handlers := []*poller.Handler{
		poller.NewHandler(ytSource, st, gate, notifier, sched, bus,
			mapPollerConfig(cfg, watch.PlatformYouTube),
			log.With(logx.String("comp", "poller.youtube"))),
		poller.NewHandler(twSource, st, gate, notifier, sched, bus,
			mapPollerConfig(cfg, watch.PlatformTwitch),
			log.With(logx.String("comp", "poller.twitch"))),
	}

	pprofSvc := pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     st,
		lookup:    lookup,
		gate:      gate,
		reg:       reg,
		sched:     sched,
		pprof:     pprofSvc,
		handlers:  handlers,
		retention: sc.OutcomeRetention,
	}, nil
}

// Registry exposes the target write path (registration admission).
func (a *App) Registry() *registry.Service { return a.reg }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := mapStoreConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifyConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	a.sched.Start(a.sup.Context())
	for _, h := range a.handlers {
		h.Start()
	}
	a.pprof.Reconfigure(a.sup.Context(), mapPprofConfig(a.cfgm.Get()))

	if a.retention > 0 {
		retention := a.retention
		a.sched.AddEvery("store.prune", time.Hour, func(c context.Context) {
			n, err := a.store.PruneOutcomes(c, time.Now().Add(-retention))
			if err != nil {
				a.log.Warn("outcome prune failed", logx.Err(err))
				return
			}
			if n > 0 {
				a.log.Info("outcomes pruned", logx.Int64("removed", n))
			}
		})
	}

	// Event observer (debug visibility; components publish, nothing depends on it).
	events, unsubEvents := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsubEvents()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for coalescing := true; coalescing; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						coalescing = false
					}
				}
				a.applyReload(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		systemd.RunWatchdog(c)
	})
	systemd.NotifyReady()
	systemd.NotifyStatus("watching")

	a.log.Info("app started")
	return nil
}

// applyReload applies the hot-reloadable sections of a new config.
// Sections that would require rebuilding live components (storage,
// upstream credentials, notify transport, poller sizing) log a
// restart-required warning instead.
func (a *App) applyReload(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})
		case "plans":
			a.lookup.swap(newCfg.Plans)
		case "pprof":
			a.pprof.Reconfigure(ctx, mapPprofConfig(newCfg))
		case "storage", "youtube", "twitch", "notify", "poller":
			a.log.Warn("config section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	systemd.NotifyStopping()
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Bound each shutdown step so one component can't stall the whole stop.
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
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Handlers first: deregister ticks so in-flight sweeps drain.
	step("handlers", 2*time.Second, func(c context.Context) error {
		for _, h := range a.handlers {
			h.Stop()
		}
		return nil
	})
	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("pprof", 2*time.Second, func(c context.Context) error { a.pprof.Stop(c); return nil })
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("store", 2*time.Second, func(c context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
