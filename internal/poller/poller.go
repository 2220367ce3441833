// Package poller drives the per-platform check pipeline: a fixed-period
// control loop that fetches every eligible watch target, decides
// novelty, and hands notifiable items to the notifier.
package poller

import (
	"sync"

	"golang.org/x/time/rate"

	"streamwatch/internal/eventbus"
	"streamwatch/internal/notify"
	"streamwatch/internal/plan"
	"streamwatch/internal/scheduler"
	"streamwatch/internal/store"
	logx "streamwatch/pkg/logx"
)

// Handler is one platform's control loop. It is either Idle or Running;
// Start and Stop are idempotent, and at most one sweep is in flight at
// a time (overlapping ticks are skipped by the scheduler).
type Handler struct {
	mu      sync.Mutex
	running bool

	source   Source
	store    store.Store
	gate     *plan.Gate
	notifier *notify.Notifier
	sched    *scheduler.Service
	bus      eventbus.Bus

	cfg     Config
	jobID   string
	limiter *rate.Limiter
	locks   *keyedMutex
	log     logx.Logger
}

// NewHandler builds one platform's control loop. bus may be nil.
func NewHandler(source Source, st store.Store, gate *plan.Gate, notifier *notify.Notifier, sched *scheduler.Service, bus eventbus.Bus, cfg Config, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	platform := source.Platform()
	cfg = cfg.withDefaults(platform)
	return &Handler{
		source:   source,
		store:    st,
		gate:     gate,
		notifier: notifier,
		sched:    sched,
		bus:      bus,
		cfg:      cfg,
		jobID:    string(platform) + ".sweep",
		limiter:  rate.NewLimiter(rate.Limit(cfg.FetchRatePerSec), cfg.FetchRatePerSec),
		locks:    newKeyedMutex(),
		log:      log.With(logx.String("platform", string(platform))),
	}
}

// Running reports whether the handler's loop is armed.
func (h *Handler) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Start arms the loop: one immediate sweep, then one sweep per interval.
// No-op when already running.
func (h *Handler) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		h.log.Debug("start ignored, already running")
		return
	}
	h.running = true
	h.mu.Unlock()

	h.sched.AddEvery(h.jobID, h.cfg.Interval, h.Sweep)
	go h.sched.RunNow(h.jobID)
	h.log.Info("poller started", logx.Duration("interval", h.cfg.Interval))
}

// Stop disarms the loop. An in-flight sweep drains; no new tick is
// scheduled. No-op when idle.
func (h *Handler) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	h.sched.Remove(h.jobID)
	h.log.Info("poller stopped")
}
