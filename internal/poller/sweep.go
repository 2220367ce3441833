package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"streamwatch/internal/eventbus"
	rtsup "streamwatch/internal/runtime/supervisor"
	"streamwatch/internal/upstream"
	"streamwatch/internal/watch"
	logx "streamwatch/pkg/logx"
)

// Sweep is one full pass over the platform's eligible targets. Targets
// are processed independently: one target's failure never aborts the
// sweep, except credential exhaustion, which abandons the remainder of
// the tick (retried whole at the next tick).
func (h *Handler) Sweep(ctx context.Context) {
	platform := h.source.Platform()

	if !h.source.Configured() {
		// Once per tick, not fatal.
		h.log.Warn("credentials missing, platform checks disabled")
		return
	}

	targets, err := h.store.ListEligibleTargets(ctx, platform)
	if err != nil {
		h.log.Error("list targets failed", logx.Err(err))
		return
	}
	if len(targets) == 0 {
		return
	}

	admitted := h.admit(ctx, targets)
	if len(admitted) == 0 {
		return
	}

	start := time.Now()
	var (
		aborted  atomic.Bool
		notified atomic.Int64
	)

	jobs := make(chan watch.Target)
	sup := rtsup.New(ctx, rtsup.WithLogger(h.log))
	for i := 0; i < h.cfg.Workers; i++ {
		sup.Go0("sweep.worker", func(ctx context.Context) {
			for t := range jobs {
				if ctx.Err() != nil || aborted.Load() {
					continue // drain
				}
				sent, abort := h.processTarget(ctx, t)
				if sent {
					notified.Add(1)
				}
				if abort {
					aborted.Store(true)
				}
			}
		})
	}

	for _, t := range admitted {
		jobs <- t
	}
	close(jobs)
	_ = sup.Wait(context.Background())

	h.log.Info("sweep finished",
		logx.Int("targets", len(admitted)),
		logx.Int64("notified", notified.Load()),
		logx.Bool("aborted", aborted.Load()),
		logx.Duration("dur", time.Since(start)))

	if h.bus != nil {
		h.bus.Publish(eventbus.Event{Type: eventbus.TypeSweepDone, Data: eventbus.SweepStats{
			Platform: string(platform),
			Targets:  len(admitted),
			Notified: int(notified.Load()),
			Took:     time.Since(start),
		}})
	}
}

// admit filters the target list down to tenants whose plan cadence
// admits a check at this tick.
func (h *Handler) admit(ctx context.Context, targets []watch.Target) []watch.Target {
	now := time.Now()
	admittedTenants := map[string]bool{}
	out := targets[:0]
	for _, t := range targets {
		ok, seen := admittedTenants[t.TenantID]
		if !seen {
			var err error
			ok, err = h.gate.ShouldRun(ctx, t.TenantID, now)
			if err != nil {
				h.log.Warn("plan lookup failed, skipping tenant",
					logx.String("tenant", t.TenantID), logx.Err(err))
				ok = false
			}
			admittedTenants[t.TenantID] = ok
		}
		if ok {
			out = append(out, t)
		}
	}
	return out
}

// processTarget runs one target through fetch -> novelty -> dispatch.
// notified reports whether a notification went out; abort is set when
// the sweep must be abandoned (credential exhaustion affects every
// remaining target equally).
func (h *Handler) processTarget(ctx context.Context, t watch.Target) (notified, abort bool) {
	unlock := h.locks.lock(t.ID)
	defer unlock()

	if err := h.limiter.Wait(ctx); err != nil {
		return false, false
	}

	item, err := h.source.FetchLatest(ctx, &t)
	if err != nil {
		if errors.Is(err, upstream.ErrExhausted) {
			h.log.Warn("credentials exhausted, abandoning sweep", logx.Err(err))
			return false, true
		}
		if upstream.IsClient(err) {
			h.log.Warn("client error, target skipped this tick",
				logx.String("target", t.ID), logx.Err(err))
			return false, false
		}
		h.log.Warn("fetch failed, target skipped this tick",
			logx.String("target", t.ID), logx.Err(err))
		return false, false
	}
	if item == nil {
		return false, false
	}

	if !isNovel(&t, item) {
		return false, false
	}

	// The marker advances on novelty regardless of filters or delivery
	// outcome: the item is "seen" from here on.
	if err := h.store.UpdateMarker(ctx, t.ID, item.Marker()); err != nil {
		h.log.Error("marker update failed",
			logx.String("target", t.ID), logx.Err(err))
		return false, false
	}

	if !t.Filters.Allows(item.Type) {
		h.log.Debug("item filtered out",
			logx.String("target", t.ID),
			logx.String("type", string(item.Type)),
			logx.String("content", item.ContentID))
		return false, false
	}

	if err := h.notifier.Notify(ctx, &t, item); err != nil {
		// Already recorded as an error outcome; no retry.
		h.log.Warn("delivery failed",
			logx.String("target", t.ID),
			logx.String("content", item.ContentID),
			logx.Err(err))
		return false, false
	}

	h.log.Info("notification sent",
		logx.String("target", t.ID),
		logx.String("type", string(item.Type)),
		logx.String("content", item.ContentID))
	return true, false
}

// isNovel compares the fetched item's identity against the stored
// marker. Raw equality, not ordering: a marker reset to an older value
// makes the older item novel again, and a repeated stream start
// timestamp is silently skipped.
func isNovel(t *watch.Target, it *watch.Item) bool {
	return it.Marker() != t.LastSeenMarker
}
