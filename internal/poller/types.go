package poller

import (
	"context"
	"sync"
	"time"

	"streamwatch/internal/watch"
)

// Source is the platform-specific fetch capability. FetchLatest returns
// nil when the target has nothing to report this tick (empty channel,
// streamer offline, probe short-circuit).
type Source interface {
	Platform() watch.Platform
	Configured() bool
	FetchLatest(ctx context.Context, t *watch.Target) (*watch.Item, error)
}

// Config controls one platform handler.
type Config struct {
	// Interval between sweeps. Defaults: 5m (YouTube), 3m (Twitch).
	Interval time.Duration

	// Workers bounds concurrent per-target pipelines within a sweep.
	Workers int

	// FetchRatePerSec bounds upstream fetches across the sweep's workers.
	FetchRatePerSec int
}

func (c Config) withDefaults(platform watch.Platform) Config {
	if c.Interval <= 0 {
		switch platform {
		case watch.PlatformTwitch:
			c.Interval = 3 * time.Minute
		default:
			c.Interval = 5 * time.Minute
		}
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.FetchRatePerSec <= 0 {
		c.FetchRatePerSec = 5
	}
	return c
}

// keyedMutex serializes pipelines touching the same target's marker.
// Entries are kept for the life of the process; the target set is small
// and bounded by plan limits.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*sync.Mutex{}}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
