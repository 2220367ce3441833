package app

import (
	"fmt"
	"strings"

	"streamwatch/internal/config"
	"streamwatch/internal/notify"
	"streamwatch/internal/observability/pprof"
	"streamwatch/internal/poller"
	"streamwatch/internal/store"
	"streamwatch/internal/watch"
)

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	retention, err := config.ParseDurationField("storage.outcome_retention", sc.OutcomeRetention)
	if err != nil {
		return store.Config{}, err
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		if path == "" {
			path = "streamwatch.db"
		}
	case "postgres", "pgx":
		if strings.TrimSpace(sc.DSN) == "" {
			return store.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=%s", driver)
		}
	case "memory":
	default:
		return store.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}

	return store.Config{
		Driver:           driver,
		Path:             path,
		DSN:              strings.TrimSpace(sc.DSN),
		BusyTimeout:      busy,
		OutcomeRetention: retention,
	}, nil
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	timeout, err := config.ParseDurationField("notify.timeout", cfg.Notify.Timeout)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Username:   strings.TrimSpace(cfg.Notify.Username),
		AvatarURL:  strings.TrimSpace(cfg.Notify.AvatarURL),
		RatePerSec: cfg.Notify.RatePerSec,
		Timeout:    timeout,
	}, nil
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled:              cfg.Pprof.Enabled,
		Addr:                 strings.TrimSpace(cfg.Pprof.Addr),
		Token:                cfg.Pprof.Token,
		AllowInsecure:        cfg.Pprof.AllowInsecure,
		MutexProfileFraction: cfg.Pprof.MutexProfileFraction,
		BlockProfileRate:     cfg.Pprof.BlockProfileRate,
	}
}

func mapPollerConfig(cfg *config.Config, platform watch.Platform) poller.Config {
	pc := poller.Config{
		Workers:         cfg.Poller.Workers,
		FetchRatePerSec: cfg.Poller.FetchRatePerSec,
	}
	switch platform {
	case watch.PlatformYouTube:
		pc.Interval = cfg.YouTubeInterval(0)
	case watch.PlatformTwitch:
		pc.Interval = cfg.TwitchInterval(0)
	}
	return pc
}
