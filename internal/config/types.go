package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	YouTube YouTubeConfig `json:"youtube"`
	Twitch  TwitchConfig  `json:"twitch"`
	Notify  NotifyConfig  `json:"notify"`
	Poller  PollerConfig  `json:"poller,omitempty"`
	Plans   PlansConfig   `json:"plans,omitempty"`
	Pprof   PprofConfig   `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects and tunes the persistence driver.
//
// Driver is "sqlite" (default), "postgres" or "memory". Path is the sqlite
// database file; DSN is the postgres connection string.
type StorageConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
	DSN    string `json:"dsn,omitempty"`

	// BusyTimeout is a Go duration string (sqlite only, e.g. "5s").
	BusyTimeout string `json:"busy_timeout,omitempty"`

	// OutcomeRetention bounds the delivery outcome log (e.g. "720h").
	// "0s" or omitted keeps outcomes forever.
	OutcomeRetention string `json:"outcome_retention,omitempty"`
}

type YouTubeConfig struct {
	APIKeys []string `json:"api_keys,omitempty"`
	// Interval between sweeps, a Go duration string. Default "5m".
	Interval string `json:"interval,omitempty"`
	// FeedProbe checks the public Atom feed before spending API quota.
	FeedProbe bool `json:"feed_probe,omitempty"`
}

type TwitchConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"` // never log
	// Interval between sweeps, a Go duration string. Default "3m".
	Interval string `json:"interval,omitempty"`
}

type NotifyConfig struct {
	Username   string `json:"username,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// Timeout is the per-delivery HTTP timeout, a Go duration string.
	Timeout string `json:"timeout,omitempty"`
}

type PollerConfig struct {
	Workers         int `json:"workers,omitempty"`
	FetchRatePerSec int `json:"fetch_rate_per_sec,omitempty"`
}

// PlansConfig maps tenant ids to plan tier names ("free", "standard",
// "premium"). Unlisted tenants get Default, or the free tier when
// Default is empty.
type PlansConfig struct {
	Tenants map[string]string `json:"tenants,omitempty"`
	Default string            `json:"default,omitempty"`
}

// PprofConfig controls the optional debug HTTP listener.
//
// Security:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// Validate checks cross-field constraints that a strict decode cannot.
// Duration strings are parsed here so a reload with a bad value is
// rejected before it is committed.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "postgres", "pgx", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.outcome_retention", c.Storage.OutcomeRetention); err != nil {
		return err
	}
	if _, err := ParseDurationField("youtube.interval", c.YouTube.Interval); err != nil {
		return err
	}
	if _, err := ParseDurationField("twitch.interval", c.Twitch.Interval); err != nil {
		return err
	}
	if _, err := ParseDurationField("notify.timeout", c.Notify.Timeout); err != nil {
		return err
	}
	if c.Notify.RatePerSec < 0 {
		return fmt.Errorf("notify.rate_per_sec: must be >= 0")
	}
	if c.Poller.Workers < 0 {
		return fmt.Errorf("poller.workers: must be >= 0")
	}
	if c.Poller.FetchRatePerSec < 0 {
		return fmt.Errorf("poller.fetch_rate_per_sec: must be >= 0")
	}
	if (c.Twitch.ClientID != "") != (c.Twitch.ClientSecret != "") {
		return fmt.Errorf("twitch: client_id and client_secret must be set together")
	}
	return nil
}

// YouTubeInterval returns the parsed sweep interval, or def when unset.
func (c *Config) YouTubeInterval(def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("youtube.interval", c.YouTube.Interval, def)
	if err != nil {
		return def
	}
	return d
}

// TwitchInterval returns the parsed sweep interval, or def when unset.
func (c *Config) TwitchInterval(def time.Duration) time.Duration {
	d, err := ParseDurationOrDefault("twitch.interval", c.Twitch.Interval, def)
	if err != nil {
		return def
	}
	return d
}
