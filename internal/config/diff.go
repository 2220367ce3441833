package config

import (
	"reflect"
	"strings"

	"streamwatch/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (API keys, client secrets,
// pprof tokens) are never included, only whether they are set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
			logx.String("storage.outcome_retention", newCfg.Storage.OutcomeRetention),
		)
	}

	if !reflect.DeepEqual(oldCfg.YouTube.APIKeys, newCfg.YouTube.APIKeys) ||
		oldCfg.YouTube.Interval != newCfg.YouTube.Interval ||
		oldCfg.YouTube.FeedProbe != newCfg.YouTube.FeedProbe {
		changed = append(changed, "youtube")
		attrs = append(attrs,
			logx.Int("youtube.key_count", len(newCfg.YouTube.APIKeys)),
			logx.String("youtube.interval", newCfg.YouTube.Interval),
			logx.Bool("youtube.feed_probe", newCfg.YouTube.FeedProbe),
		)
	}

	if oldCfg.Twitch != newCfg.Twitch {
		changed = append(changed, "twitch")
		attrs = append(attrs,
			logx.Bool("twitch.credentials_set", strings.TrimSpace(newCfg.Twitch.ClientID) != ""),
			logx.String("twitch.interval", newCfg.Twitch.Interval),
		)
	}

	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.String("notify.username", newCfg.Notify.Username),
			logx.Int("notify.rate_per_sec", newCfg.Notify.RatePerSec),
		)
	}

	if oldCfg.Poller != newCfg.Poller {
		changed = append(changed, "poller")
		attrs = append(attrs,
			logx.Int("poller.workers", newCfg.Poller.Workers),
			logx.Int("poller.fetch_rate_per_sec", newCfg.Poller.FetchRatePerSec),
		)
	}

	if !reflect.DeepEqual(oldCfg.Plans.Tenants, newCfg.Plans.Tenants) ||
		oldCfg.Plans.Default != newCfg.Plans.Default {
		changed = append(changed, "plans")
		attrs = append(attrs,
			logx.Int("plans.tenant_count", len(newCfg.Plans.Tenants)),
			logx.String("plans.default", newCfg.Plans.Default),
		)
	}

	if oldCfg.Pprof != newCfg.Pprof {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
		)
	}

	return changed, attrs
}
