package config

import (
	"sort"
	"strings"

	logx "duckbot/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// returns safe log fields describing the new values. Secrets are never
// included; only whether they are set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	if oldCfg.Discord != newCfg.Discord {
		changed = append(changed, "discord")
		attrs = append(attrs,
			logx.Bool("discord.token_set", set(newCfg.Discord.Token)),
			logx.Bool("discord.token_changed", oldCfg.Discord.Token != newCfg.Discord.Token),
			logx.String("discord.guild_id", newCfg.Discord.GuildID),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.discord", newCfg.Logging.Discord.Enabled),
		)
	}
	if oldCfg.Feed != newCfg.Feed {
		changed = append(changed, "feed")
		attrs = append(attrs, logx.String("feed.url", newCfg.Feed.URL), logx.String("feed.timezone", newCfg.Feed.Timezone))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.feed_refresh", newCfg.Scheduler.FeedRefresh),
			logx.String("scheduler.notify", newCfg.Scheduler.Notify),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}
	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Int("notifier.concurrency", newCfg.Notifier.Concurrency),
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
			logx.Int("notifier.purge_pages", newCfg.Notifier.PurgePages),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver), logx.Bool("storage.path_set", set(newCfg.Storage.Path)))
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
			logx.Bool("metrics.token_set", set(newCfg.Metrics.Token)),
		)
	}
	sort.Strings(changed)
	return changed, attrs
}

// RestartOnly reports sections whose changes only take effect after a restart.
func RestartOnly(changed []string) []string {
	var out []string
	for _, s := range changed {
		if s == "discord" || s == "storage" {
			out = append(out, s)
		}
	}
	return out
}
