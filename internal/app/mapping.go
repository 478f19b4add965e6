package app

import (
	"strings"
	"time"

	"duckbot/internal/config"
	"duckbot/internal/feed"
	"duckbot/internal/notifier"
	"duckbot/internal/observability"
	"duckbot/internal/storage"
	"duckbot/internal/transport/discord"
	logx "duckbot/pkg/logx"
)

const (
	JobFeedRefresh = "feed.refresh"
	JobNotifyAll   = "notify.all"

	defaultJobSpec    = "6h"
	defaultJobTimeout = 10 * time.Minute
)

// The mappers below assume cfg passed config.Validate.

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Discord: logx.DiscordConfig{
			Enabled:    l.Discord.Enabled,
			ChannelID:  l.Discord.ChannelID,
			MinLevel:   l.Discord.MinLevel,
			RatePerSec: l.Discord.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if driver == "sqlite3" {
		driver = "sqlite"
	}
	if driver == "sqlite" && path == "" {
		path = "./data/duckbot.db"
	}
	return storage.Config{
		Driver:      driver,
		Path:        path,
		BusyTimeout: config.DurationOr(sc.BusyTimeout, 0),
	}
}

func feedLocation(cfg *config.Config) *time.Location {
	loc, err := config.LoadLocation(cfg.Feed.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func mapFeedConfig(cfg *config.Config) feed.Config {
	return feed.Config{
		URL:       strings.TrimSpace(cfg.Feed.URL),
		Timeout:   config.DurationOr(cfg.Feed.Timeout, feed.DefaultTimeout),
		UserAgent: strings.TrimSpace(cfg.Feed.UserAgent),
		Location:  feedLocation(cfg),
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	return notifier.Config{
		Concurrency:   n.Concurrency,
		PurgeLimit:    n.PurgeLimit,
		PurgePages:    n.PurgePages,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     config.DurationOr(n.RetryBase, 0),
		RetryMaxDelay: config.DurationOr(n.RetryMaxDelay, 0),
		SendTimeout:   config.DurationOr(n.SendTimeout, 0),
	}
}

func mapDiscordConfig(cfg *config.Config) discord.Config {
	return discord.Config{
		Token:   cfg.Discord.Token,
		GuildID: strings.TrimSpace(cfg.Discord.GuildID),
		Status:  cfg.Discord.Status,
	}
}

func mapObservabilityConfig(cfg *config.Config) observability.Config {
	m := cfg.Metrics
	return observability.Config{
		Enabled:       m.Enabled,
		Addr:          strings.TrimSpace(m.Addr),
		Token:         strings.TrimSpace(m.Token),
		AllowInsecure: m.AllowInsecure,
		Pprof:         m.Pprof,
		ReadTimeout:   config.DurationOr(m.ReadTimeout, 0),
		IdleTimeout:   config.DurationOr(m.IdleTimeout, 2*time.Minute),
	}
}

type jobSpecs struct {
	feedRefresh string
	notify      string
	timeout     time.Duration
}

func mapJobSpecs(cfg *config.Config) jobSpecs {
	or := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return defaultJobSpec
		}
		return strings.TrimSpace(s)
	}
	return jobSpecs{
		feedRefresh: or(cfg.Scheduler.FeedRefresh),
		notify:      or(cfg.Scheduler.Notify),
		timeout:     config.DurationOr(cfg.Scheduler.JobTimeout, defaultJobTimeout),
	}
}
