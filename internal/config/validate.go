package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// DurationOr parses raw, returning def for empty or zero values. Callers are
// expected to have run Validate first.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// LoadLocation resolves a zone name; empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// Disabled reports whether a scheduler spec turns its job off.
func Disabled(spec string) bool {
	switch strings.ToLower(strings.TrimSpace(spec)) {
	case "off", "disabled", "none":
		return true
	}
	return false
}

// Validate checks a parsed config for values the services would reject.
// Every problem is reported, not just the first.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(lvl)); err != nil {
			add(fmt.Errorf("logging.level: unknown level %q", lvl))
		}
	}
	if cfg.Logging.Discord.Enabled && strings.TrimSpace(cfg.Logging.Discord.ChannelID) == "" {
		add(errors.New("logging.discord.channel_id: required when enabled"))
	}
	if cfg.Logging.Discord.RatePerSec < 0 {
		add(errors.New("logging.discord.rate_per_sec: must be >= 0"))
	}

	dur("feed.timeout", cfg.Feed.Timeout)
	if _, err := LoadLocation(cfg.Feed.Timezone); err != nil {
		add(fmt.Errorf("feed.timezone: %w", err))
	}
	if u := strings.TrimSpace(cfg.Feed.URL); u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		add(fmt.Errorf("feed.url: must be http(s), got %q", u))
	}

	if _, err := LoadLocation(cfg.Scheduler.Timezone); err != nil {
		add(fmt.Errorf("scheduler.timezone: %w", err))
	}
	dur("scheduler.job_timeout", cfg.Scheduler.JobTimeout)

	n := cfg.Notifier
	if n.Concurrency < 0 || n.PurgeLimit < 0 || n.PurgePages < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
		add(errors.New("notifier: counts must be >= 0"))
	}
	if n.PurgeLimit > 100 {
		add(errors.New("notifier.purge_limit: at most 100 messages per page"))
	}
	dur("notifier.retry_base", n.RetryBase)
	dur("notifier.retry_max_delay", n.RetryMaxDelay)
	dur("notifier.send_timeout", n.SendTimeout)

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	if m := cfg.Metrics; m.Enabled {
		dur("metrics.read_timeout", m.ReadTimeout)
		dur("metrics.idle_timeout", m.IdleTimeout)
		if addr := strings.TrimSpace(m.Addr); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				add(fmt.Errorf("metrics.addr: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
