package config

// EnvToken supplies discord.token when the file leaves it empty.
const EnvToken = "DUCKBOT_DISCORD_TOKEN"

type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Logging   LoggingConfig   `json:"logging"`
	Feed      FeedConfig      `json:"feed"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Storage   StorageConfig   `json:"storage"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
}

type DiscordConfig struct {
	Token string `json:"token"`
	// GuildID scopes slash command registration to one guild (handy in development).
	GuildID string `json:"guild_id,omitempty"`
	Status  string `json:"status,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	ChannelID  string `json:"channel_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// FeedConfig points at the upstream events feed.
//
// Timezone is the zone used for timestamps without an offset; default UTC.
type FeedConfig struct {
	URL       string `json:"url,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
}

// SchedulerConfig holds trigger specs. A spec is a cron expression, "@every 6h",
// a Go duration or HH:MM. "off" disables the job.
type SchedulerConfig struct {
	Timezone    string `json:"timezone,omitempty"`
	FeedRefresh string `json:"feed_refresh,omitempty"` // default "6h"
	Notify      string `json:"notify,omitempty"`       // default "6h"
	JobTimeout  string `json:"job_timeout,omitempty"`  // default "10m"
}

// NotifierConfig tunes the dispatcher. All durations are Go duration strings.
type NotifierConfig struct {
	Concurrency   int    `json:"concurrency,omitempty"`
	PurgeLimit    int    `json:"purge_limit,omitempty"`
	PurgePages    int    `json:"purge_pages,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/duckbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// MetricsConfig controls the /metrics and pprof HTTP server.
//
// Prefer a loopback Addr. A non-loopback Addr needs a token or allow_insecure.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default "127.0.0.1:9464"
	Token         string `json:"token,omitempty"` // bearer token, never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}
