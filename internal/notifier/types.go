package notifier

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultPurgeLimit = 100
	DefaultPurgePages = 1
)

var ErrNoBinding = errors.New("notifier: no channel bound")

// Config controls dispatch and delivery.
type Config struct {
	// Concurrency is the number of destinations processed at once.
	Concurrency int
	// PurgeLimit is the page size for fetching recent messages (max 100).
	PurgeLimit int
	// PurgePages bounds how many pages are purged per destination.
	PurgePages int

	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.PurgeLimit <= 0 || c.PurgeLimit > DefaultPurgeLimit {
		c.PurgeLimit = DefaultPurgeLimit
	}
	if c.PurgePages <= 0 {
		c.PurgePages = DefaultPurgePages
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Report summarises one Notify call.
type Report struct {
	Targets      int           `json:"targets"`
	Succeeded    int           `json:"succeeded"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Deleted      int           `json:"deleted"`
	DeleteFailed int           `json:"delete_failed"`
	Sent         int           `json:"sent"`
	Payloads     int           `json:"payloads"`
	Took         time.Duration `json:"took"`
}

// DestinationError is the failure of one guild's delivery.
type DestinationError struct {
	GuildID   string
	ChannelID string
	Stage     string // "resolve" or "send"
	Err       error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("guild %s channel %s: %s: %v", e.GuildID, e.ChannelID, e.Stage, e.Err)
}

func (e *DestinationError) Unwrap() error { return e.Err }
