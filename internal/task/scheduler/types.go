package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrUnknown = errors.New("scheduler: unknown schedule")
	ErrRunning = errors.New("scheduler: previous run still in flight")
)

// Config controls the scheduler.
type Config struct {
	// Timezone is an IANA name used for cron expressions. Empty means UTC.
	Timezone string
}

// Job is the unit of scheduled work.
type Job func(ctx context.Context) error

// RunState guards one schedule against overlapping runs.
type RunState struct {
	mu      sync.Mutex
	running bool
	lastRun time.Time
	lastErr error
}

func (s *RunState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *RunState) release(at time.Time, err error) {
	s.mu.Lock()
	s.running = false
	s.lastRun = at
	s.lastErr = err
	s.mu.Unlock()
}

func (s *RunState) view() (running bool, lastRun time.Time, lastErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.lastRun, s.lastErr
}

type scheduleDef struct {
	name    string
	spec    string // normalized cron spec (intervals become "@every")
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	state   *RunState
}

// ScheduleInfo is a diagnostic view of one schedule.
type ScheduleInfo struct {
	Name    string        `json:"name"`
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout"`
	Next    time.Time     `json:"next"`
	LastRun time.Time     `json:"last_run"`
	LastErr string        `json:"last_err,omitempty"`
	Running bool          `json:"running"`
}
