package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "duckbot/pkg/logx"
)

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser

	c    *cron.Cron
	ctx  context.Context
	defs map[string]*scheduleDef

	// runs tracks RunNow goroutines so Stop can wait for them.
	runs sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional accepts 5- and 6-field specs.
		parser: specParser,
		defs:   map[string]*scheduleDef{},
	}
}

// Apply updates the configuration; a timezone change restarts triggering.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if s.c == nil || !changed {
		return
	}
	old := s.c
	s.startLocked(s.ctx)
	// Running jobs finish on their own; only triggering moves over.
	old.Stop()
}

// Start begins triggering. Jobs run with a context derived from ctx.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.startLocked(ctx)
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) startLocked(ctx context.Context) {
	s.ctx = ctx
	s.loc = loadLocation(s.cfg.Timezone, s.log)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, d := range s.defs {
		if err := s.registerLocked(d); err != nil {
			s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		}
	}
	s.c.Start()
}

// Stop halts triggering and waits for in-flight runs or ctx expiry.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if c != nil {
			<-c.Stop().Done()
		}
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop timed out with jobs still running")
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// AddSchedule registers (or replaces, by name) a job. schedule accepts cron
// expressions, descriptors such as "@every 6h", Go durations and HH:MM intervals.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	spec, err := cronSpec(schedule)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state := &RunState{}
	if prev, ok := s.defs[name]; ok {
		// Keep the guard so a replaced schedule cannot overlap its old run.
		state = prev.state
		s.unregisterLocked(prev)
	}
	d := &scheduleDef{name: name, spec: spec, timeout: timeout, job: job, state: state}
	s.defs[name] = d
	if s.c == nil {
		return nil
	}
	if err := s.registerLocked(d); err != nil {
		return err
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout), logx.Time("next", s.c.Entry(d.entryID).Next))
	return nil
}

// Remove deletes a schedule. It reports whether the name existed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[name]
	if !ok {
		return false
	}
	s.unregisterLocked(d)
	delete(s.defs, name)
	return true
}

// RunNow triggers a schedule immediately in the background, subject to the
// same run guard. It returns ErrRunning when a run is already in flight.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	d, ok := s.defs[name]
	ctx := s.ctx
	s.mu.Unlock()
	if !ok {
		return ErrUnknown
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !d.state.tryAcquire() {
		return ErrRunning
	}
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.execute(ctx, d)
	}()
	return nil
}

// Schedules lists registered schedules sorted by name.
func (s *Service) Schedules() []ScheduleInfo {
	s.mu.Lock()
	out := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			it.Next = s.c.Entry(d.entryID).Next
		}
		running, last, err := d.state.view()
		it.Running = running
		it.LastRun = last
		if err != nil {
			it.LastErr = err.Error()
		}
		out = append(out, it)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) registerLocked(d *scheduleDef) error {
	ctx := s.ctx
	id, err := s.c.AddFunc(d.spec, func() {
		if !d.state.tryAcquire() {
			s.log.Warn("skip: previous run still in flight", logx.String("name", d.name))
			return
		}
		s.execute(ctx, d)
	})
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) unregisterLocked(d *scheduleDef) {
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	d.entryID = 0
}

// execute runs an acquired job and releases the guard.
func (s *Service) execute(parent context.Context, d *scheduleDef) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("job panicked", logx.String("name", d.name), logx.Any("panic", r))
		}
		d.state.release(start, err)
	}()

	ctx := parent
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, d.timeout)
		defer cancel()
	}
	s.log.Debug("job started", logx.String("name", d.name))
	err = d.job(ctx)
	if err != nil {
		s.log.Error("job failed", logx.String("name", d.name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Info("job done", logx.String("name", d.name), logx.Duration("took", time.Since(start)))
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone, using UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}
