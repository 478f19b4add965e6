package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"duckbot/internal/eventbus"
	"duckbot/internal/events"
	"duckbot/internal/metrics"
	"duckbot/internal/storage"
	logx "duckbot/pkg/logx"
)

type snapshot struct {
	records   []events.Record
	fetchedAt time.Time
}

// Store holds the current event snapshot.
//
// Readers never block a refresh: the snapshot is swapped atomically and a
// slice once published is never written again.
type Store struct {
	log   logx.Logger
	store storage.Store
	bus   eventbus.Bus

	mu      sync.Mutex // serializes Refresh/Load and guards fetcher
	fetcher *Fetcher

	snap atomic.Pointer[snapshot]
}

func NewStore(log logx.Logger, fetcher *Fetcher, st storage.Store, bus eventbus.Bus) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	if fetcher == nil {
		fetcher = NewFetcher(Config{})
	}
	s := &Store{log: log, store: st, bus: bus, fetcher: fetcher}
	s.snap.Store(&snapshot{})
	return s
}

// Apply swaps the fetcher configuration. It takes effect on the next refresh.
func (s *Store) Apply(cfg Config) {
	s.mu.Lock()
	s.fetcher = NewFetcher(cfg)
	s.mu.Unlock()
}

// Snapshot returns a copy of the current records.
func (s *Store) Snapshot() []events.Record {
	return slices.Clone(s.snap.Load().records)
}

// FetchedAt is the time of the snapshot's fetch, zero before the first one.
func (s *Store) FetchedAt() time.Time { return s.snap.Load().fetchedAt }

func (s *Store) Len() int { return len(s.snap.Load().records) }

// Refresh fetches the feed and replaces the snapshot. On failure the previous
// snapshot stays in place.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	raw, err := s.fetcher.FetchRaw(ctx)
	var recs []events.Record
	if err == nil {
		recs, err = events.Decode(raw, s.fetcher.Location())
		if err != nil {
			err = fmt.Errorf("decode feed: %w", err)
		}
	}
	if err != nil {
		metrics.ObserveFeedFetch(false, 0)
		s.log.Error("feed refresh failed", logx.Err(err), logx.Int("kept", s.Len()))
		s.publish(eventbus.FeedFailed, err.Error())
		return err
	}

	now := time.Now()
	if s.store != nil {
		if perr := s.store.SaveFeed(ctx, raw, now); perr != nil {
			// The fresh snapshot is still served; only the restart cache is stale.
			s.log.Warn("persist feed failed", logx.Err(perr))
		}
	}
	s.snap.Store(&snapshot{records: recs, fetchedAt: now})
	metrics.ObserveFeedFetch(true, len(recs))
	s.log.Info("feed refreshed", logx.Int("events", len(recs)), logx.Duration("took", time.Since(start)))
	s.publish(eventbus.FeedRefreshed, len(recs))
	return nil
}

// Load restores the last persisted snapshot. A missing snapshot is not an error.
func (s *Store) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, at, err := s.store.LoadFeed(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("no persisted feed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load feed: %w", err)
	}
	recs, err := events.Decode(raw, s.fetcher.Location())
	if err != nil {
		return fmt.Errorf("decode persisted feed: %w", err)
	}
	s.snap.Store(&snapshot{records: recs, fetchedAt: at})
	metrics.SetFeedEvents(len(recs))
	s.log.Info("feed restored", logx.Int("events", len(recs)), logx.Time("fetched_at", at))
	return nil
}

func (s *Store) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
