package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckbot/internal/eventbus"
	"duckbot/internal/storage"
	logx "duckbot/pkg/logx"
)

const sampleFeed = `[
  {"eventID":"cd","name":"Community Day","eventType":"community-day","heading":"Community Day",
   "link":"https://leekduck.com/events/cd/","image":"cd.jpg",
   "start":"2026-10-20T14:00:00.000","end":"2026-10-20T17:00:00.000",
   "extraData":{"communityday":{"spawns":[{"name":"Pikachu","image":"p.png"}],"bonuses":[{"text":"3x Stardust","image":"s.png"}],"shinies":[]}}}
]`

func newServer(t *testing.T, status *atomic.Int32, ua *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		code := int(status.Load())
		if code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		_, _ = w.Write([]byte(sampleFeed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "state")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFetcherSendsUserAgentAndDecodes(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	var ua atomic.Value
	srv := newServer(t, &status, &ua)

	f := NewFetcher(Config{URL: srv.URL, UserAgent: "test-agent"})
	recs, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "test-agent", ua.Load())
	assert.Equal(t, time.Date(2026, 10, 20, 14, 0, 0, 0, time.UTC), recs[0].Start)
	require.NotNil(t, recs[0].CommunityDay())
}

func TestFetcherRejectsNon2xx(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadGateway)
	var ua atomic.Value
	srv := newServer(t, &status, &ua)

	_, err := NewFetcher(Config{URL: srv.URL}).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestRefreshKeepsSnapshotOnFailure(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	var ua atomic.Value
	srv := newServer(t, &status, &ua)

	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	s := NewStore(logx.Nop(), NewFetcher(Config{URL: srv.URL}), openStore(t), bus)
	require.NoError(t, s.Refresh(context.Background()))
	require.Equal(t, 1, s.Len())
	assert.Equal(t, eventbus.FeedRefreshed, (<-ch).Type)

	status.Store(http.StatusInternalServerError)
	require.Error(t, s.Refresh(context.Background()))
	assert.Equal(t, 1, s.Len(), "previous snapshot must survive a failed refresh")
	assert.Equal(t, eventbus.FeedFailed, (<-ch).Type)
}

func TestSnapshotIsCopyOnRead(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	var ua atomic.Value
	srv := newServer(t, &status, &ua)

	s := NewStore(logx.Nop(), NewFetcher(Config{URL: srv.URL}), nil, nil)
	require.NoError(t, s.Refresh(context.Background()))

	a := s.Snapshot()
	a[0].Name = "mutated"
	assert.Equal(t, "Community Day", s.Snapshot()[0].Name)
}

func TestLoadRestoresPersistedFeed(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	var ua atomic.Value
	srv := newServer(t, &status, &ua)
	st := openStore(t)

	first := NewStore(logx.Nop(), NewFetcher(Config{URL: srv.URL}), st, nil)
	require.NoError(t, first.Refresh(context.Background()))

	second := NewStore(logx.Nop(), NewFetcher(Config{URL: srv.URL}), st, nil)
	require.NoError(t, second.Load(context.Background()))
	assert.Equal(t, 1, second.Len())
	assert.False(t, second.FetchedAt().IsZero())
}

func TestLoadWithoutPersistedFeed(t *testing.T) {
	s := NewStore(logx.Nop(), nil, openStore(t), nil)
	require.NoError(t, s.Load(context.Background()))
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Snapshot())
}
