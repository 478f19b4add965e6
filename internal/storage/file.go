package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "duckbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.bindings.json (guild -> channel, rewritten on every change)
//   - <prefix>.feed.json     (last fetched feed + fetch time)
//   - <prefix>.audit.jsonl   (append-only JSON Lines)
//
// Rewrites go through a temp file + rename so a crash never leaves a torn file.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	bindingsPath string
	feedPath     string
	auditFile    *os.File

	bindings map[string]string
}

type feedDoc struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Events    json.RawMessage `json:"events"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./data/duckbot"
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		bindingsPath: prefix + ".bindings.json",
		feedPath:     prefix + ".feed.json",
		bindings:     map[string]string{},
	}

	// Load-or-empty. A corrupt file is reported rather than silently replaced.
	if err := readJSON(s.bindingsPath, &s.bindings); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load bindings: %w", err)
	}
	if s.bindings == nil {
		s.bindings = map[string]string{}
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.auditFile = af

	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("bindings", len(s.bindings)))
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}

func (s *fileStore) GetBinding(ctx context.Context, guildID string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.bindings[strings.TrimSpace(guildID)]
	if !ok || ch == "" {
		return "", false, nil
	}
	return ch, true, nil
}

func (s *fileStore) SetBinding(ctx context.Context, guildID, channelID string) error {
	_ = ctx
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return errors.New("guild id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	next := copyMap(s.bindings)
	next[guildID] = strings.TrimSpace(channelID)
	if err := writeJSONAtomic(s.bindingsPath, next); err != nil {
		return err
	}
	s.bindings = next
	return nil
}

func (s *fileStore) DeleteBinding(ctx context.Context, guildID string) (bool, error) {
	_ = ctx
	guildID = strings.TrimSpace(guildID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return false, ErrClosed
	}
	if _, ok := s.bindings[guildID]; !ok {
		return false, nil
	}
	next := copyMap(s.bindings)
	delete(next, guildID)
	if err := writeJSONAtomic(s.bindingsPath, next); err != nil {
		return false, err
	}
	s.bindings = next
	return true, nil
}

func (s *fileStore) Bindings(ctx context.Context) (map[string]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.bindings))
	for g, ch := range s.bindings {
		if ch != "" {
			out[g] = ch
		}
	}
	return out, nil
}

func (s *fileStore) SaveFeed(ctx context.Context, raw []byte, fetchedAt time.Time) error {
	_ = ctx
	if !json.Valid(raw) {
		return errors.New("feed is not valid JSON")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return writeJSONAtomic(s.feedPath, feedDoc{FetchedAt: fetchedAt.UTC(), Events: raw})
}

func (s *fileStore) LoadFeed(ctx context.Context) ([]byte, time.Time, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc feedDoc
	if err := readJSON(s.feedPath, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, err
	}
	return []byte(doc.Events), doc.FetchedAt, nil
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func writeJSONAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
