package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "duckbot/pkg/logx"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS bindings (
	guild_id   TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS feed (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	raw        BLOB NOT NULL,
	fetched_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS audit (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	at       TEXT NOT NULL,
	guild_id TEXT NOT NULL,
	user_id  TEXT NOT NULL,
	username TEXT,
	action   TEXT NOT NULL,
	target   TEXT,
	ok       INTEGER NOT NULL,
	err      TEXT,
	took_ms  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_guild_at ON audit(guild_id, at);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetBinding(ctx context.Context, guildID string) (string, bool, error) {
	var ch string
	err := s.db.QueryRowContext(ctx,
		`SELECT channel_id FROM bindings WHERE guild_id = ?`, strings.TrimSpace(guildID),
	).Scan(&ch)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if ch == "" {
		return "", false, nil
	}
	return ch, true, nil
}

func (s *sqliteStore) SetBinding(ctx context.Context, guildID, channelID string) error {
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return errors.New("guild id required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bindings(guild_id, channel_id, updated_at) VALUES(?,?,?)
		 ON CONFLICT(guild_id) DO UPDATE SET channel_id=excluded.channel_id, updated_at=excluded.updated_at`,
		guildID, strings.TrimSpace(channelID), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) DeleteBinding(ctx context.Context, guildID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bindings WHERE guild_id = ?`, strings.TrimSpace(guildID))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqliteStore) Bindings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id, channel_id FROM bindings WHERE channel_id <> ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var g, ch string
		if err := rows.Scan(&g, &ch); err != nil {
			return nil, err
		}
		out[g] = ch
	}
	return out, rows.Err()
}

func (s *sqliteStore) SaveFeed(ctx context.Context, raw []byte, fetchedAt time.Time) error {
	if !json.Valid(raw) {
		return errors.New("feed is not valid JSON")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feed(id, raw, fetched_at) VALUES(1,?,?)
		 ON CONFLICT(id) DO UPDATE SET raw=excluded.raw, fetched_at=excluded.fetched_at`,
		raw, fetchedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) LoadFeed(ctx context.Context) ([]byte, time.Time, error) {
	var (
		raw []byte
		at  string
	)
	err := s.db.QueryRowContext(ctx, `SELECT raw, fetched_at FROM feed WHERE id = 1`).Scan(&raw, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("feed fetched_at: %w", err)
	}
	return raw, ts, nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, guild_id, user_id, username, action, target, ok, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.GuildID, e.UserID, nullStr(e.Username),
		e.Action, nullStr(e.Target), e.OK, nullStr(e.Error), e.TookMS,
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
