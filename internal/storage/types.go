package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrClosed   = errors.New("storage: closed")
)

// Store is the persistence API used by the bot.
//
// It owns the server -> channel bindings, the last fetched feed document and
// the audit log. Implementations are safe for concurrent use; writers are
// serialized and every write is durable before the call returns.
type Store interface {
	GetBinding(ctx context.Context, guildID string) (channelID string, ok bool, err error)
	SetBinding(ctx context.Context, guildID, channelID string) error
	DeleteBinding(ctx context.Context, guildID string) (removed bool, err error)
	// Bindings returns a copy of every binding with a non-empty channel.
	Bindings(ctx context.Context) (map[string]string, error)

	SaveFeed(ctx context.Context, raw []byte, fetchedAt time.Time) error
	// LoadFeed returns ErrNotFound when no feed has been saved yet.
	LoadFeed(ctx context.Context) (raw []byte, fetchedAt time.Time, err error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file": JSON files next to Path (default)
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records an operator action.
type AuditEntry struct {
	At       time.Time `json:"at"`
	GuildID  string    `json:"guild_id"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Action   string    `json:"action"`
	Target   string    `json:"target,omitempty"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
}
