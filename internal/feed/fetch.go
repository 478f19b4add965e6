package feed

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"duckbot/internal/events"
)

const (
	DefaultURL       = "https://raw.githubusercontent.com/bigfoott/ScrapedDuck/data/events.json"
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "duckbot/1.0 (+https://github.com/bigfoott/ScrapedDuck)"

	maxBody = 16 << 20
)

// Config controls where and how the feed is fetched.
type Config struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
	// Location interprets feed timestamps that carry no offset. Nil means UTC.
	Location *time.Location
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.URL) == "" {
		c.URL = DefaultURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Fetcher downloads the events document.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

func NewFetcher(cfg Config) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{cfg: cfg, client: newHTTPClient(cfg.Timeout)}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// FetchRaw returns the response body. Any non-2xx status is an error.
func (f *Fetcher) FetchRaw(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("fetch feed: unexpected status %s", resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return b, nil
}

// Fetch downloads and decodes the feed.
func (f *Fetcher) Fetch(ctx context.Context) ([]events.Record, error) {
	b, err := f.FetchRaw(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := events.Decode(b, f.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return recs, nil
}

func (f *Fetcher) Location() *time.Location { return f.cfg.Location }
