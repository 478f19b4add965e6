package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestManager(path string, env map[string]string) *Manager {
	m := NewManager(path)
	m.getenv = func(k string) string { return env[k] }
	return m
}

func TestParseJSONStrict(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.json")
	writeFile(t, p, `{"discord":{"token":"x"},"notifier":{"concurrency":2,"bogus":1}}`)

	_, err := newTestManager(p, nil).Parse()
	if err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, p, `{"discord":{"token":"x"}}{"discord":{}}`)
	if _, err := newTestManager(p, nil).Parse(); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestParseYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, p, `
discord:
  token: abc
feed:
  timezone: Asia/Jakarta
scheduler:
  feed_refresh: "6h"
  notify: "0 */6 * * *"
notifier:
  concurrency: 3
  purge_pages: 2
storage:
  driver: sqlite
  path: ./data/duckbot.db
`)
	cfg, err := newTestManager(p, nil).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discord.Token != "abc" || cfg.Notifier.Concurrency != 3 || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Scheduler.Notify != "0 */6 * * *" {
		t.Fatalf("notify spec: %q", cfg.Scheduler.Notify)
	}
}

func TestEnvTokenFillsEmptyToken(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, p, `{"discord":{"token":""}}`)
	cfg, err := newTestManager(p, map[string]string{EnvToken: " from-env "}).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discord.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Discord.Token)
	}

	writeFile(t, p, `{"discord":{"token":"from-file"}}`)
	cfg, err = newTestManager(p, map[string]string{EnvToken: "from-env"}).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Discord.Token != "from-file" {
		t.Fatalf("file token must win, got %q", cfg.Discord.Token)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(c *Config)
		want string
	}{
		{"ok", func(c *Config) {}, ""},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log channel", func(c *Config) { c.Logging.Discord.Enabled = true }, "logging.discord.channel_id"},
		{"timezone", func(c *Config) { c.Feed.Timezone = "Mars/Olympus" }, "feed.timezone"},
		{"feed url", func(c *Config) { c.Feed.URL = "ftp://x" }, "feed.url"},
		{"duration", func(c *Config) { c.Notifier.RetryBase = "soon" }, "notifier.retry_base"},
		{"negative", func(c *Config) { c.Notifier.Concurrency = -1 }, "notifier"},
		{"purge limit", func(c *Config) { c.Notifier.PurgeLimit = 500 }, "notifier.purge_limit"},
		{"driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"metrics addr", func(c *Config) { c.Metrics = MetricsConfig{Enabled: true, Addr: "9464"} }, "metrics.addr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Config{Discord: DiscordConfig{Token: "t"}}
			tc.mut(c)
			err := Validate(c)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	err := Validate(&Config{Logging: LoggingConfig{Level: "loud"}, Storage: StorageConfig{Driver: "redis"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"logging.level", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, p, `{"discord":{"token":"a"}}`)
	m := newTestManager(p, nil)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	published, err := m.Reload(context.Background())
	if err != nil || published {
		t.Fatalf("unchanged reload: published=%v err=%v", published, err)
	}

	writeFile(t, p, `{"discord":{"token":"a"},"notifier":{"concurrency":4}}`)
	published, err = m.Reload(context.Background())
	if err != nil || !published {
		t.Fatalf("changed reload: published=%v err=%v", published, err)
	}
	got := <-sub
	if got.Notifier.Concurrency != 4 || m.Get().Notifier.Concurrency != 4 {
		t.Fatalf("new config not delivered")
	}

	writeFile(t, p, `{"discord":{"token":"a"},"storage":{"driver":"redis"}}`)
	if _, err := m.Reload(context.Background()); err == nil {
		t.Fatalf("invalid config must be rejected")
	}
	if m.Get().Storage.Driver != "" {
		t.Fatalf("rejected config was committed")
	}
}

func TestValidatorHookRejects(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, p, `{"discord":{"token":"a"}}`)
	m := newTestManager(p, nil)
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return os.ErrInvalid })
	if _, err := m.Load(); err == nil {
		t.Fatalf("validator error ignored")
	}
}

func TestWatchPicksUpEdits(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, p, `{"discord":{"token":"a"}}`)
	m := newTestManager(p, nil)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register before editing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, p, `{"discord":{"token":"a"},"feed":{"timezone":"UTC"}}`)

	select {
	case cfg := <-sub:
		if cfg.Feed.Timezone != "UTC" {
			t.Fatalf("unexpected config: %+v", cfg.Feed)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no config published after edit")
	}
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	a := &Config{Discord: DiscordConfig{Token: "secret-1"}}
	b := &Config{Discord: DiscordConfig{Token: "secret-2"}, Notifier: NotifierConfig{Concurrency: 2}}
	changed, attrs := SummarizeChange(a, b)
	if strings.Join(changed, ",") != "discord,notifier" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}
	if got := RestartOnly(changed); len(got) != 1 || got[0] != "discord" {
		t.Fatalf("restart only = %v", got)
	}
}

func TestDurationOr(t *testing.T) {
	if DurationOr("", time.Minute) != time.Minute {
		t.Fatalf("empty should default")
	}
	if DurationOr("0s", time.Minute) != time.Minute {
		t.Fatalf("zero should default")
	}
	if DurationOr("90s", time.Minute) != 90*time.Second {
		t.Fatalf("parse failed")
	}
}

func TestWatchReturnsSetupErrorForRestart(t *testing.T) {
	p := filepath.Join(t.TempDir(), "missing", "config.json")
	m := newTestManager(p, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := m.Watch(ctx)
	if err == nil {
		t.Fatalf("expected an error for an unwatchable directory")
	}
	if errors.Is(err, ErrWatchBroken) {
		t.Fatalf("setup failure reported as a broken watcher: %v", err)
	}
}

func TestWatchReturnsNilOnCancel(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, p, `{"discord":{"token":"a"}}`)
	m := newTestManager(p, nil)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch = %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Watch did not return after cancel")
	}
}
