package app

import (
	"context"
	"fmt"

	"duckbot/internal/config"
	"duckbot/internal/eventbus"
	"duckbot/internal/feed"
	"duckbot/internal/render"
	"duckbot/internal/storage"
	logx "duckbot/pkg/logx"
)

// base is the part of the wiring shared by the bot and the one-shot commands.
type base struct {
	cfgm  *config.Manager
	cfg   *config.Config
	logs  *logx.Service
	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store
	feed  *feed.Store
}

func openBase(cfgPath string) (*base, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// The Discord log sink gets its sender once an adapter exists.
	logs, root := logx.New(mapLogConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	sc := mapStorageConfig(cfg)
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	bus := eventbus.New()
	fs := feed.NewStore(root.With(logx.String("comp", "feed")), feed.NewFetcher(mapFeedConfig(cfg)), store, bus)

	return &base{cfgm: cfgm, cfg: cfg, logs: logs, log: log, bus: bus, store: store, feed: fs}, nil
}

func (b *base) renderer() *render.Renderer {
	return render.New(b.log.With(logx.String("comp", "render")), feedLocation(b.cfg))
}

// ensureFeed restores the persisted snapshot and refreshes when none exists.
func (b *base) ensureFeed(ctx context.Context) error {
	if err := b.feed.Load(ctx); err != nil {
		b.log.Warn("restore feed failed", logx.Err(err))
	}
	if b.feed.FetchedAt().IsZero() {
		return b.feed.Refresh(ctx)
	}
	return nil
}

func (b *base) close() {
	if err := b.store.Close(); err != nil {
		b.log.Warn("close storage failed", logx.Err(err))
	}
	_ = b.logs.Close()
}
