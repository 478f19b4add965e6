package app

import (
	"context"
	"fmt"

	"duckbot/internal/notifier"
	"duckbot/internal/transport/discord"
	logx "duckbot/pkg/logx"
)

// Fetch refreshes the persisted feed snapshot once and returns its size.
func Fetch(ctx context.Context, cfgPath string) (int, error) {
	b, err := openBase(cfgPath)
	if err != nil {
		return 0, err
	}
	defer b.close()

	if err := b.feed.Refresh(ctx); err != nil {
		return 0, err
	}
	return b.feed.Len(), nil
}

// NotifyOnce runs a single notification pass without opening the gateway.
// An empty guildID notifies every bound guild.
func NotifyOnce(ctx context.Context, cfgPath, guildID string) (notifier.Report, error) {
	b, err := openBase(cfgPath)
	if err != nil {
		return notifier.Report{}, err
	}
	defer b.close()

	if err := b.ensureFeed(ctx); err != nil {
		return notifier.Report{}, fmt.Errorf("feed: %w", err)
	}
	ad, err := discord.New(mapDiscordConfig(b.cfg), b.log.With(logx.String("comp", "discord")))
	if err != nil {
		return notifier.Report{}, err
	}
	disp := notifier.New(mapNotifierConfig(b.cfg), ad, b.store, b.renderer(), b.log.With(logx.String("comp", "notifier")), b.bus)
	return disp.Notify(ctx, b.feed.Snapshot(), guildID)
}

// ListBindings returns the stored guild to channel bindings.
func ListBindings(ctx context.Context, cfgPath string) (map[string]string, error) {
	b, err := openBase(cfgPath)
	if err != nil {
		return nil, err
	}
	defer b.close()
	return b.store.Bindings(ctx)
}
