package notifier

import (
	"context"

	logx "duckbot/pkg/logx"
)

type purgeResult struct {
	deleted int
	failed  int
}

// purge deletes up to PurgePages pages of the channel's most recent messages.
// Per-message failures are logged and counted; a listing failure ends the
// purge early. Neither blocks the digest that follows.
func (d *Dispatcher) purge(ctx context.Context, log logx.Logger, cfg Config, channelID string) purgeResult {
	var res purgeResult
	before := ""
	for page := 0; page < cfg.PurgePages; page++ {
		msgs, err := d.dst.RecentMessages(ctx, channelID, cfg.PurgeLimit, before)
		if err != nil {
			log.Warn("list messages failed", logx.Int("page", page), logx.Err(err))
			return res
		}
		for _, m := range msgs {
			if err := d.dst.DeleteMessage(ctx, channelID, m.ID); err != nil {
				res.failed++
				log.Warn("delete message failed", logx.String("message_id", m.ID), logx.Err(err))
				continue
			}
			res.deleted++
		}
		if len(msgs) < cfg.PurgeLimit {
			break
		}
		before = msgs[len(msgs)-1].ID
	}
	if res.deleted > 0 || res.failed > 0 {
		log.Debug("channel purged", logx.Int("deleted", res.deleted), logx.Int("failed", res.failed))
	}
	return res
}
