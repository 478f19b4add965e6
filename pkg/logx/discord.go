package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TextSender delivers plain text to a chat channel.
type TextSender interface {
	SendText(ctx context.Context, channelID, text string) error
}

// discordMaxLen stays under Discord's 2000 character message limit.
const discordMaxLen = 1900

type discordItem struct {
	channelID string
	msg       string
}

// discordSink is a zerolog.LevelWriter forwarding records to a Discord channel.
// Writes never block: records over the rate limit or a full queue are dropped.
type discordSink struct {
	mu        sync.Mutex
	sender    TextSender
	channelID string
	minLevel  zerolog.Level
	limiter   *rate.Limiter

	queue  chan discordItem
	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newDiscordSink(sender TextSender) *discordSink {
	return &discordSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		limiter:  rate.NewLimiter(1, 1),
		queue:    make(chan discordItem, 256),
	}
}

func (d *discordSink) setSender(sender TextSender) {
	d.mu.Lock()
	d.sender = sender
	d.mu.Unlock()
}

func (d *discordSink) apply(cfg DiscordConfig) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	d.mu.Lock()
	d.channelID = strings.TrimSpace(cfg.ChannelID)
	d.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	d.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	d.mu.Unlock()

	if cfg.Enabled {
		d.once.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			d.cancel = cancel
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.worker(ctx)
			}()
		})
	}
}

func (d *discordSink) close() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
		d.wg.Wait()
	}
}

func (d *discordSink) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-d.queue:
			d.mu.Lock()
			sender := d.sender
			d.mu.Unlock()
			if sender == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_ = sender.SendText(sctx, it.channelID, it.msg)
			cancel()
		}
	}
}

func (d *discordSink) Write(p []byte) (int, error) {
	return d.WriteLevel(zerolog.InfoLevel, p)
}

func (d *discordSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	d.mu.Lock()
	channelID := d.channelID
	lim := d.limiter
	minLevel := d.minLevel
	hasSender := d.sender != nil
	d.mu.Unlock()

	if channelID == "" || !hasSender || level < minLevel {
		return len(p), nil
	}
	if !lim.Allow() {
		return len(p), nil
	}
	msg := formatRecord(p)
	if msg == "" {
		return len(p), nil
	}
	select {
	case d.queue <- discordItem{channelID: channelID, msg: msg}:
	default:
	}
	return len(p), nil
}

// formatRecord turns a zerolog JSON line into a short code-block message.
func formatRecord(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), discordMaxLen)
	}
	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("```\n")
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(msg)
	for _, k := range keys {
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(fmt.Sprint(m[k]), 400))
	}
	body := truncate(b.String(), discordMaxLen-4)
	return body + "\n```"
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
