package notifier

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"duckbot/internal/metrics"
	"duckbot/internal/transport"
	logx "duckbot/pkg/logx"

	"golang.org/x/time/rate"
)

// Sender posts embeds with rate limiting and retries.
type Sender struct {
	dst transport.Destinations
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func NewSender(dst transport.Destinations, cfg Config, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sender{dst: dst, log: log}
	s.Apply(cfg)
	return s
}

func (s *Sender) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	// Burst equals the per-second rate so short digests are not throttled.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Send delivers one embed, retrying up to RetryMax times when the transport
// marks the failure temporary. Anything else, a timeout included, may already
// have posted the embed and is returned at once. It returns the last error, or
// ctx's error when cancelled while waiting.
func (s *Sender) Send(ctx context.Context, channelID string, e transport.Embed) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := s.dst.SendEmbed(callCtx, channelID, e)
		cancel()
		if err == nil {
			metrics.IncSent(true)
			return nil
		}
		lastErr = err
		s.log.Debug("send failed", logx.String("channel", channelID), logx.Int("attempt", attempt), logx.Int("max", attempts), logx.Err(err))

		if attempt == attempts || ctx.Err() != nil || !transport.IsTemporary(err) {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			metrics.IncSent(false)
			return ctx.Err()
		}
	}
	metrics.IncSent(false)
	return lastErr
}

// retryDelay is the wait after the given attempt: base*2^(attempt-1), capped,
// with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
