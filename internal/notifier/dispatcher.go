package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"duckbot/internal/eventbus"
	"duckbot/internal/events"
	"duckbot/internal/metrics"
	"duckbot/internal/render"
	"duckbot/internal/transport"
	logx "duckbot/pkg/logx"
)

// Bindings is the read side of the guild -> channel registry.
type Bindings interface {
	GetBinding(ctx context.Context, guildID string) (string, bool, error)
	Bindings(ctx context.Context) (map[string]string, error)
}

// Dispatcher fans the digest out to bound channels.
type Dispatcher struct {
	log      logx.Logger
	dst      transport.Destinations
	bindings Bindings
	sender   *Sender
	bus      eventbus.Bus

	mu       sync.Mutex
	cfg      Config
	now      func() time.Time
	renderer *render.Renderer
}

type target struct {
	guildID   string
	channelID string
}

type destResult struct {
	purge purgeResult
	sent  int
	err   error
}

func New(cfg Config, dst transport.Destinations, bindings Bindings, renderer *render.Renderer, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if renderer == nil {
		renderer = render.New(log, time.UTC)
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		log:      log,
		dst:      dst,
		bindings: bindings,
		renderer: renderer,
		sender:   NewSender(dst, cfg, log),
		bus:      bus,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	d.sender.Apply(cfg)
}

// SetRenderer swaps the renderer used by later Notify calls.
func (d *Dispatcher) SetRenderer(r *render.Renderer) {
	if r == nil {
		return
	}
	d.mu.Lock()
	d.renderer = r
	d.mu.Unlock()
}

// SetClock replaces the time source used for classification.
func (d *Dispatcher) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	d.mu.Lock()
	d.now = now
	d.mu.Unlock()
}

// Notify posts the digest for records to every bound guild, or only to guildID
// when it is non-empty. A guild without a binding is skipped without error.
//
// The returned error joins every failed destination (see DestinationError).
func (d *Dispatcher) Notify(ctx context.Context, records []events.Record, guildID string) (Report, error) {
	d.mu.Lock()
	cfg := d.cfg
	now := d.now()
	renderer := d.renderer
	d.mu.Unlock()

	start := time.Now()
	var rep Report

	targets, skipped, err := d.targets(ctx, guildID)
	rep.Skipped = skipped
	if err != nil {
		return rep, err
	}
	rep.Targets = len(targets) + skipped
	if len(targets) == 0 {
		d.finish(&rep, start)
		return rep, nil
	}

	// One classification and one rendering serve every destination.
	payloads := digest(renderer, events.Classify(records, now))
	rep.Payloads = len(payloads)

	results := make([]destResult, len(targets))
	sem := make(chan struct{}, cfg.Concurrency)
	var wg sync.WaitGroup
	for i, t := range targets {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i].err = &DestinationError{GuildID: t.guildID, ChannelID: t.channelID, Stage: "resolve", Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = d.deliver(ctx, cfg, t, payloads)
		}(i, t)
	}
	wg.Wait()

	var errs []error
	for _, r := range results {
		rep.Deleted += r.purge.deleted
		rep.DeleteFailed += r.purge.failed
		rep.Sent += r.sent
		if r.err != nil {
			rep.Failed++
			errs = append(errs, r.err)
			continue
		}
		rep.Succeeded++
	}
	d.finish(&rep, start)
	return rep, errors.Join(errs...)
}

func (d *Dispatcher) finish(rep *Report, start time.Time) {
	rep.Took = time.Since(start)
	metrics.ObserveDispatch(rep.Took, rep.Succeeded, rep.Skipped, rep.Failed)
	metrics.AddPurged(rep.Deleted, rep.DeleteFailed)
	d.log.Info("dispatch done",
		logx.Int("targets", rep.Targets),
		logx.Int("succeeded", rep.Succeeded),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed),
		logx.Int("deleted", rep.Deleted),
		logx.Int("sent", rep.Sent),
		logx.Duration("took", rep.Took),
	)
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: eventbus.DispatchDone, Data: *rep})
	}
}

func (d *Dispatcher) targets(ctx context.Context, guildID string) ([]target, int, error) {
	if d.bindings == nil {
		return nil, 0, nil
	}
	if guildID != "" {
		ch, err := d.lookup(ctx, guildID)
		if errors.Is(err, ErrNoBinding) {
			d.log.Debug("no channel bound, skipping", logx.String("guild", guildID))
			return nil, 1, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return []target{{guildID: guildID, channelID: ch}}, 0, nil
	}

	all, err := d.bindings.Bindings(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list bindings: %w", err)
	}
	out := make([]target, 0, len(all))
	skipped := 0
	for g, ch := range all {
		if ch == "" {
			skipped++
			continue
		}
		out = append(out, target{guildID: g, channelID: ch})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].guildID < out[j].guildID })
	return out, skipped, nil
}

func (d *Dispatcher) lookup(ctx context.Context, guildID string) (string, error) {
	ch, ok, err := d.bindings.GetBinding(ctx, guildID)
	if err != nil {
		return "", fmt.Errorf("get binding: %w", err)
	}
	if !ok || ch == "" {
		return "", ErrNoBinding
	}
	return ch, nil
}

// digest renders the ordered payload list: for each non-empty bucket a
// header followed by one embed per record.
func digest(r *render.Renderer, c events.Categorized) []transport.Embed {
	out := make([]transport.Embed, 0, c.Len()+6)
	for _, g := range c.Groups() {
		for _, b := range g.Group.Buckets() {
			if len(b.Records) == 0 {
				continue
			}
			out = append(out, render.Header(g.Label, b.Label))
			for _, rec := range b.Records {
				out = append(out, r.Render(rec))
			}
		}
	}
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, cfg Config, t target, payloads []transport.Embed) destResult {
	log := d.log.With(logx.String("guild", t.guildID), logx.String("channel", t.channelID))
	var res destResult

	if _, err := d.dst.ResolveChannel(ctx, t.channelID); err != nil {
		log.Error("resolve channel failed", logx.Err(err))
		res.err = &DestinationError{GuildID: t.guildID, ChannelID: t.channelID, Stage: "resolve", Err: err}
		return res
	}

	res.purge = d.purge(ctx, log, cfg, t.channelID)

	for i, p := range payloads {
		if err := d.sender.Send(ctx, t.channelID, p); err != nil {
			log.Error("send failed, abandoning destination",
				logx.Int("index", i), logx.Int("remaining", len(payloads)-i), logx.String("title", p.Title), logx.Err(err))
			res.err = &DestinationError{GuildID: t.guildID, ChannelID: t.channelID, Stage: "send", Err: err}
			return res
		}
		res.sent++
	}
	return res
}
