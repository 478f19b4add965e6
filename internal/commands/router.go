package commands

import (
	"context"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"duckbot/internal/transport"
	logx "duckbot/pkg/logx"
)

const defaultDenied = "You do not have permission to use this command."

// Command is a slash command route.
type Command struct {
	Spec    transport.CommandSpec
	Timeout time.Duration // optional per-command override
	// Denied is the ephemeral reply for members without Administrator.
	Denied string
	Handle HandlerFunc
}

// ComponentRoute handles button presses whose custom ID starts with Prefix.
type ComponentRoute struct {
	Prefix  string
	Timeout time.Duration
	Handle  HandlerFunc
}

// Request is one routed update.
type Request struct {
	Update  transport.Update
	In      *transport.Interaction // nil for guild_removed
	Command string
	ReqID   string
	Log     logx.Logger
	Adapter transport.Adapter
}

// Router dispatches transport updates to handlers on a bounded worker pool.
type Router struct {
	log     logx.Logger
	adapter transport.Adapter
	timeout time.Duration

	mu           sync.RWMutex
	commands     map[string]Command
	components   []ComponentRoute
	guildRemoved HandlerFunc
}

func NewRouter(log logx.Logger, adapter transport.Adapter, defaultTimeout time.Duration) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 2 * time.Minute
	}
	return &Router{log: log, adapter: adapter, timeout: defaultTimeout, commands: map[string]Command{}}
}

// SetRegistry replaces the routing tables.
func (r *Router) SetRegistry(cmds []Command, comps []ComponentRoute, guildRemoved HandlerFunc) {
	m := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		name := strings.TrimSpace(c.Spec.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		m[name] = c
	}
	cs := make([]ComponentRoute, 0, len(comps))
	for _, c := range comps {
		if c.Prefix != "" && c.Handle != nil {
			cs = append(cs, c)
		}
	}
	r.mu.Lock()
	r.commands = m
	r.components = cs
	r.guildRemoved = guildRemoved
	r.mu.Unlock()
}

// Specs returns the registered command specs sorted by name.
func (r *Router) Specs() []transport.CommandSpec {
	r.mu.RLock()
	out := make([]transport.CommandSpec, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c.Spec)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := max(runtime.NumCPU(), 2)
	jobs := make(chan transport.Update, 64)
	r.log.Info("command dispatcher started", logx.Int("workers", workers))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for up := range jobs {
				r.Route(ctx, up)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case jobs <- up:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Route handles one update synchronously.
func (r *Router) Route(ctx context.Context, up transport.Update) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in router", logx.Any("panic", p))
		}
	}()
	switch up.Kind {
	case transport.UpdateCommand:
		r.routeCommand(ctx, up)
	case transport.UpdateComponent:
		r.routeComponent(ctx, up)
	case transport.UpdateGuildRemoved:
		r.mu.RLock()
		h := r.guildRemoved
		r.mu.RUnlock()
		if h == nil {
			return
		}
		req := r.newRequest(up, "guild_removed")
		req.Log = req.Log.With(logx.String("guild", up.GuildID))
		_ = r.run(ctx, req, h, r.timeout)
	}
}

func (r *Router) routeCommand(ctx context.Context, up transport.Update) {
	in := up.Interaction
	if in == nil {
		return
	}
	r.mu.RLock()
	cmd, ok := r.commands[in.Name]
	r.mu.RUnlock()
	if !ok {
		r.log.Warn("unknown command", logx.String("cmd", in.Name))
		_ = r.adapter.Respond(ctx, in, transport.Reply{Content: "Unknown command.", Ephemeral: true})
		return
	}

	req := r.newRequest(up, in.Name)
	if cmd.Spec.AdminOnly && !in.IsAdmin {
		denied := cmd.Denied
		if denied == "" {
			denied = defaultDenied
		}
		req.Log.Info("permission denied")
		if err := r.adapter.Respond(ctx, in, transport.Reply{Content: denied, Ephemeral: true}); err != nil {
			req.Log.Warn("deny reply failed", logx.Err(err))
		}
		return
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	_ = r.run(ctx, req, cmd.Handle, timeout)
}

func (r *Router) routeComponent(ctx context.Context, up transport.Update) {
	in := up.Interaction
	if in == nil {
		return
	}
	r.mu.RLock()
	var route *ComponentRoute
	for i := range r.components {
		if strings.HasPrefix(in.Name, r.components[i].Prefix) {
			c := r.components[i]
			route = &c
			break
		}
	}
	r.mu.RUnlock()
	if route == nil {
		r.log.Debug("unrouted component", logx.String("custom_id", in.Name))
		return
	}
	timeout := route.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	_ = r.run(ctx, r.newRequest(up, route.Prefix), route.Handle, timeout)
}

func (r *Router) newRequest(up transport.Update, command string) *Request {
	rid := uuid.NewString()
	fields := []logx.Field{logx.String("rid", rid), logx.String("cmd", command)}
	if in := up.Interaction; in != nil {
		fields = append(fields, logx.String("guild", in.GuildID), logx.String("user", in.UserID))
	}
	return &Request{
		Update:  up,
		In:      up.Interaction,
		Command: command,
		ReqID:   rid,
		Log:     r.log.With(fields...),
		Adapter: r.adapter,
	}
}

func (r *Router) run(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration) error {
	return Chain(h, MWPanicRecover(), MWRequestLog(), MWTimeout(timeout))(ctx, req)
}
