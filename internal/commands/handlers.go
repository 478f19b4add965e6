package commands

import (
	"context"
	"errors"
	"strings"
	"time"

	"duckbot/internal/confirm"
	"duckbot/internal/eventbus"
	"duckbot/internal/events"
	"duckbot/internal/notifier"
	"duckbot/internal/storage"
	"duckbot/internal/transport"
	logx "duckbot/pkg/logx"
)

const (
	CmdSetupChannel = "setupchannel"
	CmdForceEvent   = "forceevent"

	channelUpdatedColor = 0x2ecc71
)

// Dispatcher runs a notification cycle.
type Dispatcher interface {
	Notify(ctx context.Context, records []events.Record, guildID string) (notifier.Report, error)
}

// Snapshotter provides the current events.
type Snapshotter interface {
	Snapshot() []events.Record
}

type Deps struct {
	Store      storage.Store
	Dispatcher Dispatcher
	Feed       Snapshotter
	Confirm    *confirm.Registry
	Bus        eventbus.Bus
	ConfirmTTL time.Duration
	// DispatchTimeout bounds /forceevent; 0 means 5 minutes.
	DispatchTimeout time.Duration
}

// Handlers implements the bot's administrative surfaces.
type Handlers struct {
	d Deps
}

func NewHandlers(d Deps) *Handlers {
	if d.Confirm == nil {
		d.Confirm = confirm.NewRegistry()
	}
	if d.ConfirmTTL <= 0 {
		d.ConfirmTTL = confirm.DefaultTTL
	}
	if d.DispatchTimeout <= 0 {
		d.DispatchTimeout = 5 * time.Minute
	}
	return &Handlers{d: d}
}

// Register installs every route on r.
func (h *Handlers) Register(r *Router) {
	r.SetRegistry(h.Commands(), h.Components(), h.GuildRemoved)
}

func (h *Handlers) Commands() []Command {
	return []Command{
		{
			Spec: transport.CommandSpec{
				Name:        CmdSetupChannel,
				Description: "Set up a channel for event notifications.",
				AdminOnly:   true,
				Options: []transport.OptionSpec{{
					Name:        "channel",
					Description: "The channel to set up for event notifications.",
					Kind:        transport.OptionChannel,
					Required:    true,
				}},
			},
			Timeout: 15 * time.Second,
			Denied:  "You don't have permission to use this command.",
			Handle:  h.SetupChannel,
		},
		{
			Spec: transport.CommandSpec{
				Name:        CmdForceEvent,
				Description: "Manually triggers event notifications",
				AdminOnly:   true,
			},
			Timeout: h.d.DispatchTimeout,
			Handle:  h.ForceEvent,
		},
	}
}

func (h *Handlers) Components() []ComponentRoute {
	return []ComponentRoute{{Prefix: confirm.CustomID(""), Timeout: 10 * time.Second, Handle: h.ConfirmButton}}
}

func channelUpdatedEmbed(channelID string) transport.Embed {
	return transport.Embed{
		Title:       "Channel Updated",
		Color:       channelUpdatedColor,
		Description: "✅ Event notifications will now be sent in <#" + channelID + ">.",
		Footer:      "You can change this anytime using /setupchannel.",
	}
}

// SetupChannel binds the invoking guild to the chosen channel. The binding is
// durable before the reply is sent.
func (h *Handlers) SetupChannel(ctx context.Context, req *Request) error {
	in := req.In
	start := time.Now()
	channelID := strings.TrimSpace(in.Options["channel"])
	if channelID == "" {
		return req.Adapter.Respond(ctx, in, transport.Reply{Content: "Please choose a channel.", Ephemeral: true})
	}
	if in.GuildID == "" {
		return req.Adapter.Respond(ctx, in, transport.Reply{Content: "This command can only be used in a server.", Ephemeral: true})
	}

	if ch, err := req.Adapter.ResolveChannel(ctx, channelID); err == nil && ch.GuildID != "" && ch.GuildID != in.GuildID {
		return req.Adapter.Respond(ctx, in, transport.Reply{Content: "That channel is not in this server.", Ephemeral: true})
	}

	if err := h.d.Store.SetBinding(ctx, in.GuildID, channelID); err != nil {
		h.audit(ctx, req, CmdSetupChannel, channelID, start, err)
		_ = req.Adapter.Respond(ctx, in, transport.Reply{Content: "Failed to save the channel. Please try again.", Ephemeral: true})
		return err
	}
	h.audit(ctx, req, CmdSetupChannel, channelID, start, nil)
	h.publish(eventbus.BindingSet, map[string]string{"guild": in.GuildID, "channel": channelID})
	req.Log.Info("channel bound", logx.String("channel", channelID))

	embed := channelUpdatedEmbed(channelID)
	log := req.Log
	adapter := req.Adapter
	tok := h.d.Confirm.Open(in.UserID, h.d.ConfirmTTL, func(st confirm.State) {
		ectx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := adapter.EditResponse(ectx, in, transport.Reply{
			Embeds:  []transport.Embed{embed},
			Buttons: []transport.Button{{CustomID: confirm.CustomID("done"), Label: "Acknowledged", Style: transport.ButtonSecondary, Disabled: true}},
		})
		if err != nil {
			log.Debug("disable confirm button failed", logx.String("state", st.String()), logx.Err(err))
		}
	})

	return req.Adapter.Respond(ctx, in, transport.Reply{
		Embeds:    []transport.Embed{embed},
		Buttons:   []transport.Button{{CustomID: confirm.CustomID(tok), Label: "Confirm", Style: transport.ButtonPrimary}},
		Ephemeral: true,
	})
}

// ConfirmButton acknowledges a setup prompt. Presses on unknown, expired or
// foreign prompts are ignored.
func (h *Handlers) ConfirmButton(ctx context.Context, req *Request) error {
	tok, ok := confirm.ParseCustomID(req.In.Name)
	if !ok {
		req.Log.Debug("confirm rejected")
		return nil
	}
	disable, ok := h.d.Confirm.ConfirmDeferred(tok, req.In.UserID)
	if !ok {
		req.Log.Debug("confirm rejected")
		return nil
	}
	// Discord wants the press answered within 3s; the button edit can wait.
	err := req.Adapter.Respond(ctx, req.In, transport.Reply{Content: "Thank you! The channel setup is confirmed.", Ephemeral: true})
	disable()
	return err
}

// ForceEvent runs a dispatch for the invoking guild.
func (h *Handlers) ForceEvent(ctx context.Context, req *Request) error {
	in := req.In
	start := time.Now()
	if err := req.Adapter.Respond(ctx, in, transport.Reply{Content: "Event notifications are being triggered. Please wait...", Ephemeral: true}); err != nil {
		return err
	}

	var records []events.Record
	if h.d.Feed != nil {
		records = h.d.Feed.Snapshot()
	}
	rep, err := h.d.Dispatcher.Notify(ctx, records, in.GuildID)
	h.audit(ctx, req, CmdForceEvent, in.GuildID, start, err)

	// A dispatch that ran into the handler deadline still owes the user a reply.
	fctx, cancel := detached(ctx)
	defer cancel()
	if err != nil {
		req.Log.Error("forced dispatch failed", logx.Err(err))
		if ferr := req.Adapter.FollowUp(fctx, in, transport.Reply{Content: "There was an error triggering the event notifications.", Ephemeral: true}); ferr != nil {
			req.Log.Warn("failure follow-up not sent", logx.Err(ferr))
		}
		return err
	}
	req.Log.Info("forced dispatch done", logx.Int("sent", rep.Sent), logx.Int("skipped", rep.Skipped))
	return req.Adapter.FollowUp(fctx, in, transport.Reply{Content: "Event notifications have been successfully triggered.", Ephemeral: true})
}

// detached keeps ctx values but not its deadline or cancellation.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

// GuildRemoved drops the binding of a guild the bot left.
func (h *Handlers) GuildRemoved(ctx context.Context, req *Request) error {
	guildID := req.Update.GuildID
	if guildID == "" {
		return errors.New("guild id missing")
	}
	removed, err := h.d.Store.DeleteBinding(ctx, guildID)
	if err != nil {
		return err
	}
	if !removed {
		req.Log.Debug("left guild without binding", logx.String("name", req.Update.GuildName))
		return nil
	}
	h.publish(eventbus.BindingRemoved, guildID)
	req.Log.Info("binding removed after leaving guild", logx.String("name", req.Update.GuildName))
	return nil
}

func (h *Handlers) audit(ctx context.Context, req *Request, action, target string, start time.Time, opErr error) {
	if h.d.Store == nil || req.In == nil {
		return
	}
	e := storage.AuditEntry{
		At:       start,
		GuildID:  req.In.GuildID,
		UserID:   req.In.UserID,
		Username: req.In.Username,
		Action:   action,
		Target:   target,
		OK:       opErr == nil,
		TookMS:   time.Since(start).Milliseconds(),
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	// The request context may already be spent after a long dispatch.
	actx, cancel := detached(ctx)
	defer cancel()
	if err := h.d.Store.AppendAudit(actx, e); err != nil {
		req.Log.Warn("audit append failed", logx.Err(err))
	}
}

func (h *Handlers) publish(typ string, data any) {
	if h.d.Bus != nil {
		h.d.Bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
