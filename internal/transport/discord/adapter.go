package discord

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	rtsup "duckbot/internal/runtime/supervisor"
	"duckbot/internal/transport"
	logx "duckbot/pkg/logx"
)

const DefaultStatus = "Tracking Wild Farfetch'd Spawns!"

type Config struct {
	Token string
	// GuildID registers commands in a single guild instead of globally.
	GuildID string
	Status  string
}

// Adapter bridges a discordgo session to transport.Adapter.
type Adapter struct {
	cfg Config
	log logx.Logger
	s   *discordgo.Session

	out     atomic.Value // chan<- transport.Update
	dropped atomic.Uint64

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
	removes []func()

	cmdMu sync.Mutex
	specs []transport.CommandSpec
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Status) == "" {
		cfg.Status = DefaultStatus
	}
	s, err := discordgo.New("Bot " + strings.TrimPrefix(token, "Bot "))
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	s.ShouldReconnectOnError = true

	a := &Adapter{cfg: cfg, log: log, s: s}
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	return a, nil
}

// SetCommands sets the slash commands published on the next ready event.
func (a *Adapter) SetCommands(specs []transport.CommandSpec) {
	a.cmdMu.Lock()
	a.specs = append([]transport.CommandSpec(nil), specs...)
	a.cmdMu.Unlock()
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.out.Store(out)
	a.removes = []func(){
		a.s.AddHandler(a.onReady),
		a.s.AddHandler(a.onInteraction),
		a.s.AddHandler(a.onGuildDelete),
	}
	if err := a.s.Open(); err != nil {
		a.dropHandlers()
		return err
	}
	a.running = true

	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "discord.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	a.sup.Go0("updates.drop_report", func(c context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-t.C:
				a.reportDropped(cap(out))
			}
		}
	})
	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)), logx.Int("chan_cap", capacity))
	}
}

func (a *Adapter) dropHandlers() {
	for _, rm := range a.removes {
		rm()
	}
	a.removes = nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.dropHandlers()

	err := a.s.Close()
	if a.sup != nil {
		_ = a.sup.Stop(ctx)
		a.sup = nil
	}
	a.log.Info("gateway closed")
	return err
}

func (a *Adapter) emit(up transport.Update) {
	out, _ := a.out.Load().(chan<- transport.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.dropped.Add(1)
	}
}

func (a *Adapter) onReady(s *discordgo.Session, r *discordgo.Ready) {
	a.log.Info("logged in", logx.String("user", r.User.Username), logx.Int("guilds", len(r.Guilds)))

	if err := s.UpdateStatusComplex(customStatus(a.cfg.Status)); err != nil {
		a.log.Warn("set status failed", logx.Err(err))
	}

	a.cmdMu.Lock()
	specs := a.specs
	a.cmdMu.Unlock()
	if len(specs) == 0 {
		return
	}
	appID := r.User.ID
	if r.Application != nil && r.Application.ID != "" {
		appID = r.Application.ID
	}
	cmds := make([]*discordgo.ApplicationCommand, 0, len(specs))
	for _, sp := range specs {
		cmds = append(cmds, toCommand(sp))
	}
	if _, err := s.ApplicationCommandBulkOverwrite(appID, a.cfg.GuildID, cmds); err != nil {
		a.log.Error("register commands failed", logx.Err(err))
		return
	}
	a.log.Info("commands registered", logx.Int("count", len(cmds)), logx.String("scope_guild", a.cfg.GuildID))
}

func (a *Adapter) onInteraction(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	up, ok := fromInteraction(ic.Interaction)
	if !ok {
		return
	}
	a.emit(up)
}

func (a *Adapter) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	up, ok := fromGuildDelete(g)
	if !ok {
		return
	}
	a.emit(up)
}

func rawInteraction(in *transport.Interaction) (*discordgo.Interaction, error) {
	if in == nil {
		return nil, errors.New("nil interaction")
	}
	raw, ok := in.Raw.(*discordgo.Interaction)
	if !ok || raw == nil {
		return nil, errors.New("interaction is not a discord interaction")
	}
	return raw, nil
}

func (a *Adapter) Respond(ctx context.Context, in *transport.Interaction, r transport.Reply) error {
	raw, err := rawInteraction(in)
	if err != nil {
		return err
	}
	return a.s.InteractionRespond(raw, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: toResponseData(r),
	}, discordgo.WithContext(ctx))
}

func (a *Adapter) FollowUp(ctx context.Context, in *transport.Interaction, r transport.Reply) error {
	raw, err := rawInteraction(in)
	if err != nil {
		return err
	}
	p := &discordgo.WebhookParams{
		Content:    r.Content,
		Embeds:     toEmbeds(r.Embeds),
		Components: toComponents(r.Buttons),
	}
	if r.Ephemeral {
		p.Flags = discordgo.MessageFlagsEphemeral
	}
	_, err = a.s.FollowupMessageCreate(raw, true, p, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) EditResponse(ctx context.Context, in *transport.Interaction, r transport.Reply) error {
	raw, err := rawInteraction(in)
	if err != nil {
		return err
	}
	embeds := toEmbeds(r.Embeds)
	comps := toComponents(r.Buttons)
	if comps == nil {
		comps = []discordgo.MessageComponent{}
	}
	edit := &discordgo.WebhookEdit{Embeds: &embeds, Components: &comps}
	if r.Content != "" {
		edit.Content = &r.Content
	}
	_, err = a.s.InteractionResponseEdit(raw, edit, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) ResolveChannel(ctx context.Context, channelID string) (transport.Channel, error) {
	ch, err := a.s.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return transport.Channel{}, err
	}
	return transport.Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}, nil
}

func (a *Adapter) RecentMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]transport.Message, error) {
	msgs, err := a.s.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]transport.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, transport.Message{ID: m.ID, ChannelID: m.ChannelID})
	}
	return out, nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return a.s.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func (a *Adapter) SendEmbed(ctx context.Context, channelID string, e transport.Embed) (transport.Message, error) {
	m, err := a.s.ChannelMessageSendEmbed(channelID, toEmbed(e), discordgo.WithContext(ctx))
	if err != nil {
		return transport.Message{}, classifySendError(err)
	}
	return transport.Message{ID: m.ID, ChannelID: m.ChannelID}, nil
}

// SendText posts plain text; it backs the log sink.
func (a *Adapter) SendText(ctx context.Context, channelID, text string) error {
	_, err := a.s.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}
