package commands

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckbot/internal/confirm"
	"duckbot/internal/eventbus"
	"duckbot/internal/events"
	"duckbot/internal/notifier"
	"duckbot/internal/storage"
	"duckbot/internal/transport"
	logx "duckbot/pkg/logx"
)

type call struct {
	kind  string // respond, followup, edit
	reply transport.Reply
}

type fakeAdapter struct {
	mu       sync.Mutex
	calls    []call
	channels map[string]transport.Channel
	onReply  func(r transport.Reply)
}

func (f *fakeAdapter) record(kind string, r transport.Reply) {
	f.mu.Lock()
	f.calls = append(f.calls, call{kind: kind, reply: r})
	hook := f.onReply
	f.mu.Unlock()
	if hook != nil && kind == "respond" {
		hook(r)
	}
}

func (f *fakeAdapter) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                          { return nil }
func (f *fakeAdapter) SendText(context.Context, string, string) error      { return nil }

func (f *fakeAdapter) Respond(_ context.Context, _ *transport.Interaction, r transport.Reply) error {
	f.record("respond", r)
	return nil
}

func (f *fakeAdapter) FollowUp(ctx context.Context, _ *transport.Interaction, r transport.Reply) error {
	// Like the REST client, refuse to send on a spent context.
	if err := ctx.Err(); err != nil {
		return err
	}
	f.record("followup", r)
	return nil
}

func (f *fakeAdapter) EditResponse(_ context.Context, _ *transport.Interaction, r transport.Reply) error {
	f.record("edit", r)
	return nil
}

func (f *fakeAdapter) ResolveChannel(_ context.Context, id string) (transport.Channel, error) {
	if ch, ok := f.channels[id]; ok {
		return ch, nil
	}
	return transport.Channel{}, errors.New("unknown channel")
}

func (f *fakeAdapter) RecentMessages(context.Context, string, int, string) ([]transport.Message, error) {
	return nil, nil
}
func (f *fakeAdapter) DeleteMessage(context.Context, string, string) error { return nil }
func (f *fakeAdapter) SendEmbed(context.Context, string, transport.Embed) (transport.Message, error) {
	return transport.Message{}, nil
}

type fakeDispatcher struct {
	mu     sync.Mutex
	guilds []string
	n      int
	err    error
	// block makes Notify wait for its context to end.
	block bool
}

func (f *fakeDispatcher) Notify(ctx context.Context, records []events.Record, guildID string) (notifier.Report, error) {
	f.mu.Lock()
	f.guilds = append(f.guilds, guildID)
	f.n = len(records)
	block, err := f.block, f.err
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return notifier.Report{}, ctx.Err()
	}
	return notifier.Report{Sent: len(records)}, err
}

type fakeFeed []events.Record

func (f fakeFeed) Snapshot() []events.Record { return f }

type fixture struct {
	router *Router
	ad     *fakeAdapter
	store  storage.Store
	disp   *fakeDispatcher
	bus    eventbus.Bus
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	return newFixtureWith(t, ttl, 0)
}

func newFixtureWith(t *testing.T, ttl, dispatchTimeout time.Duration) *fixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "state")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ad := &fakeAdapter{channels: map[string]transport.Channel{
		"c1": {ID: "c1", GuildID: "g1"},
		"c9": {ID: "c9", GuildID: "other"},
	}}
	disp := &fakeDispatcher{}
	bus := eventbus.New()
	h := NewHandlers(Deps{
		Store:      st,
		Dispatcher: disp,
		Feed:       fakeFeed{{Name: "a"}, {Name: "b"}},
		Confirm:    confirm.NewRegistry(),
		Bus:        bus,
		ConfirmTTL: ttl,

		DispatchTimeout: dispatchTimeout,
	})
	r := NewRouter(logx.Nop(), ad, time.Second)
	h.Register(r)
	return &fixture{router: r, ad: ad, store: st, disp: disp, bus: bus}
}

func command(name string, admin bool, opts map[string]string) transport.Update {
	return transport.Update{Kind: transport.UpdateCommand, Interaction: &transport.Interaction{
		ID: "i1", GuildID: "g1", ChannelID: "c0", UserID: "u1", Username: "ash", IsAdmin: admin, Name: name, Options: opts,
	}}
}

func press(customID, userID string) transport.Update {
	return transport.Update{Kind: transport.UpdateComponent, Interaction: &transport.Interaction{
		ID: "i2", GuildID: "g1", UserID: userID, Name: customID,
	}}
}

func TestSetupChannelRequiresAdmin(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.router.Route(context.Background(), command(CmdSetupChannel, false, map[string]string{"channel": "c1"}))

	calls := f.ad.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "You don't have permission to use this command.", calls[0].reply.Content)
	assert.True(t, calls[0].reply.Ephemeral)

	_, ok, err := f.store.GetBinding(context.Background(), "g1")
	require.NoError(t, err)
	assert.False(t, ok, "denied command must not write a binding")
}

func TestSetupChannelBindsThenConfirms(t *testing.T) {
	f := newFixture(t, time.Minute)
	var boundAtReply bool
	f.ad.onReply = func(transport.Reply) {
		if !boundAtReply {
			_, boundAtReply, _ = f.store.GetBinding(context.Background(), "g1")
		}
	}

	f.router.Route(context.Background(), command(CmdSetupChannel, true, map[string]string{"channel": "c1"}))
	assert.True(t, boundAtReply, "binding is durable before the reply")

	calls := f.ad.snapshot()
	require.Len(t, calls, 1)
	reply := calls[0].reply
	require.Len(t, reply.Embeds, 1)
	assert.Equal(t, "Channel Updated", reply.Embeds[0].Title)
	assert.Equal(t, channelUpdatedColor, reply.Embeds[0].Color)
	assert.Equal(t, "✅ Event notifications will now be sent in <#c1>.", reply.Embeds[0].Description)
	require.Len(t, reply.Buttons, 1)
	btn := reply.Buttons[0]
	assert.Equal(t, "Confirm", btn.Label)

	f.router.Route(context.Background(), press(btn.CustomID, "u1"))
	f.router.Route(context.Background(), press(btn.CustomID, "u1"))

	calls = f.ad.snapshot()
	require.Len(t, calls, 3, "second press is ignored")
	assert.Equal(t, "respond", calls[1].kind, "the press is answered before the button edit")
	assert.Equal(t, "Thank you! The channel setup is confirmed.", calls[1].reply.Content)
	assert.Equal(t, "edit", calls[2].kind)
	assert.Equal(t, "Acknowledged", calls[2].reply.Buttons[0].Label)
	assert.True(t, calls[2].reply.Buttons[0].Disabled)
}

func TestSetupChannelPromptExpires(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	f.router.Route(context.Background(), command(CmdSetupChannel, true, map[string]string{"channel": "c1"}))
	btn := f.ad.snapshot()[0].reply.Buttons[0]

	require.Eventually(t, func() bool { return len(f.ad.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	edit := f.ad.snapshot()[1]
	assert.Equal(t, "edit", edit.kind)
	assert.True(t, edit.reply.Buttons[0].Disabled)

	f.router.Route(context.Background(), press(btn.CustomID, "u1"))
	assert.Len(t, f.ad.snapshot(), 2, "late press is rejected silently")

	ch, ok, err := f.store.GetBinding(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, ok, "expiry does not undo the binding")
	assert.Equal(t, "c1", ch)
}

func TestSetupChannelRejectsForeignChannel(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.router.Route(context.Background(), command(CmdSetupChannel, true, map[string]string{"channel": "c9"}))

	calls := f.ad.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "That channel is not in this server.", calls[0].reply.Content)
	_, ok, _ := f.store.GetBinding(context.Background(), "g1")
	assert.False(t, ok)
}

func TestForceEvent(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.router.Route(context.Background(), command(CmdForceEvent, true, nil))

	calls := f.ad.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, "respond", calls[0].kind)
	assert.Equal(t, "Event notifications are being triggered. Please wait...", calls[0].reply.Content)
	assert.Equal(t, "followup", calls[1].kind)
	assert.Equal(t, "Event notifications have been successfully triggered.", calls[1].reply.Content)
	assert.Equal(t, []string{"g1"}, f.disp.guilds)
	assert.Equal(t, 2, f.disp.n)
}

func TestForceEventFailure(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.disp.err = errors.New("discord down")
	f.router.Route(context.Background(), command(CmdForceEvent, true, nil))

	calls := f.ad.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, "There was an error triggering the event notifications.", calls[1].reply.Content)
}

func TestForceEventTimeoutStillFollowsUp(t *testing.T) {
	f := newFixtureWith(t, time.Minute, 50*time.Millisecond)
	f.disp.block = true
	f.router.Route(context.Background(), command(CmdForceEvent, true, nil))

	calls := f.ad.snapshot()
	require.Len(t, calls, 2, "the failure notice is sent after the deadline")
	assert.Equal(t, "followup", calls[1].kind)
	assert.Equal(t, "There was an error triggering the event notifications.", calls[1].reply.Content)
}

func TestForceEventRequiresAdmin(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.router.Route(context.Background(), command(CmdForceEvent, false, nil))

	calls := f.ad.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "You do not have permission to use this command.", calls[0].reply.Content)
	assert.Empty(t, f.disp.guilds)
}

func TestGuildRemovedDropsBinding(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, f.store.SetBinding(ctx, "g1", "c1"))
	ch, unsub := f.bus.Subscribe(1)
	defer unsub()

	f.router.Route(ctx, transport.Update{Kind: transport.UpdateGuildRemoved, GuildID: "g1", GuildName: "Test"})

	_, ok, err := f.store.GetBinding(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, ok)
	e := <-ch
	assert.Equal(t, eventbus.BindingRemoved, e.Type)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.router.Route(context.Background(), command("nope", true, nil))
	calls := f.ad.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "Unknown command.", calls[0].reply.Content)
}

func TestRouterRecoversHandlerPanic(t *testing.T) {
	ad := &fakeAdapter{}
	r := NewRouter(logx.Nop(), ad, time.Second)
	r.SetRegistry([]Command{{
		Spec:   transport.CommandSpec{Name: "boom"},
		Handle: func(context.Context, *Request) error { panic("bad") },
	}}, nil, nil)

	assert.NotPanics(t, func() { r.Route(context.Background(), command("boom", true, nil)) })
	assert.Equal(t, []transport.CommandSpec{{Name: "boom"}}, r.Specs())
}

func TestDispatchLoopStopsOnCancel(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan transport.Update, 1)
	done := make(chan error, 1)
	go func() { done <- f.router.DispatchLoop(ctx, updates) }()

	updates <- command(CmdForceEvent, true, nil)
	require.Eventually(t, func() bool { return len(f.ad.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatch loop did not stop")
	}
}
