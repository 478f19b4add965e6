package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duckbot/internal/transport"
)

func TestFromInteractionCommand(t *testing.T) {
	i := &discordgo.Interaction{
		ID:        "i1",
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g1",
		ChannelID: "c0",
		Member: &discordgo.Member{
			User:        &discordgo.User{ID: "u1", Username: "misty"},
			Permissions: discordgo.PermissionAdministrator | discordgo.PermissionSendMessages,
		},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "setupchannel",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "channel", Type: discordgo.ApplicationCommandOptionChannel, Value: "c42"},
			},
		},
	}

	up, ok := fromInteraction(i)
	require.True(t, ok)
	assert.Equal(t, transport.UpdateCommand, up.Kind)
	in := up.Interaction
	assert.Equal(t, "setupchannel", in.Name)
	assert.Equal(t, "c42", in.Options["channel"])
	assert.True(t, in.IsAdmin)
	assert.Equal(t, "u1", in.UserID)
	assert.Equal(t, "misty", in.Username)
	assert.Same(t, i, in.Raw)
}

func TestFromInteractionNonAdmin(t *testing.T) {
	i := &discordgo.Interaction{
		Type:   discordgo.InteractionApplicationCommand,
		Member: &discordgo.Member{User: &discordgo.User{ID: "u2"}, Permissions: discordgo.PermissionSendMessages},
		Data:   discordgo.ApplicationCommandInteractionData{Name: "forceevent"},
	}
	up, ok := fromInteraction(i)
	require.True(t, ok)
	assert.False(t, up.Interaction.IsAdmin)
	assert.Nil(t, up.Interaction.Options)
}

func TestFromInteractionComponent(t *testing.T) {
	i := &discordgo.Interaction{
		Type:   discordgo.InteractionMessageComponent,
		Member: &discordgo.Member{User: &discordgo.User{ID: "u1"}},
		Data:   discordgo.MessageComponentInteractionData{CustomID: "confirm:abc"},
	}
	up, ok := fromInteraction(i)
	require.True(t, ok)
	assert.Equal(t, transport.UpdateComponent, up.Kind)
	assert.Equal(t, "confirm:abc", up.Interaction.Name)
}

func TestFromInteractionIgnoresPing(t *testing.T) {
	_, ok := fromInteraction(&discordgo.Interaction{Type: discordgo.InteractionPing})
	assert.False(t, ok)
}

func TestFromGuildDelete(t *testing.T) {
	_, ok := fromGuildDelete(&discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "g1", Unavailable: true}})
	assert.False(t, ok, "outages are not removals")

	up, ok := fromGuildDelete(&discordgo.GuildDelete{
		Guild:        &discordgo.Guild{ID: "g1"},
		BeforeDelete: &discordgo.Guild{ID: "g1", Name: "Pallet Town"},
	})
	require.True(t, ok)
	assert.Equal(t, transport.UpdateGuildRemoved, up.Kind)
	assert.Equal(t, "g1", up.GuildID)
	assert.Equal(t, "Pallet Town", up.GuildName)
}

func TestToCommandAdminOnly(t *testing.T) {
	c := toCommand(transport.CommandSpec{
		Name:        "setupchannel",
		Description: "Set up a channel",
		AdminOnly:   true,
		Options:     []transport.OptionSpec{{Name: "channel", Kind: transport.OptionChannel, Required: true}},
	})
	require.NotNil(t, c.DefaultMemberPermissions)
	assert.Equal(t, int64(discordgo.PermissionAdministrator), *c.DefaultMemberPermissions)
	require.Len(t, c.Options, 1)
	assert.Equal(t, discordgo.ApplicationCommandOptionChannel, c.Options[0].Type)
	assert.True(t, c.Options[0].Required)

	open := toCommand(transport.CommandSpec{Name: "ping"})
	assert.Nil(t, open.DefaultMemberPermissions)
}

func TestToEmbedOmitsEmptyParts(t *testing.T) {
	m := toEmbed(transport.Embed{Title: "Raid Hour", Color: 0xff0000})
	assert.Nil(t, m.Image)
	assert.Nil(t, m.Thumbnail)
	assert.Nil(t, m.Footer)

	m = toEmbed(transport.Embed{
		Title:     "Spotlight",
		Image:     "https://img/x.png",
		Thumbnail: "https://img/t.png",
		Footer:    "f",
		Fields:    []transport.EmbedField{{Name: "Start", Value: "now", Inline: true}},
	})
	assert.Equal(t, "https://img/x.png", m.Image.URL)
	assert.Equal(t, "https://img/t.png", m.Thumbnail.URL)
	assert.Equal(t, "f", m.Footer.Text)
	require.Len(t, m.Fields, 1)
	assert.True(t, m.Fields[0].Inline)
}

func TestResponseDataButtons(t *testing.T) {
	d := toResponseData(transport.Reply{
		Content:   "hi",
		Ephemeral: true,
		Buttons:   []transport.Button{{CustomID: "confirm:x", Label: "Acknowledged", Style: transport.ButtonSecondary, Disabled: true}},
	})
	assert.Equal(t, discordgo.MessageFlagsEphemeral, d.Flags)
	require.Len(t, d.Components, 1)
	row, ok := d.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	btn, ok := row.Components[0].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, discordgo.SecondaryButton, btn.Style)
	assert.True(t, btn.Disabled)

	assert.Nil(t, toResponseData(transport.Reply{Content: "x"}).Components)
}
