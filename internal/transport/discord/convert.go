package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"duckbot/internal/transport"
)

func customStatus(text string) discordgo.UpdateStatusData {
	return discordgo.UpdateStatusData{
		Status: string(discordgo.StatusOnline),
		Activities: []*discordgo.Activity{{
			Name:  "Custom Status",
			Type:  discordgo.ActivityTypeCustom,
			State: text,
		}},
	}
}

func toCommand(sp transport.CommandSpec) *discordgo.ApplicationCommand {
	c := &discordgo.ApplicationCommand{
		Name:        sp.Name,
		Description: sp.Description,
	}
	if sp.AdminOnly {
		perm := int64(discordgo.PermissionAdministrator)
		c.DefaultMemberPermissions = &perm
	}
	for _, o := range sp.Options {
		opt := &discordgo.ApplicationCommandOption{
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
			Type:        discordgo.ApplicationCommandOptionString,
		}
		if o.Kind == transport.OptionChannel {
			opt.Type = discordgo.ApplicationCommandOptionChannel
			opt.ChannelTypes = []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews}
		}
		c.Options = append(c.Options, opt)
	}
	return c
}

func fromInteraction(i *discordgo.Interaction) (transport.Update, bool) {
	if i == nil {
		return transport.Update{}, false
	}
	in := &transport.Interaction{
		ID:        i.ID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Raw:       i,
	}
	switch {
	case i.Member != nil:
		in.IsAdmin = i.Member.Permissions&discordgo.PermissionAdministrator != 0
		if i.Member.User != nil {
			in.UserID = i.Member.User.ID
			in.Username = i.Member.User.Username
		}
	case i.User != nil:
		in.UserID = i.User.ID
		in.Username = i.User.Username
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		in.Name = data.Name
		if len(data.Options) > 0 {
			in.Options = make(map[string]string, len(data.Options))
			for _, o := range data.Options {
				in.Options[o.Name] = optionValue(o)
			}
		}
		return transport.Update{Kind: transport.UpdateCommand, Interaction: in}, true
	case discordgo.InteractionMessageComponent:
		in.Name = i.MessageComponentData().CustomID
		return transport.Update{Kind: transport.UpdateComponent, Interaction: in}, true
	default:
		return transport.Update{}, false
	}
}

// optionValue flattens an option to a string. Channel, user and role options
// carry their snowflake ID.
func optionValue(o *discordgo.ApplicationCommandInteractionDataOption) string {
	if o == nil || o.Value == nil {
		return ""
	}
	if s, ok := o.Value.(string); ok {
		return s
	}
	return fmt.Sprint(o.Value)
}

func fromGuildDelete(g *discordgo.GuildDelete) (transport.Update, bool) {
	// Unavailable means an outage, not a removal.
	if g == nil || g.Guild == nil || g.Unavailable {
		return transport.Update{}, false
	}
	name := g.Name
	if name == "" && g.BeforeDelete != nil {
		name = g.BeforeDelete.Name
	}
	return transport.Update{Kind: transport.UpdateGuildRemoved, GuildID: g.ID, GuildName: name}, true
}

func toEmbed(e transport.Embed) *discordgo.MessageEmbed {
	m := &discordgo.MessageEmbed{
		Title:       e.Title,
		URL:         e.URL,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Image != "" {
		m.Image = &discordgo.MessageEmbedImage{URL: e.Image}
	}
	if e.Thumbnail != "" {
		m.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
	}
	if e.Footer != "" {
		m.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		m.Fields = append(m.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return m
}

func toEmbeds(es []transport.Embed) []*discordgo.MessageEmbed {
	if len(es) == 0 {
		return nil
	}
	out := make([]*discordgo.MessageEmbed, 0, len(es))
	for _, e := range es {
		out = append(out, toEmbed(e))
	}
	return out
}

func buttonStyle(s transport.ButtonStyle) discordgo.ButtonStyle {
	if s == transport.ButtonSecondary {
		return discordgo.SecondaryButton
	}
	return discordgo.PrimaryButton
}

func toComponents(bs []transport.Button) []discordgo.MessageComponent {
	if len(bs) == 0 {
		return nil
	}
	row := discordgo.ActionsRow{}
	for _, b := range bs {
		row.Components = append(row.Components, discordgo.Button{
			Label:    b.Label,
			Style:    buttonStyle(b.Style),
			CustomID: b.CustomID,
			Disabled: b.Disabled,
		})
	}
	return []discordgo.MessageComponent{row}
}

func toResponseData(r transport.Reply) *discordgo.InteractionResponseData {
	d := &discordgo.InteractionResponseData{
		Content:    r.Content,
		Embeds:     toEmbeds(r.Embeds),
		Components: toComponents(r.Buttons),
	}
	if r.Ephemeral {
		d.Flags = discordgo.MessageFlagsEphemeral
	}
	return d
}
