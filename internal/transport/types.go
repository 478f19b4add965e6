package transport

import "context"

type UpdateKind string

const (
	UpdateCommand      UpdateKind = "command"
	UpdateComponent    UpdateKind = "component"
	UpdateGuildRemoved UpdateKind = "guild_removed"
)

type Update struct {
	Kind UpdateKind

	// Interaction is set for command and component updates.
	Interaction *Interaction

	// GuildID is set for guild_removed updates.
	GuildID   string
	GuildName string
}

// Interaction is a slash command invocation or a button press.
type Interaction struct {
	ID        string
	GuildID   string
	ChannelID string
	UserID    string
	Username  string
	IsAdmin   bool

	// Command name (slash commands) or custom ID (components).
	Name    string
	Options map[string]string

	Raw any // adapter-specific interaction (Discord: *discordgo.Interaction)
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
)

type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
	Disabled bool
}

type Reply struct {
	Content   string
	Embeds    []Embed
	Buttons   []Button
	Ephemeral bool
}

// Embed is a rendered notification payload.
type Embed struct {
	Title       string
	URL         string
	Description string
	Color       int
	Image       string
	Thumbnail   string
	Footer      string
	Fields      []EmbedField
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Field returns the first field named name.
func (e Embed) Field(name string) (EmbedField, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return EmbedField{}, false
}

type Message struct {
	ID        string
	ChannelID string
}

type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Destinations is the part of an adapter the dispatcher needs.
type Destinations interface {
	ResolveChannel(ctx context.Context, channelID string) (Channel, error)
	// RecentMessages returns up to limit messages, newest first. An empty
	// beforeID starts from the latest message.
	RecentMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendEmbed(ctx context.Context, channelID string, e Embed) (Message, error)
}

type Adapter interface {
	Destinations

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	Respond(ctx context.Context, in *Interaction, r Reply) error
	FollowUp(ctx context.Context, in *Interaction, r Reply) error
	EditResponse(ctx context.Context, in *Interaction, r Reply) error
	SendText(ctx context.Context, channelID, text string) error
}

type OptionKind int

const (
	OptionString OptionKind = iota + 1
	OptionChannel
)

type OptionSpec struct {
	Name        string
	Description string
	Kind        OptionKind
	Required    bool
}

// CommandSpec describes a slash command for registration with the platform.
type CommandSpec struct {
	Name        string
	Description string
	// AdminOnly hides the command from members without Administrator.
	AdminOnly bool
	Options   []OptionSpec
}
