// Package render turns event records into Discord embeds.
package render

import (
	"strings"
	"time"

	"duckbot/internal/events"
	"duckbot/internal/transport"
	logx "duckbot/pkg/logx"
)

// Field names, in the order they are added.
const (
	FieldStarts   = "🗓️ Starts"
	FieldEnds     = "🗓️ Ends"
	FieldBonuses  = "🎁 Bonuses"
	FieldFeatured = "🌟 Featured Pokémon"
	FieldBosses   = "👑 Raid Bosses"
	FieldShinies  = "✨ Shiny Available"
)

const defaultDescription = "Event Details"

type Renderer struct {
	log logx.Logger
	loc *time.Location
}

// New returns a Renderer formatting dates in loc (UTC when nil).
func New(log logx.Logger, loc *time.Location) *Renderer {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{log: log, loc: loc}
}

// Render builds the embed for one record. Missing optional data never fails;
// the matching field is simply left out.
func (r *Renderer) Render(rec *events.Record) transport.Embed {
	e := transport.Embed{
		Title:       rec.Name,
		URL:         strings.TrimSpace(rec.Link),
		Description: rec.Heading,
		Color:       r.color(rec),
		Image:       rec.Image,
	}
	if strings.TrimSpace(e.Description) == "" {
		e.Description = defaultDescription
	}

	e.Fields = append(e.Fields,
		transport.EmbedField{Name: FieldStarts, Value: FormatDate(rec.Start, r.loc), Inline: true},
		transport.EmbedField{Name: FieldEnds, Value: FormatDate(rec.End, r.loc), Inline: true},
	)

	cd := rec.CommunityDay()
	sp := rec.Spotlight()
	rb := rec.RaidBattles()

	var bonuses []events.Bonus
	switch {
	case cd != nil && len(cd.Bonuses) > 0:
		bonuses = cd.Bonuses
	case sp != nil && strings.TrimSpace(sp.Bonus) != "":
		bonuses = []events.Bonus{{Text: sp.Bonus}}
	}
	if v := bulletList(bonuses); v != "" {
		addField(&e, FieldBonuses, v)
	}

	var featured []events.Species
	switch {
	case cd != nil && len(cd.Spawns) > 0:
		featured = cd.Spawns
	case sp != nil && len(sp.List) > 0:
		featured = sp.List
	}
	if len(featured) > 0 {
		addField(&e, FieldFeatured, speciesLines(featured))
		if featured[0].Image != "" {
			e.Thumbnail = featured[0].Image
		}
	}

	if rb != nil && len(rb.Bosses) > 0 {
		addField(&e, FieldBosses, speciesLines(rb.Bosses))
		if rb.Bosses[0].Image != "" {
			e.Thumbnail = rb.Bosses[0].Image
		}
	}
	if rb != nil && len(rb.Shinies) > 0 {
		addField(&e, FieldShinies, speciesNames(rb.Shinies))
		if rb.Shinies[0].Image != "" {
			e.Image = rb.Shinies[0].Image
		}
	}
	return e
}

func (r *Renderer) color(rec *events.Record) int {
	c, ok := ColorFor(rec.EventType)
	if !ok {
		r.log.Warn("event type not recognized; using default color",
			logx.String("event_type", rec.EventType),
			logx.String("event", rec.Name),
		)
	}
	return c
}

func addField(e *transport.Embed, name, value string) {
	e.Fields = append(e.Fields, transport.EmbedField{Name: name, Value: clampField(value)})
}
