package render

import "strings"

// DefaultColor is used for unknown or missing event types.
const DefaultColor = 0x0099ff

var eventColors = map[string]int{
	"community-day":          0xff9800,
	"spotlight-hour":         0x4caf50,
	"raid-hour":              0xe91e63,
	"special-event":          0x03a9f4,
	"wild-area":              0x8bc34a,
	"event":                  0xf44336,
	"pokemon-spotlight-hour": 0xffeb3b,
	"go-battle-league":       0x3f51b5,
	"max-mondays":            0x9c27b0,
	"raid-battles":           0x673ab7,
	"pokestop-showcase":      0x00bcd4,
	"max-battles":            0xcddc39,
	"research-day":           0xff5722,
	"raid-day":               0x795548,
}

// ColorFor looks up the accent color for an event type (case-insensitive).
func ColorFor(eventType string) (int, bool) {
	c, ok := eventColors[strings.ToLower(strings.TrimSpace(eventType))]
	if !ok {
		return DefaultColor, false
	}
	return c, true
}
