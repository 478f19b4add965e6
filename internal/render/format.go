package render

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"duckbot/internal/events"
)

// DateLayout matches the long en-US form, e.g. "Monday, October 19, 2026 at 2:00 PM".
const DateLayout = "Monday, January 2, 2006 at 3:04 PM"

const (
	bullet      = "• "
	shinyMarker = " ✨"

	// Discord rejects field values over 1024 characters.
	maxFieldValue = 1024
)

var titleCaser = cases.Title(language.AmericanEnglish)

// FormatLabel expands a camel-case identifier into title-cased words:
// "thisWeek" -> "This Week".
func FormatLabel(label string) string {
	var b strings.Builder
	for i, r := range label {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	words := strings.Fields(b.String())
	for i, w := range words {
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, " ")
}

// FormatDate renders t in loc; zero times render as "TBA".
func FormatDate(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "TBA"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DateLayout)
}

func bulletList(bonuses []events.Bonus) string {
	lines := make([]string, 0, len(bonuses))
	for _, b := range bonuses {
		if strings.TrimSpace(b.Text) == "" {
			continue
		}
		lines = append(lines, bullet+b.Text)
	}
	return strings.Join(lines, "\n")
}

func speciesLines(list []events.Species) string {
	lines := make([]string, 0, len(list))
	for _, s := range list {
		if s.CanBeShiny {
			lines = append(lines, s.Name+shinyMarker)
		} else {
			lines = append(lines, s.Name)
		}
	}
	return strings.Join(lines, "\n")
}

func speciesNames(list []events.Species) string {
	names := make([]string, 0, len(list))
	for _, s := range list {
		names = append(names, s.Name)
	}
	return strings.Join(names, ", ")
}

func clampField(s string) string {
	if len([]rune(s)) <= maxFieldValue {
		return s
	}
	r := []rune(s)
	return string(r[:maxFieldValue-1]) + "…"
}
