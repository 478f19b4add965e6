// Package events models feed event records and classifies them into
// notification buckets.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is one event from the feed. Records are immutable once a snapshot
// has been published.
type Record struct {
	EventID   string
	Name      string
	EventType string
	Heading   string
	Link      string
	Image     string

	// Start and End are zero when the feed value is missing or unparseable.
	Start time.Time
	End   time.Time

	Extra []Extra
}

type rawRecord struct {
	EventID   string                     `json:"eventID"`
	Name      string                     `json:"name"`
	EventType string                     `json:"eventType"`
	Heading   string                     `json:"heading"`
	Link      string                     `json:"link"`
	Image     string                     `json:"image"`
	Start     *string                    `json:"start"`
	End       *string                    `json:"end"`
	ExtraData map[string]json.RawMessage `json:"extraData"`
}

// Decode parses a feed document (a JSON array of events).
//
// Timestamps without a UTC offset are interpreted in loc (UTC when nil); the
// feed uses that form for events that happen at the same local time in every
// region.
func Decode(data []byte, loc *time.Location) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var raws []rawRecord
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	out := make([]Record, 0, len(raws))
	for _, r := range raws {
		out = append(out, r.record(loc))
	}
	return out, nil
}

// UnmarshalJSON decodes a single record with offset-less timestamps in UTC.
func (r *Record) UnmarshalJSON(b []byte) error {
	var raw rawRecord
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = raw.record(time.UTC)
	return nil
}

func (r rawRecord) record(loc *time.Location) Record {
	return Record{
		EventID:   r.EventID,
		Name:      r.Name,
		EventType: r.EventType,
		Heading:   r.Heading,
		Link:      r.Link,
		Image:     r.Image,
		Start:     parseTime(r.Start, loc),
		End:       parseTime(r.End, loc),
		Extra:     decodeExtras(r.ExtraData),
	}
}

var localLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTime(s *string, loc *time.Location) time.Time {
	if s == nil {
		return time.Time{}
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

func decodeExtras(m map[string]json.RawMessage) []Extra {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Extra, 0, len(keys))
	for _, k := range keys {
		raw := m[k]
		if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		out = append(out, decodeExtra(k, raw))
	}
	return out
}

// HasTimes reports whether both Start and End were parsed.
func (r *Record) HasTimes() bool {
	return !r.Start.IsZero() && !r.End.IsZero()
}

// CommunityDay returns the community-day extra, if any.
func (r *Record) CommunityDay() *CommunityDay {
	for _, x := range r.Extra {
		if v, ok := x.(*CommunityDay); ok {
			return v
		}
	}
	return nil
}

// Spotlight returns the spotlight-hour extra, if any.
func (r *Record) Spotlight() *Spotlight {
	for _, x := range r.Extra {
		if v, ok := x.(*Spotlight); ok {
			return v
		}
	}
	return nil
}

// RaidBattles returns the raid-battle extra, if any.
func (r *Record) RaidBattles() *RaidBattles {
	for _, x := range r.Extra {
		if v, ok := x.(*RaidBattles); ok {
			return v
		}
	}
	return nil
}
