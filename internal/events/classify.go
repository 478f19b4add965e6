package events

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// Bucket thresholds in whole days (rounded up).
const (
	todayDays    = 1
	thisWeekDays = 7
	nextWeekDays = 14
)

// Group labels.
const (
	GroupOngoing  = "ongoing"
	GroupUpcoming = "upcoming"
)

// Bucket labels.
const (
	BucketToday    = "today"
	BucketThisWeek = "thisWeek"
	BucketNextWeek = "nextWeek"
)

// Group holds the urgency buckets of one category. The slices point into the
// classified record slice; they are not copies.
type Group struct {
	Today    []*Record
	ThisWeek []*Record
	NextWeek []*Record
}

// Bucket is a labelled view over one bucket of a Group.
type Bucket struct {
	Label   string
	Records []*Record
}

// Buckets returns the buckets in declaration order.
func (g *Group) Buckets() []Bucket {
	return []Bucket{
		{Label: BucketToday, Records: g.Today},
		{Label: BucketThisWeek, Records: g.ThisWeek},
		{Label: BucketNextWeek, Records: g.NextWeek},
	}
}

// Len is the number of records across all buckets.
func (g *Group) Len() int { return len(g.Today) + len(g.ThisWeek) + len(g.NextWeek) }

func (g *Group) add(days int, r *Record) {
	switch {
	case days <= todayDays:
		g.Today = append(g.Today, r)
	case days <= thisWeekDays:
		g.ThisWeek = append(g.ThisWeek, r)
	case days <= nextWeekDays:
		g.NextWeek = append(g.NextWeek, r)
	}
}

// Categorized is the result of one classification pass.
type Categorized struct {
	Ongoing  Group
	Upcoming Group
}

// NamedGroup pairs a group with its label.
type NamedGroup struct {
	Label string
	Group *Group
}

// Groups returns ongoing then upcoming.
func (c *Categorized) Groups() []NamedGroup {
	return []NamedGroup{
		{Label: GroupOngoing, Group: &c.Ongoing},
		{Label: GroupUpcoming, Group: &c.Upcoming},
	}
}

// Len is the number of records placed in any bucket.
func (c *Categorized) Len() int { return c.Ongoing.Len() + c.Upcoming.Len() }

// Classify partitions records relative to now.
//
// Active records (start <= now <= end) are bucketed by days until they end,
// records that have not started by days until they start. Anything more than
// 14 days out, and records missing either timestamp, are left out. Bucket
// order follows input order.
func Classify(records []Record, now time.Time) Categorized {
	var c Categorized
	for i := range records {
		r := &records[i]
		if !r.HasTimes() {
			continue
		}
		switch {
		case !r.Start.After(now) && !r.End.Before(now):
			c.Ongoing.add(daysUntil(now, r.End), r)
		case r.Start.After(now):
			c.Upcoming.add(daysUntil(now, r.Start), r)
		}
	}
	return c
}

// daysUntil is ceil((t-now)/24h).
func daysUntil(now, t time.Time) int {
	d := math.Ceil(float64(t.Sub(now)) / float64(day))
	if d > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(d)
}
