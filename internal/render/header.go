package render

import (
	"duckbot/internal/events"
	"duckbot/internal/transport"
)

const (
	ongoingColor  = 0xff9800
	upcomingColor = 0x4caf50
)

// Header builds the section embed sent before a non-empty bucket.
func Header(group, bucket string) transport.Embed {
	label := FormatLabel(bucket)
	if group == events.GroupUpcoming {
		return transport.Embed{
			Title:       "🚀 Upcoming Events - Starts " + label,
			Color:       upcomingColor,
			Description: "🎉 Take a look at events starting soon!",
		}
	}
	return transport.Embed{
		Title:       "🔴 Ongoing Events - Ends " + label,
		Color:       ongoingColor,
		Description: "🔥 Check out events that are happening right now!",
	}
}
