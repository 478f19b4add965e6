// Package metrics holds the Prometheus collectors for the bot and the
// handler that exports them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "duckbot"

var (
	feedFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetches_total",
			Help:      "Feed refresh attempts by result",
		},
		[]string{"result"},
	)
	feedEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_events",
			Help:      "Number of events in the current snapshot",
		},
	)
	feedLastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful feed refresh",
		},
	)
	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of notification dispatch cycles",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)
	destinations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_destinations_total",
			Help:      "Destinations handled by dispatch cycles, by outcome",
		},
		[]string{"outcome"},
	)
	purged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purge_messages_total",
			Help:      "Messages deleted during purge, by result",
		},
		[]string{"result"},
	)
	sent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_sent_total",
			Help:      "Embeds sent to destinations, by result",
		},
		[]string{"result"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Handled interactions by name and result",
		},
		[]string{"command", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		feedFetches,
		feedEvents,
		feedLastSuccess,
		dispatchDuration,
		destinations,
		purged,
		sent,
		commands,
	)
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// ObserveFeedFetch records one refresh attempt; n is the snapshot size on success.
func ObserveFeedFetch(ok bool, n int) {
	feedFetches.WithLabelValues(result(ok)).Inc()
	if ok {
		feedEvents.Set(float64(n))
		feedLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// SetFeedEvents sets the snapshot size without counting a fetch (startup restore).
func SetFeedEvents(n int) { feedEvents.Set(float64(n)) }

func ObserveDispatch(took time.Duration, processed, skipped, failed int) {
	dispatchDuration.Observe(took.Seconds())
	destinations.WithLabelValues("processed").Add(float64(processed))
	destinations.WithLabelValues("skipped").Add(float64(skipped))
	destinations.WithLabelValues("failed").Add(float64(failed))
}

func AddPurged(deleted, failed int) {
	purged.WithLabelValues("ok").Add(float64(deleted))
	purged.WithLabelValues("error").Add(float64(failed))
}

func IncSent(ok bool) { sent.WithLabelValues(result(ok)).Inc() }

func IncCommand(name string, ok bool) { commands.WithLabelValues(name, result(ok)).Inc() }

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler { return promhttp.Handler() }
