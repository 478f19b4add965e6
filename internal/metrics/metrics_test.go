package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveFeedFetch(t *testing.T) {
	before := testutil.ToFloat64(feedFetches.WithLabelValues("ok"))
	ObserveFeedFetch(true, 7)
	ObserveFeedFetch(false, 0)

	if got := testutil.ToFloat64(feedFetches.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("ok fetches=%v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(feedEvents); got != 7 {
		t.Fatalf("feed events=%v, want 7", got)
	}
}

func TestHandlerExportsCollectors(t *testing.T) {
	ObserveDispatch(time.Second, 2, 1, 0)
	AddPurged(3, 1)
	IncSent(true)
	IncCommand("forceevent", true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"duckbot_dispatch_duration_seconds",
		"duckbot_purge_messages_total",
		"duckbot_payloads_sent_total",
		"duckbot_commands_total",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metric %s missing from output", name)
		}
	}
}
