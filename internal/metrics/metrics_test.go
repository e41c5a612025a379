package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserversIncrementCounters(t *testing.T) {
	m := New()
	m.TransitionApplied(domain.StatusMatched, domain.StatusNotified)
	m.TransitionApplied(domain.StatusMatched, domain.StatusNotified)
	m.ConflictRetried()
	m.NotificationAttempted("email", "sent")
	m.NotificationDeferred("builder")
	m.MatchRun(3*time.Millisecond, 0)

	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("Matched", "Notified")); got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.ConflictRetries); got != 1 {
		t.Fatalf("expected 1 conflict retry, got %v", got)
	}
	if got := testutil.ToFloat64(m.MatchResults.WithLabelValues("unmatched")); got != 1 {
		t.Fatalf("expected 1 unmatched run, got %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.NotificationAttempted("sms", "permanent")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `standzon_notifications_total{channel="sms",outcome="permanent"} 1`) {
		t.Fatalf("metrics output missing counter: %s", rec.Body.String())
	}
}
