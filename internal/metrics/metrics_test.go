package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Scan(3)
	m.Transition("accepted", true)
	m.Reconciled()
	m.PresenceFlip(true)
	m.ClientConnected(1)
	m.Pushed("match_created")
}

func TestCounters(t *testing.T) {
	m := New()

	m.Scan(2)
	m.Scan(0)
	if got := testutil.ToFloat64(m.Scans); got != 2 {
		t.Errorf("expected 2 scans, got %v", got)
	}

	m.Transition("accepted", true)
	m.Transition("accepted", false)
	m.Transition("accepted", false)
	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("accepted", "conflict")); got != 2 {
		t.Errorf("expected 2 conflicts, got %v", got)
	}

	m.ClientConnected(1)
	m.ClientConnected(1)
	m.ClientConnected(-1)
	if got := testutil.ToFloat64(m.PushClients); got != 1 {
		t.Errorf("expected 1 push client, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Reconciled()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "menjava_reconciliations_total 1") {
		t.Errorf("expected reconciliation counter in output")
	}
}
