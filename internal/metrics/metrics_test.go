package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_counters(t *testing.T) {
	m := New()

	m.ObserveRequest(http.MethodPost, "/api/session/start", http.StatusCreated, 20*time.Millisecond)
	m.ObserveRequest(http.MethodPost, "/api/session/start", http.StatusCreated, 5*time.Millisecond)
	m.ObserveCapture("person", ResultStored)
	m.ObserveCapture("vehicle", ResultRejected)
	m.AddStoredBytes(2048)
	m.AddStoredBytes(-1)
	m.IncIntegrityFailure()

	body := scrape(t, m)
	require.Contains(t, body, `gatehouse_http_requests_total{method="POST",route="/api/session/start",status="201"} 2`)
	require.Contains(t, body, `gatehouse_captures_total{result="stored",type="person"} 1`)
	require.Contains(t, body, `gatehouse_captures_total{result="rejected",type="vehicle"} 1`)
	require.Contains(t, body, "gatehouse_images_stored_bytes_total 2048")
	require.Contains(t, body, "gatehouse_image_integrity_failures_total 1")
}

func TestMetrics_activeSessionsGauge(t *testing.T) {
	m := New()
	live := 3
	m.RegisterActiveSessions(func() int { return live })

	require.Contains(t, scrape(t, m), "gatehouse_active_sessions 3")

	live = 0
	require.Contains(t, scrape(t, m), "gatehouse_active_sessions 0")
}
