package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.AccessDecision("granted", "local")
	m.AccessDecision("granted", "local")
	m.AccessDecision("denied", "none")
	m.WebhookEvent("checkout_completed", "processed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.accessDecisions.WithLabelValues("granted", "local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.accessDecisions.WithLabelValues("denied", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("checkout_completed", "processed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AccessDecision("granted", "local")
		m.WebhookEvent("unhandled", "ignored")
		m.PollerRefreshed("updated")
		m.HTTPRequest(http.MethodGet, "/", 200, time.Millisecond)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.HTTPRequest(http.MethodGet, "/api/qa", 402, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kb_http_requests_total{method="GET",route="/api/qa",status_code="402"} 1`)
}
