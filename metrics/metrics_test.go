package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cronanaut/veronagrow/ledger"
)

func TestMiddlewareRecordsRequest(t *testing.T) {
	m := New()

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/usage")
	req := httptest.NewRequest(http.MethodPost, "/api/usage", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/api/usage", "418")))
}

func TestRecorder(t *testing.T) {
	m := New()

	m.UsageRecorded(ledger.StateCommitted)
	m.UsageRecorded(ledger.StateCommitted)
	m.UsageRecorded(ledger.StatePartialFailure)
	m.ConflictRetried("record_usage")
	m.CostRecomputed(3 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.usageTotal.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.usageTotal.WithLabelValues("partial_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflictRetries.WithLabelValues("record_usage")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.recomputeTime))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.UsageRecorded(ledger.StateRolledBack)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `veronagrow_usage_records_total{state="rolled_back"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Middleware(next))
}
