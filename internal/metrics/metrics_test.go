package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounters(t *testing.T) {
	r := New()
	r.RecordDecision("sod", "WAIT")
	r.RecordDecision("sod", "WAIT")
	r.RecordBranchFailure("charts")
	r.RecordNoteCache("market_data_note", "hit")
	r.ObserveLLM("decision", time.Second, errors.New("x"))
	r.SetBreakerState("yahoo", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("sod", "WAIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.branchFailures.WithLabelValues("charts")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.noteCache.WithLabelValues("market_data_note", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.breakerState.WithLabelValues("yahoo")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordDecision("intraday", "ENTER")
		r.RecordBranchFailure("market")
		r.ObserveHTTP("/api/health", http.MethodGet, 200, time.Millisecond)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.ObserveHTTP("/api/health", http.MethodGet, 200, time.Millisecond)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "botcore_http_requests_total")
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "2xx", statusLabel(200))
	assert.Equal(t, "4xx", statusLabel(404))
	assert.Equal(t, "5xx", statusLabel(503))
}
