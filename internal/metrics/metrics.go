package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "botcore"

// Recorder 汇总服务的 Prometheus 指标。nil Recorder 的所有方法都是空操作，
// 方便在测试中省略。
type Recorder struct {
	registry *prometheus.Registry

	decisions      *prometheus.CounterVec
	branchFailures *prometheus.CounterVec
	noteCache      *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	breakerState   *prometheus.GaugeVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates a recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Decisions returned to the EA by workflow and action",
			},
			[]string{"workflow", "action"},
		),
		branchFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "branch_failures_total",
				Help:      "Failed analysis branches (pattern, charts, market)",
			},
			[]string{"branch"},
		),
		noteCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "note_cache_total",
				Help:      "Note cache lookups by note type and result",
			},
			[]string{"note_type", "result"},
		),
		llmLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_call_duration_seconds",
				Help:      "Duration of reasoning-service calls",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120},
			},
			[]string{"purpose", "outcome"},
		),
		breakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_breaker_state",
				Help:      "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open)",
			},
			[]string{"source"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"route", "method"},
		),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) RecordDecision(workflow, action string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(workflow, action).Inc()
}

func (r *Recorder) RecordBranchFailure(branch string) {
	if r == nil {
		return
	}
	r.branchFailures.WithLabelValues(branch).Inc()
}

func (r *Recorder) RecordNoteCache(noteType, result string) {
	if r == nil {
		return
	}
	r.noteCache.WithLabelValues(noteType, result).Inc()
}

func (r *Recorder) ObserveLLM(purpose string, d time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.llmLatency.WithLabelValues(purpose, outcome).Observe(d.Seconds())
}

func (r *Recorder) SetBreakerState(source string, state int) {
	if r == nil {
		return
	}
	r.breakerState.WithLabelValues(source).Set(float64(state))
}

func (r *Recorder) ObserveHTTP(route, method string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, statusLabel(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
