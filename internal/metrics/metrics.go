package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the survey service.
type Metrics struct {
	DraftOps        *prometheus.CounterVec
	Submissions     *prometheus.CounterVec
	SubmitDuration  prometheus.Histogram
	Copies          *prometheus.CounterVec
	Sessions        prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
	HTTPDurationSec *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DraftOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "surveys_draft_operations_total",
			Help: "Draft store operations by kind and outcome",
		}, []string{"op", "outcome"}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "surveys_submissions_total",
			Help: "Survey submissions by survey and outcome",
		}, []string{"survey", "outcome"}),
		SubmitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "surveys_submit_duration_seconds",
			Help:    "Latency of submission sink calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		Copies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "surveys_copies_total",
			Help: "Response copies sent by outcome",
		}, []string{"outcome"}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "surveys_active_sessions",
			Help: "Form engine sessions currently held by the gateway",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "surveys_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDurationSec: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "surveys_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Outcome maps a success flag onto the label value used by the counters.
func Outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Middleware records request counts and latency keyed by the chi route
// pattern, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDurationSec.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
