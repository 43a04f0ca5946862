package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsechat_http_requests_total",
			Help: "Total number of HTTP requests processed by the server.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulsechat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulsechat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsechat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"direction", "event"},
	)
	eventPublishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsechat_event_publish_errors_total",
			Help: "Total number of domain event publish errors.",
		},
		[]string{"driver"},
	)
	messagesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsechat_messages_created_total",
			Help: "Total number of messages persisted.",
		},
	)
	clientEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsechat_client_events_total",
			Help: "Messaging core events: dedup drops, rollbacks, stale pages, resubscribes.",
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		eventPublishErrorsTotal,
		messagesCreatedTotal,
		clientEventsTotal,
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer (websocket hijack).
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// HTTPMetrics records request counts and latencies keyed by the matched route pattern.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func IncWSActive() { wsActiveConnections.Inc() }

func DecWSActive() { wsActiveConnections.Dec() }

func IncWSEvent(direction, event string) {
	wsEventsTotal.WithLabelValues(direction, event).Inc()
}

func IncEventPublishError(driver string) {
	eventPublishErrorsTotal.WithLabelValues(driver).Inc()
}

func IncMessagesCreated() { messagesCreatedTotal.Inc() }

// Messaging core event labels.
const (
	ClientDedupDrop   = "dedup_drop"
	ClientRollback    = "rollback"
	ClientStalePage   = "stale_page"
	ClientResubscribe = "resubscribe"
	ClientFetchDrop   = "fetch_dropped"
)

func IncClientEvent(event string) {
	clientEventsTotal.WithLabelValues(event).Inc()
}
