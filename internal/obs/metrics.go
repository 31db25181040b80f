package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	securityRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fapigw_security_rejections_total",
			Help: "Requests rejected by the security envelope, by reason.",
		},
		[]string{"reason"},
	)

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fapigw_state_transitions_total",
			Help: "Resource status transitions.",
		},
		[]string{"resource", "from", "to"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fapigw_upstream_duration_seconds",
			Help:    "Latency of collaborator calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "op", "outcome"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fapigw_ready",
		Help: "1 when the gateway is ready to serve.",
	})
)

// Init registers the metrics in the default registry. Safe to call repeatedly.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			securityRejections, stateTransitions, upstreamDuration, ready,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures rate, latency and in-flight requests. The path label is
// the matched route template so resource ids do not explode cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInFlight.Inc()
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpInFlight.Dec()
	}
}

// RecordRejection counts a request refused before reaching business logic.
func RecordRejection(reason string) {
	securityRejections.WithLabelValues(reason).Inc()
}

// RecordTransition counts a resource status change.
func RecordTransition(resource, from, to string) {
	stateTransitions.WithLabelValues(resource, from, to).Inc()
}

// ObserveUpstream records the latency of a collaborator call.
func ObserveUpstream(service, op, outcome string, d time.Duration) {
	upstreamDuration.WithLabelValues(service, op, outcome).Observe(d.Seconds())
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}
