package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codeshare",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"service", "method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codeshare",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "method", "path", "status"})

	httpInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "codeshare",
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	}, []string{"service"})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codeshare",
		Name:      "ws_active_connections",
		Help:      "Open real-time connections",
	})

	joinedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codeshare",
		Name:      "ws_joined_connections",
		Help:      "Real-time connections currently joined to a session",
	})

	storedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codeshare",
		Name:      "sessions",
		Help:      "Sessions held in the store",
	})

	wsEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codeshare",
		Name:      "ws_events_total",
		Help:      "Inbound real-time events by type and outcome",
	}, []string{"type", "outcome"})

	droppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codeshare",
		Name:      "ws_dropped_frames_total",
		Help:      "Outbound frames discarded because a client queue was full",
	})

	evictedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "codeshare",
		Name:      "sessions_evicted_total",
		Help:      "Sessions removed by the idle eviction sweep",
	})
)

func ConnectionOpened()                { activeConnections.Inc() }
func ConnectionClosed()                { activeConnections.Dec() }
func SetJoinedConnections(n int)       { joinedConnections.Set(float64(n)) }
func SetSessions(n int)                { storedSessions.Set(float64(n)) }
func ObserveEvent(typ, outcome string) { wsEvents.WithLabelValues(typ, outcome).Inc() }
func FrameDropped()                    { droppedFrames.Inc() }
func SessionsEvicted(n int)            { evictedSessions.Add(float64(n)) }

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is required for the websocket upgrade to pass through the middleware.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics with Prometheus labels. Paths are labelled
// by chi route pattern so session ids do not explode cardinality.
func Middleware(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			httpInFlight.WithLabelValues(service).Inc()
			defer httpInFlight.WithLabelValues(service).Dec()

			next.ServeHTTP(rec, r)

			labels := prometheus.Labels{
				"service": service,
				"method":  r.Method,
				"path":    routePattern(r),
				"status":  strconv.Itoa(rec.status),
			}
			httpRequests.With(labels).Inc()
			httpLatency.With(labels).Observe(time.Since(start).Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
