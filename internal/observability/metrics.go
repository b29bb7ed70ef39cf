package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interactivectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests served by the metrics endpoint.",
		},
		[]string{"method", "path", "status"},
	)
	handshakeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interactivectl",
			Subsystem: "session",
			Name:      "handshake_attempts_total",
			Help:      "Handshake attempts by result.",
		},
		[]string{"result"},
	)
	handshakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "interactivectl",
			Subsystem: "session",
			Name:      "handshake_duration_seconds",
			Help:      "Login, join and connect duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)
	packetsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interactivectl",
			Subsystem: "session",
			Name:      "packets_total",
			Help:      "Inbound packets by packet name and dispatch outcome.",
		},
		[]string{"packet", "outcome"},
	)
	updatesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "interactivectl",
			Subsystem: "session",
			Name:      "updates_sent_total",
			Help:      "Outbound updates by result.",
		},
		[]string{"result"},
	)
	sessionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "interactivectl",
			Subsystem: "session",
			Name:      "state",
			Help:      "Current session state as its numeric value.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, handshakeAttempts, handshakeDuration, packetsDispatched, updatesSent, sessionState)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int) {
	RegisterMetrics()
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func RecordHandshake(result string, duration time.Duration) {
	RegisterMetrics()
	handshakeAttempts.WithLabelValues(result).Inc()
	handshakeDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func RecordPacket(packet, outcome string) {
	RegisterMetrics()
	packetsDispatched.WithLabelValues(packet, outcome).Inc()
}

func RecordUpdate(result string) {
	RegisterMetrics()
	updatesSent.WithLabelValues(result).Inc()
}

func RecordState(state int) {
	RegisterMetrics()
	sessionState.Set(float64(state))
}
