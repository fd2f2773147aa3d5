package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "protoforge"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "frames_total",
			Help:      "Frames relayed, by direction and compression state.",
		},
		[]string{"direction", "compressed"},
	)
	frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "payload_bytes_total",
			Help:      "Decompressed payload bytes relayed.",
		},
		[]string{"direction"},
	)
	packets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "packets_total",
			Help:      "Packets decoded, by group and name.",
		},
		[]string{"direction", "stage", "packet"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "decode_errors_total",
			Help:      "Frames that failed to decode, by kind.",
		},
		[]string{"direction", "stage", "kind"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "sessions_active",
			Help:      "Proxied connections currently open.",
		},
	)
	sessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "session_duration_seconds",
			Help:      "Lifetime of proxied connections in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			frames, frameBytes, packets, decodeErrors,
			sessionsActive, sessionDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordFrame counts one relayed frame and its decompressed payload size.
func RecordFrame(direction string, payloadBytes int, compressed bool) {
	RegisterMetrics()
	frames.WithLabelValues(direction, strconv.FormatBool(compressed)).Inc()
	frameBytes.WithLabelValues(direction).Add(float64(payloadBytes))
}

func RecordPacket(direction, stage, packet string) {
	RegisterMetrics()
	packets.WithLabelValues(direction, stage, packet).Inc()
}

func RecordDecodeError(direction, stage, kind string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(direction, stage, kind).Inc()
}

func SessionOpened() {
	RegisterMetrics()
	sessionsActive.Inc()
}

func SessionClosed(lifetime time.Duration) {
	RegisterMetrics()
	sessionsActive.Dec()
	sessionDuration.Observe(lifetime.Seconds())
}
