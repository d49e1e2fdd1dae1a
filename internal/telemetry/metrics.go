// Package telemetry provides observability primitives for the Beacon hub.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the hub.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveStreams   prometheus.Gauge
	StreamsStarted  *prometheus.CounterVec
	StreamDuration  *prometheus.HistogramVec
	FramesSent      *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	PublishDropped  *prometheus.CounterVec
	RelayReconnects prometheus.Counter
	SessionQueueLen prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "beacon",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "beacon",
			Name:      "active_streams",
			Help:      "Number of currently open SSE streams.",
		}),

		StreamsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "streams_started_total",
			Help:      "Total SSE streams started.",
		}, []string{"channel"}),

		StreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "beacon",
			Name:                            "stream_duration_seconds",
			Help:                            "SSE stream lifetime in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"channel"}),

		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "frames_sent_total",
			Help:      "Total frames written to SSE streams.",
		}, []string{"type"}),

		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "events_published_total",
			Help:      "Total events published to channels.",
		}, []string{"channel"}),

		PublishDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "publish_dropped_total",
			Help:      "Total events dropped for slow subscribers.",
		}, []string{"channel"}),

		RelayReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "beacon",
			Name:      "relay_reconnects_total",
			Help:      "Total upstream relay reconnect attempts.",
		}),

		SessionQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "beacon",
			Name:      "session_queue_length",
			Help:      "Session records waiting to be flushed.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveStreams,
		m.StreamsStarted,
		m.StreamDuration,
		m.FramesSent,
		m.EventsPublished,
		m.PublishDropped,
		m.RelayReconnects,
		m.SessionQueueLen,
	)
	return m
}
