// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream metrics
	FramesReceived    *prometheus.CounterVec
	FramesDropped     prometheus.Counter
	StreamReconnects  prometheus.Counter
	StreamConnected   prometheus.Gauge
	SubscriptionsOpen *prometheus.GaugeVec

	// Parser metrics
	SignaturesProcessed prometheus.Counter
	ParseErrors         prometheus.Counter
	LinksCreated        *prometheus.CounterVec

	// Matching metrics
	LinkTransitions *prometheus.CounterVec
	ScoringDuration prometheus.Histogram
	BatchSize       prometheus.Histogram

	// Notification metrics
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed prometheus.Counter

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	LastFrameAt prometheus.Gauge
	LastBatchAt prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_autolink"
	}

	return &Metrics{
		FramesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_received_total",
			Help:      "Total number of stream frames received by subscription kind",
		}, []string{"kind"}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_dropped_total",
			Help:      "Total number of frames dropped due to full worker queue",
		}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of WebSocket reconnect attempts",
		}),
		StreamConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connected",
			Help:      "Whether the WebSocket connection is currently up",
		}),
		SubscriptionsOpen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscriptions_open",
			Help:      "Number of open subscriptions by kind",
		}, []string{"kind"}),

		SignaturesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "signatures_processed_total",
			Help:      "Total number of signatures resolved into raw events",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "errors_total",
			Help:      "Total number of signature processing errors",
		}),
		LinksCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parser",
			Name:      "links_created_total",
			Help:      "Total number of pending links created by transfer direction",
		}, []string{"direction"}),

		LinkTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "link_transitions_total",
			Help:      "Total number of link status transitions by outcome",
		}, []string{"outcome"}),
		ScoringDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "scoring_duration_seconds",
			Help:      "Time spent scoring one link",
			Buckets:   prometheus.DefBuckets,
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "batch_size",
			Help:      "Number of links processed per batch",
			Buckets:   []float64{0, 1, 5, 10, 25, 50},
		}),

		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total number of notifications delivered by kind",
		}, []string{"kind"}),
		NotificationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failed_total",
			Help:      "Total number of notifications that reached no endpoint",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Ledger RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		LastFrameAt: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_frame_timestamp",
			Help:      "Unix timestamp of the last stream frame received",
		}),
		LastBatchAt: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_batch_timestamp",
			Help:      "Unix timestamp of the last matching batch run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordFrame increments the frame counter for a subscription kind.
func RecordFrame(kind string) {
	DefaultMetrics.FramesReceived.WithLabelValues(kind).Inc()
	DefaultMetrics.LastFrameAt.SetToCurrentTime()
}

// RecordFrameDropped increments the dropped frame counter.
func RecordFrameDropped() {
	DefaultMetrics.FramesDropped.Inc()
}

// RecordReconnect increments the reconnect counter.
func RecordReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// SetConnected records the stream connection state.
func SetConnected(up bool) {
	if up {
		DefaultMetrics.StreamConnected.Set(1)
	} else {
		DefaultMetrics.StreamConnected.Set(0)
	}
}

// RecordLinkCreated increments the created-link counter.
func RecordLinkCreated(direction string) {
	DefaultMetrics.LinksCreated.WithLabelValues(direction).Inc()
}

// RecordTransition increments the transition counter for an outcome.
func RecordTransition(outcome string) {
	DefaultMetrics.LinkTransitions.WithLabelValues(outcome).Inc()
}

// ObserveScoring records the duration of one scoring pass.
func ObserveScoring(d time.Duration) {
	DefaultMetrics.ScoringDuration.Observe(d.Seconds())
}

// RecordNotification records a delivery outcome for a template kind.
func RecordNotification(kind string, sent bool) {
	if sent {
		DefaultMetrics.NotificationsSent.WithLabelValues(kind).Inc()
	} else {
		DefaultMetrics.NotificationsFailed.Inc()
	}
}
