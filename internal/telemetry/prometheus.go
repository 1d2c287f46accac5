package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"loadwatch/internal/model"
)

var (
	SamplesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "samples_received_total",
			Help: "Total number of samples accepted from ingest sources",
		},
		[]string{"source"},
	)

	SamplesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "samples_rejected_total",
			Help: "Total number of samples rejected before entering a window",
		},
		[]string{"reason"},
	)

	SamplesClamped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "samples_clamped_total",
			Help: "Total number of sample values clamped into the 0-100 range",
		},
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_detected_total",
			Help: "Total number of anomaly records produced",
		},
		[]string{"type", "server"},
	)

	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_emitted_total",
			Help: "Total number of alerts admitted after filtering",
		},
		[]string{"severity"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_suppressed_total",
			Help: "Total number of alerts dropped by mute, dedupe or cooldown",
		},
		[]string{"reason"},
	)

	ServerStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "server_status",
			Help: "Current server status (0=unknown 1=normal 2=underloaded 3=overloaded)",
		},
		[]string{"server"},
	)

	WindowSamples = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "window_samples",
			Help: "Samples currently held in a server metric window",
		},
		[]string{"server", "metric"},
	)

	ActiveServers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_servers",
			Help: "Number of servers with live window state",
		},
	)

	ClassificationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "classification_latency_seconds",
			Help:    "Status classification latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	DetectionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detection_latency_seconds",
			Help:    "Batch anomaly detection latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of storage writes",
		},
		[]string{"operation", "status"},
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "status"},
	)

	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_published_total",
			Help: "Total number of events published to the bus",
		},
		[]string{"subject", "status"},
	)
)

func StatusCode(status model.ServerStatus) float64 {
	switch status {
	case model.StatusNormal:
		return 1
	case model.StatusUnderloaded:
		return 2
	case model.StatusOverloaded:
		return 3
	default:
		return 0
	}
}
