package model

import "time"

type ServerStatus string

const (
	StatusOverloaded  ServerStatus = "overloaded"
	StatusUnderloaded ServerStatus = "underloaded"
	StatusNormal      ServerStatus = "normal"
	StatusUnknown     ServerStatus = "unknown"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

type AnomalyType string

const (
	AnomalyCriticalLevel   AnomalyType = "critical_level"
	AnomalyZScore          AnomalyType = "z_score"
	AnomalyPredictionError AnomalyType = "prediction_error"
	AnomalyRateOfChange    AnomalyType = "rate_of_change"
)

type AnomalySeverity string

const (
	AnomalyLow      AnomalySeverity = "low"
	AnomalyMedium   AnomalySeverity = "medium"
	AnomalyHigh     AnomalySeverity = "high"
	AnomalyCritical AnomalySeverity = "critical"
)

// Canonical metric names consulted by the status policy.
const (
	MetricCPU = "cpu.usage.average"
	MetricMem = "mem.usage.average"
	MetricNet = "net.usage.average"
)

func CanonicalMetrics() []string {
	return []string{MetricCPU, MetricMem, MetricNet}
}

type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type MetricWindow struct {
	Server  string   `json:"server"`
	Metric  string   `json:"metric"`
	Samples []Sample `json:"samples"`
}

func (w MetricWindow) Empty() bool {
	return len(w.Samples) == 0
}

type Alert struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Server    string    `json:"server"`
	RuleName  string    `json:"rule_name"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
}

type AnomalyRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	Metric    string          `json:"metric"`
	Actual    float64         `json:"actual"`
	Predicted float64         `json:"predicted"`
	Type      AnomalyType     `json:"anomaly_type"`
	Severity  AnomalySeverity `json:"severity"`
	Score     float64         `json:"anomaly_score"`
	Message   string          `json:"message"`
}

type StoredAnomaly struct {
	ID     string        `json:"id"`
	Server string        `json:"server"`
	Record AnomalyRecord `json:"record"`
}

type MetricSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
	P95    float64 `json:"p95"`
	Last   float64 `json:"last"`
}

type StatusReport struct {
	Server      string                   `json:"server"`
	Status      ServerStatus             `json:"status"`
	CheckedAt   time.Time                `json:"checked_at"`
	WindowFrom  time.Time                `json:"window_from"`
	WindowTo    time.Time                `json:"window_to"`
	SampleCount int                      `json:"sample_count"`
	AlertCount  int                      `json:"alert_count"`
	Summaries   map[string]MetricSummary `json:"summaries,omitempty"`
}

// RawSample is the wire shape accepted by the ingest sources before
// normalization. Timestamp stays a string until the normalizer parses
// it; Unit marks values that need conversion (currently "kbps").
type RawSample struct {
	Server    string  `json:"server"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp,omitempty"`
	Unit      string  `json:"unit,omitempty"`
}

// Observation is a normalized sample attributed to one server metric.
type Observation struct {
	Server string
	Metric string
	Sample Sample
	Source string
}

type ForecastRequest struct {
	Server     string      `json:"server"`
	Metric     string      `json:"metric"`
	Timestamps []time.Time `json:"timestamps"`
	Predicted  []float64   `json:"predicted"`
}
