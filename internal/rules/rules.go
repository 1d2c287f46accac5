package rules

import "loadwatch/internal/model"

// Condition is a closed set: GreaterThan, LessThan, InRange,
// PercentileGreaterThan. Evaluate matches it exhaustively.
type Condition interface {
	isCondition()
}

type GreaterThan struct {
	Threshold float64
}

type LessThan struct {
	Threshold float64
}

type InRange struct {
	Low  float64
	High float64
}

type PercentileGreaterThan struct {
	Threshold  float64
	Percentile float64
}

func (GreaterThan) isCondition()           {}
func (LessThan) isCondition()              {}
func (InRange) isCondition()               {}
func (PercentileGreaterThan) isCondition() {}

type ThresholdRule struct {
	Name        string
	Metric      string
	Condition   Condition
	Severity    model.Severity
	Coverage    float64
	Description string
}

type RuleSet struct {
	Name  string
	Rules []ThresholdRule
}

const (
	SetOverload = "overload"
	SetIdle     = "idle"
	SetNormal   = "normal_range"
)

// DefaultRuleSets returns the built-in rules used when the deployment
// configures none.
func DefaultRuleSets() []RuleSet {
	return []RuleSet{
		{
			Name: SetOverload,
			Rules: []ThresholdRule{
				{
					Name:        "high_cpu_usage",
					Metric:      model.MetricCPU,
					Condition:   GreaterThan{Threshold: 85},
					Severity:    model.SeverityCritical,
					Coverage:    0.2,
					Description: "High CPU usage",
				},
				{
					Name:        "high_memory_usage",
					Metric:      model.MetricMem,
					Condition:   GreaterThan{Threshold: 80},
					Severity:    model.SeverityCritical,
					Coverage:    0.2,
					Description: "High memory usage",
				},
			},
		},
		{
			Name: SetIdle,
			Rules: []ThresholdRule{
				{
					Name:        "low_cpu_usage",
					Metric:      model.MetricCPU,
					Condition:   LessThan{Threshold: 15},
					Severity:    model.SeverityWarning,
					Coverage:    0.8,
					Description: "Low CPU usage",
				},
				{
					Name:        "low_memory_usage",
					Metric:      model.MetricMem,
					Condition:   LessThan{Threshold: 25},
					Severity:    model.SeverityWarning,
					Coverage:    0.8,
					Description: "Low memory usage",
				},
				{
					Name:        "low_network_usage",
					Metric:      model.MetricNet,
					Condition:   LessThan{Threshold: 5},
					Severity:    model.SeverityWarning,
					Coverage:    0.8,
					Description: "Low network usage",
				},
			},
		},
		{
			Name: SetNormal,
			Rules: []ThresholdRule{
				{
					Name:        "normal_cpu_range",
					Metric:      model.MetricCPU,
					Condition:   InRange{Low: 15, High: 85},
					Severity:    model.SeverityInfo,
					Coverage:    1.0,
					Description: "CPU within normal range",
				},
				{
					Name:        "normal_memory_range",
					Metric:      model.MetricMem,
					Condition:   InRange{Low: 25, High: 85},
					Severity:    model.SeverityInfo,
					Coverage:    1.0,
					Description: "Memory within normal range",
				},
				{
					Name:        "normal_network_range",
					Metric:      model.MetricNet,
					Condition:   InRange{Low: 6, High: 85},
					Severity:    model.SeverityInfo,
					Coverage:    1.0,
					Description: "Network within normal range",
				},
			},
		},
	}
}
