package rules

import (
	"time"

	"loadwatch/internal/model"
)

// Status is decided by the fixed thresholds below. The configured rule
// list only produces alerts; it never changes the status outcome.
var (
	policyOverload = []ThresholdRule{
		{Name: "high_cpu_usage", Metric: model.MetricCPU, Condition: GreaterThan{Threshold: 85}, Coverage: 0.2},
		{Name: "high_memory_usage", Metric: model.MetricMem, Condition: GreaterThan{Threshold: 80}, Coverage: 0.2},
	}
	policyIdle = []ThresholdRule{
		{Name: "low_cpu_usage", Metric: model.MetricCPU, Condition: LessThan{Threshold: 15}, Coverage: 0.8},
		{Name: "low_memory_usage", Metric: model.MetricMem, Condition: LessThan{Threshold: 25}, Coverage: 0.8},
		{Name: "low_network_usage", Metric: model.MetricNet, Condition: LessThan{Threshold: 5}, Coverage: 0.8},
	}
)

type Classifier struct {
	sets []RuleSet
}

func NewClassifier(sets []RuleSet) *Classifier {
	if len(sets) == 0 {
		sets = DefaultRuleSets()
	}
	return &Classifier{sets: sets}
}

func (c *Classifier) Sets() []RuleSet {
	return c.sets
}

// Classify maps the canonical windows of one server to a status and
// emits an alert for every configured rule that triggers. Alert
// timestamps carry the end of the evaluated window, so identical input
// yields identical output.
func (c *Classifier) Classify(server string, windows map[string]model.MetricWindow) (model.ServerStatus, []model.Alert) {
	status := c.status(windows)
	if status == model.StatusUnknown {
		return status, nil
	}
	return status, c.emit(server, windows)
}

func (c *Classifier) status(windows map[string]model.MetricWindow) model.ServerStatus {
	empty := true
	for _, metric := range model.CanonicalMetrics() {
		if w, ok := windows[metric]; ok && !w.Empty() {
			empty = false
			break
		}
	}
	if empty {
		return model.StatusUnknown
	}

	// Overload wins over idle when a window satisfies both.
	for _, rule := range policyOverload {
		if Evaluate(windows[rule.Metric], rule).Triggered {
			return model.StatusOverloaded
		}
	}
	idle := true
	for _, rule := range policyIdle {
		if !Evaluate(windows[rule.Metric], rule).Triggered {
			idle = false
			break
		}
	}
	if idle {
		return model.StatusUnderloaded
	}
	return model.StatusNormal
}

func (c *Classifier) emit(server string, windows map[string]model.MetricWindow) []model.Alert {
	var alerts []model.Alert
	for _, set := range c.sets {
		for _, rule := range set.Rules {
			window := windows[rule.Metric]
			eval := Evaluate(window, rule)
			if !eval.Triggered {
				continue
			}
			alerts = append(alerts, model.Alert{
				Timestamp: windowEnd(window),
				Server:    server,
				RuleName:  rule.Name,
				Metric:    rule.Metric,
				Value:     eval.Representative,
				Severity:  rule.Severity,
				Message:   eval.Message(),
			})
		}
	}
	return alerts
}

func windowEnd(window model.MetricWindow) time.Time {
	if len(window.Samples) == 0 {
		return time.Time{}
	}
	return window.Samples[len(window.Samples)-1].Timestamp
}
