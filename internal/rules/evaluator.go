package rules

import (
	"fmt"

	"loadwatch/internal/model"
	"loadwatch/internal/stats"
)

type Evaluation struct {
	Rule            ThresholdRule
	MatchedCount    int
	TotalCount      int
	MatchedFraction float64
	Representative  float64
	Triggered       bool
}

// Evaluate applies one rule to one window. A missing metric or an empty
// window yields an untriggered evaluation, never an error. Samples
// without a finite value are excluded from both counts.
func Evaluate(window model.MetricWindow, rule ThresholdRule) Evaluation {
	eval := Evaluation{Rule: rule}
	values := stats.Finite(windowValues(window))
	eval.TotalCount = len(values)
	if eval.TotalCount == 0 {
		return eval
	}

	switch c := rule.Condition.(type) {
	case GreaterThan:
		matched := filterValues(values, func(v float64) bool { return v > c.Threshold })
		eval.MatchedCount = len(matched)
		eval.MatchedFraction = fraction(len(matched), eval.TotalCount)
		eval.Representative = stats.Mean(matched)
		eval.Triggered = eval.MatchedFraction >= rule.Coverage
	case LessThan:
		matched := filterValues(values, func(v float64) bool { return v < c.Threshold })
		eval.MatchedCount = len(matched)
		eval.MatchedFraction = fraction(len(matched), eval.TotalCount)
		eval.Representative = stats.Mean(matched)
		eval.Triggered = eval.MatchedFraction >= rule.Coverage
	case InRange:
		matched := filterValues(values, func(v float64) bool { return v >= c.Low && v <= c.High })
		eval.MatchedCount = len(matched)
		eval.MatchedFraction = fraction(len(matched), eval.TotalCount)
		eval.Representative = stats.Mean(values)
		if rule.Severity == model.SeverityInfo {
			// Info range rules demand the whole window, whatever the
			// configured coverage says.
			eval.Triggered = eval.MatchedCount == eval.TotalCount
		} else {
			eval.Triggered = eval.MatchedFraction >= rule.Coverage
		}
	case PercentileGreaterThan:
		cut := stats.Percentile(values, c.Percentile)
		top := filterValues(values, func(v float64) bool { return v >= cut })
		eval.MatchedCount = len(top)
		eval.MatchedFraction = fraction(len(top), eval.TotalCount)
		eval.Representative = stats.Mean(top)
		eval.Triggered = len(top) > 0 && stats.Mean(top) > c.Threshold
	}
	return eval
}

// Message renders the alert text for a triggered evaluation.
func (e Evaluation) Message() string {
	desc := e.Rule.Description
	if desc == "" {
		desc = e.Rule.Name
	}
	switch c := e.Rule.Condition.(type) {
	case GreaterThan:
		return fmt.Sprintf("%s: %.1f%% (threshold: %g%%)", desc, e.Representative, c.Threshold)
	case LessThan:
		return fmt.Sprintf("%s: %.1f%% (threshold: %g%%)", desc, e.Representative, c.Threshold)
	case InRange:
		return fmt.Sprintf("%s: %.1f%% (range: %g-%g%%)", desc, e.Representative, c.Low, c.High)
	case PercentileGreaterThan:
		return fmt.Sprintf("%s: %.1f%% (threshold: %g%% at p%g)", desc, e.Representative, c.Threshold, c.Percentile)
	}
	return desc
}

func windowValues(window model.MetricWindow) []float64 {
	values := make([]float64, 0, len(window.Samples))
	for _, s := range window.Samples {
		values = append(values, s.Value)
	}
	return values
}

func filterValues(values []float64, keep func(float64) bool) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func fraction(matched, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}
