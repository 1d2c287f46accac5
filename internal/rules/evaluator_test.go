package rules

import (
	"math"
	"testing"
	"time"

	"loadwatch/internal/model"
)

func testWindow(values ...float64) model.MetricWindow {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	samples := make([]model.Sample, len(values))
	for i, v := range values {
		samples[i] = model.Sample{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: v}
	}
	return model.MetricWindow{Server: "srv01", Metric: model.MetricCPU, Samples: samples}
}

func TestGreaterThanCoverageBoundary(t *testing.T) {
	rule := ThresholdRule{
		Name:      "high_cpu_usage",
		Metric:    model.MetricCPU,
		Condition: GreaterThan{Threshold: 85},
		Severity:  model.SeverityCritical,
		Coverage:  0.2,
	}
	// exactly 1 of 5 above threshold: fraction 0.2 meets coverage
	eval := Evaluate(testWindow(90, 50, 50, 50, 50), rule)
	if !eval.Triggered {
		t.Fatalf("expected trigger at exact coverage, got %+v", eval)
	}
	if eval.MatchedCount != 1 || eval.TotalCount != 5 {
		t.Fatalf("counts: %d/%d", eval.MatchedCount, eval.TotalCount)
	}
	if eval.Representative != 90 {
		t.Fatalf("representative: %f", eval.Representative)
	}
	// 0 of 5 above
	if Evaluate(testWindow(50, 50, 50, 50, 50), rule).Triggered {
		t.Fatalf("unexpected trigger below coverage")
	}
}

func TestLessThan(t *testing.T) {
	rule := ThresholdRule{
		Name:      "low_cpu_usage",
		Metric:    model.MetricCPU,
		Condition: LessThan{Threshold: 15},
		Severity:  model.SeverityWarning,
		Coverage:  0.8,
	}
	eval := Evaluate(testWindow(10, 12, 8, 14, 40), rule)
	if !eval.Triggered {
		t.Fatalf("expected trigger: %+v", eval)
	}
	if Evaluate(testWindow(10, 12, 40, 40, 40), rule).Triggered {
		t.Fatalf("unexpected trigger at 40%% coverage")
	}
}

func TestInRangeInfoRequiresFullWindow(t *testing.T) {
	rule := ThresholdRule{
		Name:      "normal_cpu_range",
		Metric:    model.MetricCPU,
		Condition: InRange{Low: 15, High: 85},
		Severity:  model.SeverityInfo,
		Coverage:  0.5,
	}
	if !Evaluate(testWindow(20, 50, 85, 15), rule).Triggered {
		t.Fatalf("expected trigger with all samples inside range")
	}
	// 3 of 4 inside satisfies coverage 0.5, but info demands 100%
	if Evaluate(testWindow(20, 50, 85, 90), rule).Triggered {
		t.Fatalf("info rule must not trigger below full coverage")
	}
}

func TestInRangeWarningUsesCoverage(t *testing.T) {
	rule := ThresholdRule{
		Name:      "mid_band",
		Metric:    model.MetricCPU,
		Condition: InRange{Low: 40, High: 60},
		Severity:  model.SeverityWarning,
		Coverage:  0.5,
	}
	if !Evaluate(testWindow(50, 55, 90, 10), rule).Triggered {
		t.Fatalf("expected trigger at half coverage")
	}
}

func TestPercentileGreaterThan(t *testing.T) {
	rule := ThresholdRule{
		Name:      "cpu_ready_top",
		Metric:    model.MetricCPU,
		Condition: PercentileGreaterThan{Threshold: 9, Percentile: 80},
		Severity:  model.SeverityWarning,
	}
	eval := Evaluate(testWindow(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), rule)
	if !eval.Triggered {
		t.Fatalf("expected top slice mean above threshold: %+v", eval)
	}
	rule.Condition = PercentileGreaterThan{Threshold: 10, Percentile: 80}
	if Evaluate(testWindow(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), rule).Triggered {
		t.Fatalf("unexpected trigger with threshold above top mean")
	}
}

func TestEmptyWindowNeverTriggers(t *testing.T) {
	rule := ThresholdRule{
		Name:      "high_cpu_usage",
		Metric:    model.MetricCPU,
		Condition: GreaterThan{Threshold: 85},
		Coverage:  0.2,
	}
	eval := Evaluate(model.MetricWindow{}, rule)
	if eval.Triggered || eval.TotalCount != 0 || eval.MatchedFraction != 0 {
		t.Fatalf("empty window: %+v", eval)
	}
}

func TestAbsentValuesExcluded(t *testing.T) {
	rule := ThresholdRule{
		Name:      "high_cpu_usage",
		Metric:    model.MetricCPU,
		Condition: GreaterThan{Threshold: 85},
		Coverage:  0.5,
	}
	eval := Evaluate(testWindow(90, math.NaN(), 90, math.NaN()), rule)
	if eval.TotalCount != 2 {
		t.Fatalf("expected NaN samples excluded, total %d", eval.TotalCount)
	}
	if !eval.Triggered {
		t.Fatalf("expected trigger on the remaining samples")
	}
}
