package anomaly

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"loadwatch/internal/model"
)

func timeline(n int) []time.Time {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.Add(time.Duration(i) * 30 * time.Minute)
	}
	return out
}

func TestDetectCriticalLevelSingleRecord(t *testing.T) {
	d := NewDetector(DefaultTable())
	records, err := d.Detect(model.MetricCPU, []float64{90}, []float64{60}, timeline(1))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	rec := records[0]
	if rec.Type != model.AnomalyCriticalLevel || rec.Severity != model.AnomalyCritical || rec.Score != 1.0 {
		t.Fatalf("record: %+v", rec)
	}
}

func TestDetectLengthMismatch(t *testing.T) {
	d := NewDetector(DefaultTable())
	records, err := d.Detect(model.MetricCPU, []float64{1, 2}, []float64{1}, timeline(2))
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no partial output, got %d records", len(records))
	}
}

func TestDetectZScoreAndRateOfChange(t *testing.T) {
	d := NewDetector(DefaultTable())
	// stable alternating baseline, then a jump that stays under the
	// cpu critical level of 80
	actual := []float64{49, 51, 49, 51, 49, 51, 49, 51, 49, 51, 75}
	predicted := make([]float64, len(actual))
	copy(predicted, actual)
	records, err := d.Detect(model.MetricCPU, actual, predicted, timeline(len(actual)))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !hasType(records, model.AnomalyZScore) {
		t.Fatalf("expected z-score record, got %v", typesOf(records))
	}
	if !hasType(records, model.AnomalyRateOfChange) {
		t.Fatalf("expected rate-of-change record, got %v", typesOf(records))
	}
	if hasType(records, model.AnomalyCriticalLevel) {
		t.Fatalf("no critical record expected below the critical level")
	}
}

func TestDetectPredictionError(t *testing.T) {
	d := NewDetector(DefaultTable())
	records, err := d.Detect(model.MetricCPU, []float64{70}, []float64{40}, timeline(1))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(records) != 1 || records[0].Type != model.AnomalyPredictionError {
		t.Fatalf("records: %v", typesOf(records))
	}
	// 75% relative error: high severity, score 0.75
	if records[0].Severity != model.AnomalyHigh {
		t.Fatalf("severity: %s", records[0].Severity)
	}
	if records[0].Score < 0.74 || records[0].Score > 0.76 {
		t.Fatalf("score: %f", records[0].Score)
	}
}

func TestDetectSkipsChecksOnNonPositivePrediction(t *testing.T) {
	d := NewDetector(DefaultTable())
	records, err := d.Detect(model.MetricCPU, []float64{70}, []float64{0}, timeline(1))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("zero prediction must disable the check, got %v", typesOf(records))
	}
}

func TestDetectShortCircuitOnCritical(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	d := NewDetector(DefaultTable())
	for trial := 0; trial < 50; trial++ {
		n := 5 + rng.Intn(30)
		actual := make([]float64, n)
		predicted := make([]float64, n)
		for i := range actual {
			actual[i] = rng.Float64() * 120
			predicted[i] = rng.Float64() * 120
		}
		ts := timeline(n)
		records, err := d.Detect(model.MetricCPU, actual, predicted, ts)
		if err != nil {
			t.Fatalf("detect: %v", err)
		}
		critical := make(map[time.Time]bool)
		for _, rec := range records {
			if rec.Type == model.AnomalyCriticalLevel {
				critical[rec.Timestamp] = true
			}
		}
		for _, rec := range records {
			if rec.Type != model.AnomalyCriticalLevel && critical[rec.Timestamp] {
				t.Fatalf("check %s not suppressed at %v", rec.Type, rec.Timestamp)
			}
		}
	}
}

func TestScoresAlwaysInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	d := NewDetector(DefaultTable())
	for trial := 0; trial < 100; trial++ {
		n := 1 + rng.Intn(40)
		actual := make([]float64, n)
		predicted := make([]float64, n)
		for i := range actual {
			actual[i] = rng.Float64() * 200
			predicted[i] = rng.Float64()*200 - 20
		}
		records, err := d.Detect(model.MetricCPU, actual, predicted, timeline(n))
		if err != nil {
			t.Fatalf("detect: %v", err)
		}
		for _, rec := range records {
			if rec.Score < 0 || rec.Score > 1 {
				t.Fatalf("score %f outside [0,1] for %s", rec.Score, rec.Type)
			}
		}

		history := make([]float64, 10+rng.Intn(20))
		for i := range history {
			history[i] = rng.Float64() * 100
		}
		if rec, ok := d.DetectOne(model.MetricMem, rng.Float64()*200, history, nil, time.Now()); ok {
			if rec.Score < 0 || rec.Score > 1 {
				t.Fatalf("realtime score %f outside [0,1]", rec.Score)
			}
		}
	}
}

func TestDetectOneNeedsBaseline(t *testing.T) {
	d := NewDetector(DefaultTable())
	history := []float64{50, 50, 50, 50, 50, 50, 50, 50, 50} // 9 points
	if _, ok := d.DetectOne(model.MetricCPU, 999, history, nil, time.Now()); ok {
		t.Fatalf("expected no record with short history")
	}
}

func TestDetectOneFirstMatchWins(t *testing.T) {
	d := NewDetector(DefaultTable())
	history := []float64{49, 51, 49, 51, 49, 51, 49, 51, 49, 51, 49, 51}
	// critical beats z-score
	rec, ok := d.DetectOne(model.MetricCPU, 90, history, nil, time.Now())
	if !ok || rec.Type != model.AnomalyCriticalLevel {
		t.Fatalf("expected critical record, got %+v ok=%v", rec, ok)
	}
	// below critical: whole-history z-score fires
	rec, ok = d.DetectOne(model.MetricCPU, 75, history, nil, time.Now())
	if !ok || rec.Type != model.AnomalyZScore {
		t.Fatalf("expected z-score record, got %+v ok=%v", rec, ok)
	}
}

func TestDetectOnePredictionFallback(t *testing.T) {
	d := NewDetector(DefaultTable())
	// flat history disables the z-score check (zero deviation)
	history := make([]float64, 12)
	for i := range history {
		history[i] = 50
	}
	predicted := 40.0
	rec, ok := d.DetectOne(model.MetricCPU, 70, history, &predicted, time.Now())
	if !ok || rec.Type != model.AnomalyPredictionError {
		t.Fatalf("expected prediction error record, got %+v ok=%v", rec, ok)
	}
	if _, ok := d.DetectOne(model.MetricCPU, 70, history, nil, time.Now()); ok {
		t.Fatalf("no record expected without a prediction")
	}
}

func TestDetectIdempotent(t *testing.T) {
	d := NewDetector(DefaultTable())
	actual := []float64{49, 51, 49, 51, 49, 51, 49, 51, 49, 51, 75, 90}
	predicted := []float64{50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 50}
	ts := timeline(len(actual))
	r1, err1 := d.Detect(model.MetricCPU, actual, predicted, ts)
	r2, err2 := d.Detect(model.MetricCPU, actual, predicted, ts)
	if err1 != nil || err2 != nil {
		t.Fatalf("detect: %v %v", err1, err2)
	}
	if !reflect.DeepEqual(r1, r2) {
		t.Fatalf("detection not idempotent")
	}
}

func TestProfileFallback(t *testing.T) {
	table := DefaultTable()
	profile, exact := table.Resolve("disk.latency.p99")
	if exact {
		t.Fatalf("expected fallback for unknown metric")
	}
	cpu, _ := table.Resolve(model.MetricCPU)
	if profile != cpu {
		t.Fatalf("fallback must be the cpu profile: %+v", profile)
	}

	custom := NewTable(map[string]Profile{
		model.MetricMem: {ZScoreThreshold: 2, RateOfChangeThreshold: 10, CriticalLevel: 95},
	}, model.MetricMem)
	got, exact := custom.Resolve("whatever")
	if exact || got.CriticalLevel != 95 {
		t.Fatalf("configured fallback not honored: %+v", got)
	}
}

func hasType(records []model.AnomalyRecord, typ model.AnomalyType) bool {
	for _, rec := range records {
		if rec.Type == typ {
			return true
		}
	}
	return false
}

func typesOf(records []model.AnomalyRecord) []model.AnomalyType {
	out := make([]model.AnomalyType, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Type)
	}
	return out
}
