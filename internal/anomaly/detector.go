package anomaly

import (
	"errors"
	"fmt"
	"math"
	"time"

	"loadwatch/internal/model"
	"loadwatch/internal/stats"
)

// ErrLengthMismatch rejects a batch call outright: no partial output is
// ever produced from misaligned series.
var ErrLengthMismatch = errors.New("actual, predicted and timestamps must have equal length")

const (
	trailingWindow     = 10
	minTrailingSamples = 3
	minHistory         = 10
	relErrThreshold    = 30.0
	relErrHigh         = 50.0
	rateHigh           = 30.0
)

type Detector struct {
	table Table
}

func NewDetector(table Table) *Detector {
	return &Detector{table: table}
}

func (d *Detector) Table() Table {
	return d.table
}

// Detect runs the four checks over an aligned batch. Per index the
// order is fixed: a critical level hit suppresses the remaining checks
// for that index, while z-score, prediction error and rate of change
// are independent and may all fire together.
func (d *Detector) Detect(metric string, actual, predicted []float64, timestamps []time.Time) ([]model.AnomalyRecord, error) {
	if len(actual) != len(predicted) || len(actual) != len(timestamps) {
		return nil, ErrLengthMismatch
	}
	profile, _ := d.table.Resolve(metric)

	var records []model.AnomalyRecord
	for i := range actual {
		if actual[i] >= profile.CriticalLevel {
			records = append(records, model.AnomalyRecord{
				Timestamp: timestamps[i],
				Metric:    metric,
				Actual:    actual[i],
				Predicted: predicted[i],
				Type:      model.AnomalyCriticalLevel,
				Severity:  model.AnomalyCritical,
				Score:     1.0,
				Message:   fmt.Sprintf("Critical %s level: %.1f%%", metric, actual[i]),
			})
			continue
		}

		if i > 0 {
			start := i - trailingWindow
			if start < 0 {
				start = 0
			}
			window := actual[start:i]
			if len(window) >= minTrailingSamples {
				if rec, ok := zScoreCheck(profile, metric, actual[i], predicted[i], window, timestamps[i]); ok {
					records = append(records, rec)
				}
			}
		}

		if rec, ok := predictionCheck(metric, actual[i], predicted[i], timestamps[i]); ok {
			records = append(records, rec)
		}

		if i > 0 {
			delta := math.Abs(actual[i] - actual[i-1])
			if delta > profile.RateOfChangeThreshold {
				severity := model.AnomalyMedium
				if delta > rateHigh {
					severity = model.AnomalyHigh
				}
				records = append(records, model.AnomalyRecord{
					Timestamp: timestamps[i],
					Metric:    metric,
					Actual:    actual[i],
					Predicted: predicted[i],
					Type:      model.AnomalyRateOfChange,
					Severity:  severity,
					Score:     math.Min(delta/50, 1.0),
					Message:   fmt.Sprintf("Rapid change: %.1f%% within one interval", delta),
				})
			}
		}
	}
	return records, nil
}

// DetectOne checks a single reading against its recorded history. The
// baseline is the whole history, not a trailing window, and the first
// matching check wins: at most one record comes back.
func (d *Detector) DetectOne(metric string, current float64, history []float64, predicted *float64, at time.Time) (model.AnomalyRecord, bool) {
	if len(history) < minHistory {
		return model.AnomalyRecord{}, false
	}
	profile, _ := d.table.Resolve(metric)

	predictedValue := 0.0
	if predicted != nil {
		predictedValue = *predicted
	}

	if current >= profile.CriticalLevel {
		return model.AnomalyRecord{
			Timestamp: at,
			Metric:    metric,
			Actual:    current,
			Predicted: predictedValue,
			Type:      model.AnomalyCriticalLevel,
			Severity:  model.AnomalyCritical,
			Score:     1.0,
			Message:   fmt.Sprintf("Critical %s level: %.1f%%", metric, current),
		}, true
	}

	if rec, ok := zScoreCheck(profile, metric, current, predictedValue, history, at); ok {
		return rec, true
	}

	if predicted != nil {
		if rec, ok := predictionCheck(metric, current, predictedValue, at); ok {
			return rec, true
		}
	}
	return model.AnomalyRecord{}, false
}

func zScoreCheck(profile Profile, metric string, current, predicted float64, baseline []float64, at time.Time) (model.AnomalyRecord, bool) {
	std := stats.StdDev(baseline, true)
	if std <= 0 {
		return model.AnomalyRecord{}, false
	}
	z := math.Abs(current-stats.Mean(baseline)) / std
	if z <= profile.ZScoreThreshold {
		return model.AnomalyRecord{}, false
	}
	return model.AnomalyRecord{
		Timestamp: at,
		Metric:    metric,
		Actual:    current,
		Predicted: predicted,
		Type:      model.AnomalyZScore,
		Severity:  zSeverity(z),
		Score:     math.Min(z/5, 1.0),
		Message:   fmt.Sprintf("Statistical anomaly: z-score=%.2f", z),
	}, true
}

func predictionCheck(metric string, actual, predicted float64, at time.Time) (model.AnomalyRecord, bool) {
	if predicted <= 0 {
		return model.AnomalyRecord{}, false
	}
	relErr := math.Abs(actual-predicted) / predicted * 100
	if relErr <= relErrThreshold {
		return model.AnomalyRecord{}, false
	}
	severity := model.AnomalyMedium
	if relErr > relErrHigh {
		severity = model.AnomalyHigh
	}
	return model.AnomalyRecord{
		Timestamp: at,
		Metric:    metric,
		Actual:    actual,
		Predicted: predicted,
		Type:      model.AnomalyPredictionError,
		Severity:  severity,
		Score:     math.Min(relErr/100, 1.0),
		Message:   fmt.Sprintf("Prediction error: %.1f%%", relErr),
	}, true
}

func zSeverity(z float64) model.AnomalySeverity {
	switch {
	case z >= 4:
		return model.AnomalyCritical
	case z >= 3:
		return model.AnomalyHigh
	case z >= 2:
		return model.AnomalyMedium
	default:
		return model.AnomalyLow
	}
}
