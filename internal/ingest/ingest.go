package ingest

import (
	"context"
	"log/slog"
	"time"

	"loadwatch/internal/model"
	"loadwatch/internal/telemetry"
)

// SendNonBlocking delivers one observation to the engine channel,
// dropping it with a warning when the channel is full.
func SendNonBlocking(ctx context.Context, out chan<- model.Observation, obs model.Observation, logger *slog.Logger) bool {
	select {
	case out <- obs:
		return true
	case <-ctx.Done():
		return false
	default:
		telemetry.SamplesRejected.WithLabelValues("channel_full").Inc()
		if logger != nil {
			logger.Warn("sample channel full, dropping sample",
				"server", obs.Server,
				"metric", obs.Metric,
			)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
