package engine

import (
	"time"

	"loadwatch/internal/model"
)

// Window holds the live samples for one (server, metric) pair. Samples
// arrive in timestamp order; anything at or before the newest sample is
// rejected, so the window stays strictly ascending with no duplicates.
type Window struct {
	maxSamples int
	maxAge     time.Duration
	samples    []model.Sample
	head       int
}

func NewWindow(maxSamples int, maxAge time.Duration) *Window {
	if maxSamples <= 0 {
		maxSamples = 360
	}
	return &Window{
		maxSamples: maxSamples,
		maxAge:     maxAge,
		samples:    make([]model.Sample, 0, 128),
	}
}

// Append adds one sample. It reports false when the sample would break
// the ascending-timestamp invariant.
func (w *Window) Append(s model.Sample) bool {
	if w.Len() > 0 {
		last := w.samples[len(w.samples)-1].Timestamp
		if !s.Timestamp.After(last) {
			return false
		}
	}
	w.samples = append(w.samples, s)
	w.evict(s.Timestamp)
	return true
}

func (w *Window) evict(newest time.Time) {
	if w.maxAge > 0 {
		cutoff := newest.Add(-w.maxAge)
		for w.head < len(w.samples) && w.samples[w.head].Timestamp.Before(cutoff) {
			w.head++
		}
	}
	for w.Len() > w.maxSamples {
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.samples) {
		w.samples = append([]model.Sample{}, w.samples[w.head:]...)
		w.head = 0
	}
}

func (w *Window) Len() int {
	return len(w.samples) - w.head
}

// Values returns the sample values in window order.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, w.Len())
	for _, s := range w.samples[w.head:] {
		out = append(out, s.Value)
	}
	return out
}

// Snapshot copies the live samples into a MetricWindow for the core.
func (w *Window) Snapshot(server, metric string) model.MetricWindow {
	samples := make([]model.Sample, w.Len())
	copy(samples, w.samples[w.head:])
	return model.MetricWindow{Server: server, Metric: metric, Samples: samples}
}

func (w *Window) Bounds() (time.Time, time.Time) {
	if w.Len() == 0 {
		return time.Time{}, time.Time{}
	}
	return w.samples[w.head].Timestamp, w.samples[len(w.samples)-1].Timestamp
}

// Resize applies new limits without dropping state beyond what the new
// limits themselves evict.
func (w *Window) Resize(maxSamples int, maxAge time.Duration) {
	if maxSamples > 0 {
		w.maxSamples = maxSamples
	}
	w.maxAge = maxAge
	if w.Len() > 0 {
		_, newest := w.Bounds()
		w.evict(newest)
	}
}
