package engine

import (
	"testing"
	"time"

	"loadwatch/internal/alerts"
	"loadwatch/internal/anomaly"
	"loadwatch/internal/config"
	"loadwatch/internal/model"
	"loadwatch/internal/status"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Alerting.Cooldown = 0
	cfg.Alerting.DedupeWindow = 0
	return cfg
}

type testEngine struct {
	eng       *Engine
	status    *status.Store
	alerts    *alerts.Store
	anomalies *anomaly.Store
}

func newEngineForTest(cfg *config.Config) *testEngine {
	statusStore := status.NewStore(100)
	alertsStore := alerts.NewStore(100)
	anomalyStore := anomaly.NewStore(100)
	return &testEngine{
		eng:       NewEngine(cfg, nil, statusStore, alertsStore, anomalyStore, nil, nil, nil),
		status:    statusStore,
		alerts:    alertsStore,
		anomalies: anomalyStore,
	}
}

func feed(eng *Engine, server, metric string, values []float64) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, v := range values {
		eng.Observe(model.Observation{
			Server: server,
			Metric: metric,
			Sample: model.Sample{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: v},
			Source: "test",
		})
	}
}

func repeat(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestObserveRejectsOutOfOrderSamples(t *testing.T) {
	te := newEngineForTest(testConfig())
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	obs := model.Observation{
		Server: "srv01",
		Metric: model.MetricCPU,
		Sample: model.Sample{Timestamp: base, Value: 50},
	}
	te.eng.Observe(obs)
	te.eng.Observe(obs) // duplicate timestamp
	obs.Sample.Timestamp = base.Add(-time.Minute)
	te.eng.Observe(obs) // out of order

	report, _, ok := te.eng.ClassifyServer("srv01")
	if !ok {
		t.Fatalf("expected window state for srv01")
	}
	if report.SampleCount != 1 {
		t.Fatalf("expected one accepted sample, got %d", report.SampleCount)
	}
}

func TestClassifyServerOverloaded(t *testing.T) {
	te := newEngineForTest(testConfig())
	feed(te.eng, "srv01", model.MetricCPU, repeat(95, 10))
	feed(te.eng, "srv01", model.MetricMem, repeat(50, 10))
	feed(te.eng, "srv01", model.MetricNet, repeat(50, 10))

	report, admitted, ok := te.eng.ClassifyServer("srv01")
	if !ok {
		t.Fatalf("expected classification")
	}
	if report.Status != model.StatusOverloaded {
		t.Fatalf("status: %s", report.Status)
	}
	var found bool
	for _, a := range admitted {
		if a.RuleName == "high_cpu_usage" {
			found = true
			if a.ID == "" {
				t.Fatalf("admitted alert missing id")
			}
		}
	}
	if !found {
		t.Fatalf("expected admitted high_cpu_usage alert")
	}
	if summary, ok := report.Summaries[model.MetricCPU]; !ok || summary.Mean != 95 {
		t.Fatalf("cpu summary: %+v", summary)
	}
	if got, ok := te.status.Get("srv01"); !ok || got.Status != model.StatusOverloaded {
		t.Fatalf("status store not updated: %+v", got)
	}
}

func TestClassifyUnknownServer(t *testing.T) {
	te := newEngineForTest(testConfig())
	if _, _, ok := te.eng.ClassifyServer("missing"); ok {
		t.Fatalf("expected no classification for unknown server")
	}
}

func TestMuteSuppressesAndRestores(t *testing.T) {
	te := newEngineForTest(testConfig())
	feed(te.eng, "srv01", model.MetricCPU, repeat(95, 10))

	te.eng.Mute("srv01")
	_, admitted, _ := te.eng.ClassifyServer("srv01")
	if len(admitted) != 0 {
		t.Fatalf("muted server produced %d alerts", len(admitted))
	}

	te.eng.Unmute("srv01")
	_, admitted, _ = te.eng.ClassifyServer("srv01")
	if len(admitted) == 0 {
		t.Fatalf("expected alerts after unmute")
	}
}

func TestDedupeDropsRepeatedAlert(t *testing.T) {
	cfg := testConfig()
	cfg.Alerting.DedupeWindow = time.Hour
	te := newEngineForTest(cfg)
	feed(te.eng, "srv01", model.MetricCPU, repeat(95, 10))

	_, first, _ := te.eng.ClassifyServer("srv01")
	if len(first) == 0 {
		t.Fatalf("expected initial alerts")
	}
	_, second, _ := te.eng.ClassifyServer("srv01")
	if len(second) != 0 {
		t.Fatalf("expected dedupe to drop repeats, got %d", len(second))
	}
}

func TestRealtimeAnomalyOnCriticalSample(t *testing.T) {
	te := newEngineForTest(testConfig())
	// 10 quiet samples build the baseline, the 11th crosses the cpu
	// critical level
	values := append(repeat(50, 10), 95)
	feed(te.eng, "srv01", model.MetricCPU, values)

	entries := te.anomalies.ByServer("srv01", 0)
	if len(entries) == 0 {
		t.Fatalf("expected anomaly records")
	}
	last := entries[len(entries)-1]
	if last.Record.Type != model.AnomalyCriticalLevel {
		t.Fatalf("type: %s", last.Record.Type)
	}
	if last.ID == "" {
		t.Fatalf("stored anomaly missing id")
	}
}

func TestRunForecastAlignsByTimestamp(t *testing.T) {
	te := newEngineForTest(testConfig())
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	feed(te.eng, "srv01", model.MetricCPU, []float64{50, 50, 70})

	req := model.ForecastRequest{
		Server: "srv01",
		Metric: model.MetricCPU,
		// only the third window sample matches a forecast timestamp
		Timestamps: []time.Time{base.Add(2 * time.Minute), base.Add(time.Hour)},
		Predicted:  []float64{40, 40},
	}
	records, err := te.eng.RunForecast(req)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record from the aligned sample, got %d", len(records))
	}
	if records[0].Type != model.AnomalyPredictionError {
		t.Fatalf("type: %s", records[0].Type)
	}

	// no timestamp overlap at all: no signal, no error
	req.Timestamps = []time.Time{base.Add(24 * time.Hour)}
	req.Predicted = []float64{40}
	records, err = te.eng.RunForecast(req)
	if err != nil || len(records) != 0 {
		t.Fatalf("expected empty aligned subset, got %v %v", records, err)
	}
}

func TestRunForecastLengthMismatch(t *testing.T) {
	te := newEngineForTest(testConfig())
	feed(te.eng, "srv01", model.MetricCPU, repeat(50, 3))
	req := model.ForecastRequest{
		Server:     "srv01",
		Metric:     model.MetricCPU,
		Timestamps: []time.Time{time.Now()},
		Predicted:  []float64{40, 40},
	}
	if _, err := te.eng.RunForecast(req); err == nil {
		t.Fatalf("expected length mismatch error")
	}
}

func TestReconfigureKeepsWindows(t *testing.T) {
	te := newEngineForTest(testConfig())
	feed(te.eng, "srv01", model.MetricCPU, repeat(95, 10))

	next := testConfig()
	next.Anomaly.Profiles = map[string]config.ProfileConfig{
		model.MetricCPU: {ZScoreThreshold: 2.5, RateOfChangeThreshold: 10, CriticalLevel: 70},
	}
	te.eng.Reconfigure(next)

	report, _, ok := te.eng.ClassifyServer("srv01")
	if !ok || report.SampleCount != 10 {
		t.Fatalf("window state lost on reconfigure: %+v ok=%v", report, ok)
	}
	profiles := te.eng.Profiles()
	if profiles[model.MetricCPU].CriticalLevel != 70 {
		t.Fatalf("profiles not swapped: %+v", profiles)
	}
}

func TestWindowEviction(t *testing.T) {
	w := NewWindow(5, 0)
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		if !w.Append(model.Sample{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: float64(i)}) {
			t.Fatalf("append %d rejected", i)
		}
	}
	if w.Len() != 5 {
		t.Fatalf("len: %d", w.Len())
	}
	values := w.Values()
	if values[0] != 3 || values[len(values)-1] != 7 {
		t.Fatalf("values: %v", values)
	}

	aged := NewWindow(100, 10*time.Minute)
	for i := 0; i < 30; i++ {
		aged.Append(model.Sample{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: float64(i)})
	}
	from, to := aged.Bounds()
	if to.Sub(from) > 10*time.Minute {
		t.Fatalf("age eviction failed: %v .. %v", from, to)
	}
}
