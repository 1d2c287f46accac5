package normalize

import (
	"testing"
	"time"

	"loadwatch/internal/config"
	"loadwatch/internal/model"
)

func testNormalizeConfig() *config.Config {
	cfg := config.DefaultConfig()
	return cfg
}

func TestCanonicalMetricAliases(t *testing.T) {
	cases := map[string]string{
		"cpu":                  model.MetricCPU,
		"CPU_Usage":            model.MetricCPU,
		"cpu.usage.average":    model.MetricCPU,
		"memory":               model.MetricMem,
		"mem.usage.average":    model.MetricMem,
		"network":              model.MetricNet,
		"net.usage.average":    model.MetricNet,
		"disk.usage.average":   "disk.usage.average",
		"  Net.Usage.Average ": model.MetricNet,
	}
	for in, want := range cases {
		if got := CanonicalMetric(in); got != want {
			t.Fatalf("CanonicalMetric(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeDefaultsServer(t *testing.T) {
	cfg := testNormalizeConfig()
	obs, err := Normalize(model.RawSample{Metric: "cpu", Value: 50}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if obs.Server != "unknown" {
		t.Fatalf("server = %q", obs.Server)
	}
	if obs.Metric != model.MetricCPU {
		t.Fatalf("metric = %q", obs.Metric)
	}
	if time.Since(obs.Sample.Timestamp) > time.Minute {
		t.Fatalf("missing timestamp should default to now, got %v", obs.Sample.Timestamp)
	}
}

func TestNormalizeRejectsEmptyMetric(t *testing.T) {
	cfg := testNormalizeConfig()
	if _, err := Normalize(model.RawSample{Server: "web-01", Value: 50}, cfg); err == nil {
		t.Fatalf("expected error for empty metric")
	}
}

func TestNormalizeKbpsConversion(t *testing.T) {
	cfg := testNormalizeConfig()
	obs, err := Normalize(model.RawSample{
		Server: "web-01",
		Metric: "net",
		Value:  200000,
		Unit:   "kbps",
	}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	// 200000 kbps on a 1000 Mbps link is 20% utilization.
	if obs.Sample.Value != 20 {
		t.Fatalf("value = %v, want 20", obs.Sample.Value)
	}
}

func TestNormalizeClampsOutOfRange(t *testing.T) {
	cfg := testNormalizeConfig()
	obs, err := Normalize(model.RawSample{Server: "web-01", Metric: "cpu", Value: 130}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if obs.Sample.Value != 100 {
		t.Fatalf("high value = %v, want 100", obs.Sample.Value)
	}
	obs, err = Normalize(model.RawSample{Server: "web-01", Metric: "cpu", Value: -3}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if obs.Sample.Value != 0 {
		t.Fatalf("low value = %v, want 0", obs.Sample.Value)
	}
}

func TestNormalizeParsesTimestamps(t *testing.T) {
	cfg := testNormalizeConfig()
	cfg.Ingest.Normalize.MaxPastSkew = 0
	cfg.Ingest.Normalize.MaxFutureSkew = 0

	obs, err := Normalize(model.RawSample{
		Server:    "web-01",
		Metric:    "cpu",
		Value:     50,
		Timestamp: "2026-02-23T12:34:56Z",
	}, cfg)
	if err != nil {
		t.Fatalf("rfc3339: %v", err)
	}
	want := time.Date(2026, 2, 23, 12, 34, 56, 0, time.UTC)
	if !obs.Sample.Timestamp.Equal(want) {
		t.Fatalf("rfc3339 timestamp = %v, want %v", obs.Sample.Timestamp, want)
	}

	obs, err = Normalize(model.RawSample{
		Server:    "web-01",
		Metric:    "cpu",
		Value:     50,
		Timestamp: "1700000000",
	}, cfg)
	if err != nil {
		t.Fatalf("unix: %v", err)
	}
	if !obs.Sample.Timestamp.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("unix timestamp = %v", obs.Sample.Timestamp)
	}

	obs, err = Normalize(model.RawSample{
		Server:    "web-01",
		Metric:    "cpu",
		Value:     50,
		Timestamp: "1700000000000",
	}, cfg)
	if err != nil {
		t.Fatalf("unix ms: %v", err)
	}
	if !obs.Sample.Timestamp.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("unix ms timestamp = %v", obs.Sample.Timestamp)
	}

	if _, err := Normalize(model.RawSample{
		Server:    "web-01",
		Metric:    "cpu",
		Value:     50,
		Timestamp: "not-a-time",
	}, cfg); err == nil {
		t.Fatalf("expected error for unparseable timestamp")
	}
}

func TestNormalizeClampsStaleTimestamp(t *testing.T) {
	cfg := testNormalizeConfig()
	stale := time.Now().UTC().Add(-30 * 24 * time.Hour).Format(time.RFC3339)
	obs, err := Normalize(model.RawSample{
		Server:    "web-01",
		Metric:    "cpu",
		Value:     50,
		Timestamp: stale,
	}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if time.Since(obs.Sample.Timestamp) > time.Minute {
		t.Fatalf("stale timestamp should clamp to now, got %v", obs.Sample.Timestamp)
	}
}
