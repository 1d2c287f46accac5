package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"loadwatch/internal/config"
	"loadwatch/internal/model"
	"loadwatch/internal/telemetry"
)

// metricAliases maps the field names agents actually send to the
// canonical metric names the classifier consults.
var metricAliases = map[string]string{
	"cpu":                   model.MetricCPU,
	"cpu_usage":             model.MetricCPU,
	"cpu.usage":             model.MetricCPU,
	"cpu.usage.average":     model.MetricCPU,
	"mem":                   model.MetricMem,
	"memory":                model.MetricMem,
	"mem_usage":             model.MetricMem,
	"memory_usage":          model.MetricMem,
	"mem.usage":             model.MetricMem,
	"mem.usage.average":     model.MetricMem,
	"memory.usage.average":  model.MetricMem,
	"net":                   model.MetricNet,
	"network":               model.MetricNet,
	"net_usage":             model.MetricNet,
	"network_usage":         model.MetricNet,
	"net.usage":             model.MetricNet,
	"net.usage.average":     model.MetricNet,
	"network.usage.average": model.MetricNet,
}

// CanonicalMetric resolves a metric alias. Unrecognized names pass
// through unchanged so deployment-specific metrics still flow.
func CanonicalMetric(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := metricAliases[key]; ok {
		return canonical
	}
	return key
}

// Normalize turns a raw ingest sample into an observation: canonical
// metric name, parsed and clamped timestamp, value converted to
// percent where the unit requires it.
func Normalize(raw model.RawSample, cfg *config.Config) (model.Observation, error) {
	server := strings.TrimSpace(raw.Server)
	if server == "" {
		server = cfg.Ingest.Normalize.DefaultServer
	}
	metric := CanonicalMetric(raw.Metric)
	if metric == "" {
		return model.Observation{}, errors.New("sample has no metric name")
	}

	loc := time.UTC
	if cfg.Ingest.Normalize.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Ingest.Normalize.Timezone); err == nil {
			loc = l
		}
	}

	now := time.Now().UTC()
	ts := now
	if raw.Timestamp != "" {
		parsed, err := ParseTimestamp(raw.Timestamp, loc)
		if err != nil {
			return model.Observation{}, fmt.Errorf("parse timestamp: %w", err)
		}
		ts = clampTimestamp(parsed.UTC(), now, cfg.Ingest.Normalize.MaxPastSkew, cfg.Ingest.Normalize.MaxFutureSkew)
	}

	value := raw.Value
	if strings.EqualFold(strings.TrimSpace(raw.Unit), "kbps") {
		value = kbpsToPercent(value, cfg.Ingest.Normalize.NetworkCapacityMbps)
	}
	if value < 0 || value > 100 {
		telemetry.SamplesClamped.Inc()
		if value < 0 {
			value = 0
		} else {
			value = 100
		}
	}

	return model.Observation{
		Server: server,
		Metric: metric,
		Sample: model.Sample{Timestamp: ts, Value: value},
	}, nil
}

// kbpsToPercent converts a throughput reading to percent of the
// configured link capacity.
func kbpsToPercent(kbps, capacityMbps float64) float64 {
	if capacityMbps <= 0 {
		capacityMbps = 1000
	}
	return kbps / (capacityMbps * 1000) * 100
}

func clampTimestamp(ts, now time.Time, maxPast, maxFuture time.Duration) time.Time {
	if ts.IsZero() {
		return now
	}
	if maxPast > 0 && now.Sub(ts) > maxPast {
		return now
	}
	if maxFuture > 0 && ts.Sub(now) > maxFuture {
		return now
	}
	return ts
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
