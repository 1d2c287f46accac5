package ingest

import (
	"errors"
	"testing"
)

func TestParseLineFull(t *testing.T) {
	raw, err := ParseLine("web-01.cpu.usage.average 93.5 1700000000 percent")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if raw.Server != "web-01" {
		t.Fatalf("server = %q", raw.Server)
	}
	if raw.Metric != "cpu.usage.average" {
		t.Fatalf("metric = %q", raw.Metric)
	}
	if raw.Value != 93.5 {
		t.Fatalf("value = %v", raw.Value)
	}
	if raw.Timestamp != "1700000000" {
		t.Fatalf("timestamp = %q", raw.Timestamp)
	}
	if raw.Unit != "percent" {
		t.Fatalf("unit = %q", raw.Unit)
	}
}

func TestParseLineMinimal(t *testing.T) {
	raw, err := ParseLine("db1.mem 40")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if raw.Server != "db1" || raw.Metric != "mem" || raw.Value != 40 {
		t.Fatalf("unexpected sample: %+v", raw)
	}
	if raw.Timestamp != "" || raw.Unit != "" {
		t.Fatalf("optional fields should be empty: %+v", raw)
	}
}

func TestParseLineSplitsOnFirstDot(t *testing.T) {
	raw, err := ParseLine("app.eu.net.usage.average 12")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if raw.Server != "app" {
		t.Fatalf("server = %q", raw.Server)
	}
	if raw.Metric != "eu.net.usage.average" {
		t.Fatalf("metric = %q", raw.Metric)
	}
}

func TestParseLineMalformed(t *testing.T) {
	lines := []string{
		"",
		"web-01.cpu",
		"web-01.cpu abc",
		".cpu 50",
		"web-01. 50",
		"nodot 50",
		"web-01.cpu 50 1700000000 percent extra",
	}
	for _, line := range lines {
		if _, err := ParseLine(line); !errors.Is(err, ErrMalformedLine) {
			t.Fatalf("line %q: want ErrMalformedLine, got %v", line, err)
		}
	}
}
