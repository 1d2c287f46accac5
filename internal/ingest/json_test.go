package ingest

import "testing"

func TestDecodeSamplesSingleObject(t *testing.T) {
	samples, err := DecodeSamples([]byte(`  {"server":"web-01","metric":"cpu","value":42.5} `))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("expected one sample, got %d", len(samples))
	}
	if samples[0].Server != "web-01" || samples[0].Value != 42.5 {
		t.Fatalf("unexpected sample: %+v", samples[0])
	}
}

func TestDecodeSamplesArray(t *testing.T) {
	payload := `[
		{"server":"web-01","metric":"cpu","value":10},
		{"server":"web-02","metric":"mem","value":20,"timestamp":"1700000000","unit":"percent"}
	]`
	samples, err := DecodeSamples([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected two samples, got %d", len(samples))
	}
	if samples[1].Timestamp != "1700000000" {
		t.Fatalf("timestamp not carried: %+v", samples[1])
	}
}

func TestDecodeSamplesMalformed(t *testing.T) {
	for _, payload := range []string{"", "   ", "not json", `{"value":`, `[{"value":1},`} {
		if _, err := DecodeSamples([]byte(payload)); err == nil {
			t.Fatalf("payload %q: expected error", payload)
		}
	}
}
