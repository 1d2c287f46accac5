package ingest

import (
	"encoding/json"
	"errors"

	"loadwatch/internal/model"
)

// DecodeSamples accepts either one RawSample object or an array of
// them.
func DecodeSamples(data []byte) ([]model.RawSample, error) {
	trim := bytesTrim(data)
	if len(trim) == 0 {
		return nil, errors.New("empty payload")
	}
	if trim[0] == '[' {
		var list []model.RawSample
		if err := json.Unmarshal(trim, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var one model.RawSample
	if err := json.Unmarshal(trim, &one); err != nil {
		return nil, err
	}
	return []model.RawSample{one}, nil
}

func bytesTrim(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\n' || b[start] == '\r' || b[start] == '\t') {
		start++
	}
	end := len(b)
	for end > start && (b[end-1] == ' ' || b[end-1] == '\n' || b[end-1] == '\r' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}
