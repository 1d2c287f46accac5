package ingest

import (
	"errors"
	"strconv"
	"strings"

	"loadwatch/internal/model"
)

var ErrMalformedLine = errors.New("malformed sample line")

// ParseLine parses one graphite-style plaintext sample:
//
//	<server>.<metric> <value> [<timestamp>] [<unit>]
//
// The first dot splits server from metric; the timestamp is optional
// and stays a string for the normalizer to parse.
func ParseLine(line string) (model.RawSample, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 4 {
		return model.RawSample{}, ErrMalformedLine
	}
	path := fields[0]
	dot := strings.Index(path, ".")
	if dot <= 0 || dot == len(path)-1 {
		return model.RawSample{}, ErrMalformedLine
	}
	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return model.RawSample{}, ErrMalformedLine
	}
	raw := model.RawSample{
		Server: path[:dot],
		Metric: path[dot+1:],
		Value:  value,
	}
	if len(fields) >= 3 {
		raw.Timestamp = fields[2]
	}
	if len(fields) == 4 {
		raw.Unit = fields[3]
	}
	return raw, nil
}
