package anomaly

import "loadwatch/internal/model"

type Profile struct {
	ZScoreThreshold       float64 `json:"z_score_threshold"`
	RateOfChangeThreshold float64 `json:"rate_of_change_threshold"`
	CriticalLevel         float64 `json:"critical_level"`
}

func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		model.MetricCPU: {ZScoreThreshold: 3.0, RateOfChangeThreshold: 20.0, CriticalLevel: 80.0},
		model.MetricMem: {ZScoreThreshold: 3.0, RateOfChangeThreshold: 15.0, CriticalLevel: 90.0},
	}
}

// Table resolves per-metric threshold profiles. Unrecognized metrics
// land on the fallback profile instead of failing.
type Table struct {
	profiles       map[string]Profile
	fallbackMetric string
	fallback       Profile
}

func NewTable(profiles map[string]Profile, fallbackMetric string) Table {
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	if fallbackMetric == "" {
		fallbackMetric = model.MetricCPU
	}
	fallback, ok := profiles[fallbackMetric]
	if !ok {
		fallback = DefaultProfiles()[model.MetricCPU]
	}
	return Table{profiles: profiles, fallbackMetric: fallbackMetric, fallback: fallback}
}

func DefaultTable() Table {
	return NewTable(nil, "")
}

// Resolve returns the profile for metric. The second return reports an
// exact match; false means the fallback profile was substituted.
func (t Table) Resolve(metric string) (Profile, bool) {
	if p, ok := t.profiles[metric]; ok {
		return p, true
	}
	return t.fallback, false
}

func (t Table) FallbackMetric() string {
	return t.fallbackMetric
}

func (t Table) Profiles() map[string]Profile {
	out := make(map[string]Profile, len(t.profiles))
	for metric, p := range t.profiles {
		out[metric] = p
	}
	return out
}
