package metrics

import (
	"sort"

	"github.com/montanaflynn/stats"
)

// SourceSummary describes the values one source contributed to a dataset.
type SourceSummary struct {
	Source string  `json:"source" yaml:"source"`
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
	StdDev float64 `json:"std_dev" yaml:"std_dev"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
}

// SummarizeSources returns per-source statistics over dated, valued records,
// highest mean first.
func SummarizeSources(s Series) ([]SourceSummary, error) {
	if err := s.Require(FieldValue); err != nil {
		return nil, err
	}
	s = ensureNormalized(s)
	vals := map[string]stats.Float64Data{}
	for _, r := range s.Records {
		if !r.Parsed || !r.HasValue || r.Source == "" {
			continue
		}
		vals[r.Source] = append(vals[r.Source], r.Value)
	}
	out := make([]SourceSummary, 0, len(vals))
	for src, data := range vals {
		sum := SourceSummary{Source: src, Count: data.Len()}
		sum.Mean, _ = data.Mean()
		sum.Median, _ = data.Median()
		sum.Min, _ = data.Min()
		sum.Max, _ = data.Max()
		if data.Len() > 1 {
			sum.StdDev, _ = data.StandardDeviationSample()
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mean == out[j].Mean {
			return out[i].Source < out[j].Source
		}
		return out[i].Mean > out[j].Mean
	})
	return out, nil
}
