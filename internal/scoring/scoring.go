// Package scoring combines metric results into per-sample overall scores,
// task summaries and repeat-run aggregates.
package scoring

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/signalnine/editbench/internal/metric"
	"github.com/signalnine/editbench/internal/result"
)

// Summary maps "score" and every metric (or "metric/criterion") name to a
// percentage rounded to 2 decimals; nil means no values were collected.
type Summary map[string]*float64

// Aggregate is the mean and sample variance of each summary field across runs.
type Aggregate struct {
	N    int                 `json:"n"`
	Mean map[string]*float64 `json:"mean"`
	Var  map[string]*float64 `json:"var"`
}

// Scores returns the top-level score of a metric result keyed by metric,
// plus the score of every sub-criterion object keyed by "metric/criterion".
// Criteria flagged needs_modification: false are left out.
func Scores(metricName string, raw json.RawMessage) map[string]float64 {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil
	}
	out := make(map[string]float64)
	if v, ok := obj[result.KeyScore]; ok {
		if s, ok := result.Number(v); ok {
			out[metricName] = s
		}
	}
	for k, v := range obj {
		if k == result.KeyScore {
			continue
		}
		var sub map[string]json.RawMessage
		if err := json.Unmarshal(v, &sub); err != nil {
			continue
		}
		if needs, ok := sub["needs_modification"]; ok && string(needs) == "false" {
			continue
		}
		if sv, ok := sub[result.KeyScore]; ok {
			if s, ok := result.Number(sv); ok {
				out[metricName+"/"+k] = s
			}
		}
	}
	return out
}

// RecomputeOverall sets the sample's overall score to the geometric mean of
// every metric score (and nested criterion score) in [0,1]. Any zero forces
// the overall score to 0. Samples without scores are left untouched.
func RecomputeOverall(s *result.Sample) (float64, bool) {
	var scores []float64
	for _, k := range s.Keys() {
		if k == result.KeyScore {
			continue
		}
		raw, _ := s.Raw(k)
		for _, v := range Scores(k, raw) {
			if v >= 0 && v <= 1 {
				scores = append(scores, v)
			}
		}
	}
	if len(scores) == 0 {
		return 0, false
	}
	sort.Float64s(scores)
	overall := GeometricMean(scores)
	_ = s.SetValue(result.KeyScore, overall)
	return overall, true
}

// GeometricMean returns 0 if any value is zero or negative, otherwise the
// geometric mean rounded to 4 decimals.
func GeometricMean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		if v <= 0 {
			return 0
		}
		sum += math.Log(v)
	}
	return metric.Round(math.Exp(sum/float64(len(values))), 4)
}

// Summarize computes the task summary over successful samples. Every name in
// metrics appears in the summary, nil when no sample carried a score for it.
func Summarize(samples []*result.Sample, metrics []string) Summary {
	var overall []float64
	collected := make(map[string][]float64)
	for _, m := range metrics {
		collected[m] = nil
	}
	for _, s := range samples {
		if !s.Succeeded() {
			continue
		}
		for _, m := range metrics {
			raw, ok := s.Raw(m)
			if !ok {
				continue
			}
			for k, v := range Scores(m, raw) {
				collected[k] = append(collected[k], v)
			}
		}
		if v, ok := s.Score(); ok {
			overall = append(overall, v)
		}
	}

	out := Summary{result.KeyScore: percent(overall)}
	for k, vals := range collected {
		out[k] = percent(vals)
	}
	return out
}

func percent(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	v := metric.Round(mean(vals)*100, 2)
	return &v
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// AggregateRuns computes, per field, the mean (2 decimals) and sample
// variance (4 decimals, N-1 divisor, 0 for a single value) across summaries.
// Fields missing from some summaries are averaged over those that have them.
func AggregateRuns(summaries []Summary) *Aggregate {
	keys := make(map[string]struct{})
	for _, s := range summaries {
		for k := range s {
			keys[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	agg := &Aggregate{
		N:    len(summaries),
		Mean: make(map[string]*float64, len(names)),
		Var:  make(map[string]*float64, len(names)),
	}
	for _, k := range names {
		var vals []float64
		for _, s := range summaries {
			if v := s[k]; v != nil {
				vals = append(vals, *v)
			}
		}
		if len(vals) == 0 {
			agg.Mean[k] = nil
			agg.Var[k] = nil
			continue
		}
		mu := mean(vals)
		var variance float64
		if len(vals) > 1 {
			for _, x := range vals {
				variance += (x - mu) * (x - mu)
			}
			variance /= float64(len(vals) - 1)
		}
		m := metric.Round(mu, 2)
		v := metric.Round(variance, 4)
		agg.Mean[k] = &m
		agg.Var[k] = &v
	}
	return agg
}
