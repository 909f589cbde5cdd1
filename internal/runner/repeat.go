package runner

import (
	"context"
	"fmt"
	"slices"

	"github.com/chainguard-dev/clog"

	"github.com/signalnine/editbench/internal/judge"
	"github.com/signalnine/editbench/internal/metric"
	"github.com/signalnine/editbench/internal/result"
	"github.com/signalnine/editbench/internal/scoring"
)

type RepeatOpts struct {
	DocumentOpts
	BasePath string
	Repeat   int
	// Resume continues existing run documents instead of reseeding them.
	Resume bool
}

// RepeatResult is the outcome of all repeat runs over one base document.
type RepeatResult struct {
	Summaries     []scoring.Summary
	Aggregate     *scoring.Aggregate
	AggregatePath string
	Usage         judge.Usage
}

// RunRepeats evaluates opts.Repeat independent copies of the base document
// one after another, writes a summary per run and the aggregate of all runs.
func RunRepeats(ctx context.Context, e Evaluator, opts *RepeatOpts) (*RepeatResult, error) {
	n := max(1, opts.Repeat)
	task := opts.Task.Name
	res := &RepeatResult{AggregatePath: result.SummaryPath(opts.BasePath, task)}

	for i := 1; i <= n; i++ {
		runPath := result.RunPath(opts.BasePath, i)
		rerun, err := result.PrepareRun(opts.BasePath, runPath, opts.Resume)
		if err != nil {
			return nil, err
		}
		doc, err := result.Load(runPath)
		if err != nil {
			return nil, err
		}
		clog.InfoContextf(ctx, "Run %d/%d of %s: %s (rerun=%t)", i, n, task, runPath, rerun)

		docOpts := opts.DocumentOpts
		docOpts.Rerun = rerun
		summary, stats, err := EvaluateDocument(ctx, e, doc, &docOpts)
		if err != nil {
			return nil, err
		}
		res.Usage.Add(stats.Usage)
		clog.InfoContextf(ctx, "Run %d of %s: %d evaluated, %d resumed, %d gated, %d sample errors",
			i, task, stats.Evaluated, stats.Resumed, stats.Gated, stats.Errors)

		if err := result.WriteJSON(result.RunSummaryPath(runPath, task, i), summary); err != nil {
			return nil, fmt.Errorf("writing run summary: %w", err)
		}
		res.Summaries = append(res.Summaries, summary)
	}

	res.Aggregate = scoring.AggregateRuns(res.Summaries)
	if err := result.WriteJSON(res.AggregatePath, res.Aggregate); err != nil {
		return nil, fmt.Errorf("writing aggregate: %w", err)
	}
	return res, nil
}

// Rescore recomputes overall scores of every successful sample in doc
// without calling the judge, flushes it and returns the task summary. With no
// metric names, every metric found on the samples is summarized.
func Rescore(doc *result.Document, metrics []string) (scoring.Summary, error) {
	if len(metrics) == 0 {
		metrics = StoredMetrics(doc.Samples())
	}
	for _, s := range doc.Samples() {
		if s.Succeeded() {
			scoring.RecomputeOverall(s)
		}
	}
	if err := doc.Flush(); err != nil {
		return nil, err
	}
	return scoring.Summarize(doc.Samples(), metrics), nil
}

// StoredMetrics returns, in first-seen order, the keys of successful samples
// that hold a scored metric result.
func StoredMetrics(samples []*result.Sample) []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range samples {
		if !s.Succeeded() {
			continue
		}
		for _, k := range s.Keys() {
			if k == result.KeyScore || seen[k] {
				continue
			}
			if raw, _ := s.Raw(k); metric.IsAlreadyDone(raw) {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	return names
}

// Specs builds the metric registry from --prompt bindings. Metrics named in
// raw accept the judge's first answer without validation.
func Specs(kvs, raw []string) ([]*metric.Spec, error) {
	bindings, err := metric.ParseBindings(kvs)
	if err != nil {
		return nil, err
	}
	specs := metric.NewRegistry(bindings)
	for i, s := range specs {
		if slices.Contains(raw, s.Name) {
			specs[i] = metric.NewRawSpec(s.Name, s.PromptPath)
		}
	}
	return specs, nil
}
