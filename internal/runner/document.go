package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"

	"github.com/signalnine/editbench/internal/judge"
	"github.com/signalnine/editbench/internal/metric"
	"github.com/signalnine/editbench/internal/result"
	"github.com/signalnine/editbench/internal/scoring"
)

// GatingMetric is the metric whose zero score short-circuits Visual_Coherence.
const GatingMetric = "Instruction_Adherence"

// SkippedReason is stored as the Visual_Coherence reason when gating applies.
const SkippedReason = "Skipped because Instruction_Adherence.score == 0"

// Evaluator judges one (sample, metric) pair. *judge.Protocol implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, c *judge.Call) (*judge.Outcome, error)
}

type DocumentOpts struct {
	Task      *judge.Task
	Metrics   []*metric.Spec
	GenPrefix string
	// Rerun recomputes metrics that already carry a score.
	Rerun bool
}

// DocumentStats counts what happened while evaluating one document.
type DocumentStats struct {
	Evaluated int
	Resumed   int
	Gated     int
	Errors    int
	Usage     judge.Usage
}

// errorRecord is stored for metrics whose answer produced no payload.
type errorRecord struct {
	Error string `json:"error"`
	Raw   string `json:"raw"`
}

// EvaluateDocument runs every metric over every successful sample of doc,
// flushing the document after each stored result, and returns the task
// summary. Per-sample configuration errors are recorded on the sample; any
// other evaluation error aborts the document.
func EvaluateDocument(ctx context.Context, e Evaluator, doc *result.Document, opts *DocumentOpts) (scoring.Summary, *DocumentStats, error) {
	stats := &DocumentStats{}
	names := metric.Names(opts.Metrics)

	for _, s := range doc.Samples() {
		if !s.Succeeded() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		id := s.ID()
		gen := ResolveGenerated(ctx, opts.GenPrefix, s.SavedImagePath())
		dirty := false

		for _, spec := range opts.Metrics {
			if spec.Kind == metric.KindVisualCoherence && gated(s) {
				if err := s.SetValue(spec.Name, metric.Skipped(SkippedReason, 0)); err != nil {
					return nil, stats, err
				}
				stats.Gated++
				scoring.RecomputeOverall(s)
				if err := doc.Flush(); err != nil {
					return nil, stats, err
				}
				continue
			}

			if !opts.Rerun {
				if raw, ok := s.Raw(spec.Name); ok && metric.IsAlreadyDone(raw) {
					stats.Resumed++
					scoring.RecomputeOverall(s)
					dirty = true
					continue
				}
			}

			out, err := e.Evaluate(ctx, &judge.Call{
				Task:          opts.Task,
				SampleID:      id,
				InputPrompt:   s.InputPrompt(),
				Metric:        spec,
				GeneratedPath: gen,
			})
			var se *judge.SampleError
			if errors.As(err, &se) {
				clog.WarnContextf(ctx, "%s sample %s: %v", opts.Task.Name, id, err)
				stats.Errors++
				if err := s.AppendEvalError(se.Error()); err != nil {
					return nil, stats, err
				}
				if err := doc.Flush(); err != nil {
					return nil, stats, err
				}
				continue
			}
			if err != nil {
				return nil, stats, fmt.Errorf("evaluating %s: %w", doc.Path(), err)
			}

			stats.Evaluated++
			stats.Usage.Add(out.Usage)
			var stored any = out.Payload
			if out.Payload == nil {
				stored = errorRecord{Error: "missing payload", Raw: out.Text}
			}
			if err := s.SetValue(spec.Name, stored); err != nil {
				return nil, stats, err
			}
			scoring.RecomputeOverall(s)
			if err := doc.Flush(); err != nil {
				return nil, stats, err
			}
			dirty = false
		}

		if dirty {
			if err := doc.Flush(); err != nil {
				return nil, stats, err
			}
		}
	}

	if err := doc.Flush(); err != nil {
		return nil, stats, err
	}
	return scoring.Summarize(doc.Samples(), names), stats, nil
}

func gated(s *result.Sample) bool {
	raw, ok := s.Raw(GatingMetric)
	if !ok {
		return false
	}
	score, ok := scoring.Scores(GatingMetric, raw)[GatingMetric]
	return ok && score == 0
}

// ResolveGenerated returns prefix/saved, or prefix/imgs/saved when only that
// exists. When neither exists the first is returned and a warning logged.
func ResolveGenerated(ctx context.Context, prefix, saved string) string {
	primary := filepath.Join(prefix, saved)
	if _, err := os.Stat(primary); err == nil {
		return primary
	}
	fallback := filepath.Join(prefix, "imgs", saved)
	if _, err := os.Stat(fallback); err == nil {
		return fallback
	}
	clog.WarnContextf(ctx, "Generated image not found: %s (also tried %s)", primary, fallback)
	return primary
}
