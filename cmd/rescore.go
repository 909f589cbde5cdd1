package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/signalnine/editbench/internal/report"
	"github.com/signalnine/editbench/internal/result"
	"github.com/signalnine/editbench/internal/runner"
	"github.com/signalnine/editbench/internal/scoring"
)

var flagMetrics []string

func newRescoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescore <result-json>...",
		Short: "Recompute overall scores and summaries without calling the judge",
		Long: "Recompute every sample's overall score from the metric results already stored in each document, " +
			"rewrite the document and its summary. Repeat-run documents (<name>_<i>.json) get run summaries and " +
			"their task aggregate is rebuilt.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagTask == "" {
				return fmt.Errorf("--task is required")
			}
			runs := make(map[string]map[int]scoring.Summary)
			var entries []*report.Entry
			for _, p := range args {
				doc, err := result.Load(p)
				if err != nil {
					return err
				}
				summary, err := runner.Rescore(doc, flagMetrics)
				if err != nil {
					return err
				}
				out := result.SummaryPath(p, flagTask)
				base, i, isRun := result.RunIndex(p)
				if isRun {
					out = result.RunSummaryPath(p, flagTask, i)
					if runs[base] == nil {
						runs[base] = make(map[int]scoring.Summary)
					}
					runs[base][i] = summary
				}
				if err := result.WriteJSON(out, summary); err != nil {
					return err
				}
				fmt.Printf("Rescored %s -> %s\n", p, out)
				if !isRun {
					entries = append(entries, &report.Entry{Task: flagTask, Path: out, Summary: summary})
				}
			}

			for base, byRun := range runs {
				agg, err := aggregateRuns(base, byRun)
				if err != nil {
					return err
				}
				out := result.SummaryPath(base, flagTask)
				if err := result.WriteJSON(out, agg); err != nil {
					return err
				}
				fmt.Printf("Wrote aggregated summary: %s\n", out)
				entries = append(entries, &report.Entry{Task: flagTask, Path: out, Aggregate: agg})
			}
			return report.Render(entries, "table", os.Stdout)
		},
	}
	cmd.Flags().StringVar(&flagTask, "task", "", "task name used for summary file names")
	cmd.Flags().StringSliceVar(&flagMetrics, "metric", nil, "metrics to summarize (default: every metric stored)")
	return cmd
}

// aggregateRuns combines the rescored runs of base with the summaries of
// runs that were not rescored this time.
func aggregateRuns(base string, rescored map[int]scoring.Summary) (*scoring.Aggregate, error) {
	all := make(map[int]scoring.Summary, len(rescored))
	for i, s := range rescored {
		all[i] = s
	}
	pattern := filepath.Join(filepath.Dir(base), flagTask+"_summary_*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		_, i, ok := result.RunIndex(m)
		if !ok {
			continue
		}
		if _, done := all[i]; done {
			continue
		}
		var s scoring.Summary
		if err := result.ReadJSON(m, &s); err != nil {
			return nil, err
		}
		all[i] = s
	}
	idx := make([]int, 0, len(all))
	for i := range all {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	summaries := make([]scoring.Summary, 0, len(idx))
	for _, i := range idx {
		summaries = append(summaries, all[i])
	}
	return scoring.AggregateRuns(summaries), nil
}
