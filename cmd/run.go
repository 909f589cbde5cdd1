package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/signalnine/editbench/internal/annotation"
	"github.com/signalnine/editbench/internal/config"
	"github.com/signalnine/editbench/internal/judge"
	"github.com/signalnine/editbench/internal/pricing"
	"github.com/signalnine/editbench/internal/report"
	"github.com/signalnine/editbench/internal/result"
	"github.com/signalnine/editbench/internal/runner"
)

var (
	flagTask         string
	flagPrompts      []string
	flagGenPrefix    string
	flagResultJSON   []string
	flagResultsRoot  string
	flagRepeat       int
	flagRepeatResume bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Judge generated images and write task summaries",
		RunE:  runEvaluation,
	}
	cmd.Flags().StringVar(&flagTask, "task", "", "task name (must be defined in the config)")
	cmd.Flags().StringArrayVar(&flagPrompts, "prompt", nil, "MetricName=/path/to/prompt.txt (repeatable)")
	cmd.Flags().StringVar(&flagGenPrefix, "gen-prefix", "", "prefix directory for generated images")
	cmd.Flags().StringArrayVar(&flagResultJSON, "result-json", nil, "task result document (repeatable)")
	cmd.Flags().StringVar(&flagResultsRoot, "results-root", "", "directory of task result documents")
	cmd.Flags().IntVar(&flagRepeat, "repeat", 1, "evaluate N times and aggregate mean/variance")
	cmd.Flags().BoolVar(&flagRepeatResume, "repeat-resume", false, "resume existing run documents instead of reseeding them")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("prompt")
	_ = cmd.MarkFlagRequired("gen-prefix")
	return cmd
}

func runEvaluation(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	task, err := loadTask(cfg, flagTask)
	if err != nil {
		return err
	}
	specs, err := runner.Specs(flagPrompts, cfg.Judge.RawMetrics)
	if err != nil {
		return err
	}
	files, err := result.Collect(flagResultJSON, flagResultsRoot)
	if err != nil {
		return err
	}
	env, err := config.LoadEnv(ctx, envconfig.OsLookuper(), cfg.Secrets.EnvFile)
	if err != nil {
		return err
	}
	cfg.Override(env)
	protocol, err := newProtocol(cfg, env)
	if err != nil {
		return err
	}

	var usage judge.Usage
	var entries []*report.Entry
	for _, p := range files {
		fmt.Printf("Processing result json: %s\n", p)
		res, err := runner.RunRepeats(ctx, protocol, &runner.RepeatOpts{
			DocumentOpts: runner.DocumentOpts{
				Task:      task,
				Metrics:   specs,
				GenPrefix: flagGenPrefix,
			},
			BasePath: p,
			Repeat:   flagRepeat,
			Resume:   flagRepeatResume,
		})
		if err != nil {
			return err
		}
		usage.Add(res.Usage)
		entries = append(entries, &report.Entry{Task: task.Name, Path: res.AggregatePath, Aggregate: res.Aggregate})
		fmt.Printf("Wrote aggregated summary: %s\n", res.AggregatePath)
	}

	fmt.Println("\n--- Results ---")
	if err := report.Render(entries, "table", os.Stdout); err != nil {
		return err
	}
	printUsage(ctx, cfg, protocol.Model, usage)
	return nil
}

// loadTask resolves a configured task and opens its annotation index.
func loadTask(cfg *config.Config, name string) (*judge.Task, error) {
	t, ok := cfg.Task(name)
	if !ok {
		return nil, fmt.Errorf("task %q is not defined in %s", name, cfgFile)
	}
	idx, err := annotation.Load(t.Annotations)
	if err != nil {
		return nil, err
	}
	return &judge.Task{
		Name:                t.Name,
		Annotations:         idx,
		TaskDir:             t.TaskDir,
		ImageRoot:           t.ImageRoot,
		Layout:              judge.Layout(t.Layout),
		StripResidualClause: *t.StripResidualClause,
	}, nil
}

func newProtocol(cfg *config.Config, env *config.Env) (*judge.Protocol, error) {
	if env.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	policy := judge.RetryPolicy{
		MaxAttempts:      cfg.Judge.MaxAttempts,
		RateLimitBackoff: cfg.Judge.RateLimitBackoff,
		OutageBackoff:    cfg.Judge.OutageBackoff,
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("judge retry policy: %w", err)
	}
	model := cfg.Judge.Model
	if model == "" {
		model = judge.DefaultModel
	}
	return &judge.Protocol{
		Client: judge.NewOpenAI(env.APIKey, cfg.Judge.BaseURL),
		Model:  model,
		Detail: cfg.Judge.Detail,
		Policy: policy,
	}, nil
}

func printUsage(ctx context.Context, cfg *config.Config, model string, u judge.Usage) {
	fmt.Printf("\nJudge usage: %d calls, %d prompt tokens, %d completion tokens\n",
		u.Calls, u.PromptTokens, u.CompletionTokens)
	if cfg.PricingFile == "" {
		return
	}
	table, err := pricing.Load(cfg.PricingFile)
	if err != nil {
		clog.WarnContextf(ctx, "could not load pricing: %v", err)
		return
	}
	if cost, ok := table.Cost(model, u); ok {
		fmt.Printf("Estimated judge cost: $%.2f\n", cost)
	} else {
		clog.InfoContextf(ctx, "no pricing for judge model %s", model)
	}
}
