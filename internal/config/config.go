package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Judge       Judge   `yaml:"judge"`
	PricingFile string  `yaml:"pricing_file"`
	Secrets     Secrets `yaml:"secrets"`
	Tasks       []Task  `yaml:"tasks"`
}

type Judge struct {
	Model            string        `yaml:"model"`
	BaseURL          string        `yaml:"base_url"`
	Detail           string        `yaml:"detail"`
	MaxAttempts      int           `yaml:"max_attempts"`
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff"`
	OutageBackoff    time.Duration `yaml:"outage_backoff"`
	RawMetrics       []string      `yaml:"raw_metrics"`
}

// Task locates a benchmark task's annotation index and images.
type Task struct {
	Name        string `yaml:"name"`
	Annotations string `yaml:"annotations"`
	TaskDir     string `yaml:"task_dir"`
	ImageRoot   string `yaml:"image_root"`
	// Layout is one of composite, paired or pose. Empty picks paired for
	// records with a target and composite otherwise.
	Layout              string `yaml:"layout"`
	StripResidualClause *bool  `yaml:"strip_residual_clause"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file"`
}

var layouts = []string{"", "composite", "paired", "pose"}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	j := &cfg.Judge
	if j.Detail == "" {
		j.Detail = "high"
	}
	if j.MaxAttempts == 0 {
		j.MaxAttempts = 50
	}
	if j.MaxAttempts < 0 {
		return fmt.Errorf("judge.max_attempts must be positive")
	}
	if j.RateLimitBackoff == 0 {
		j.RateLimitBackoff = 5 * time.Second
	}
	if j.OutageBackoff == 0 {
		j.OutageBackoff = 60 * time.Second
	}
	if j.RateLimitBackoff < 0 || j.OutageBackoff < 0 {
		return fmt.Errorf("judge backoff cannot be negative")
	}

	if len(cfg.Tasks) == 0 {
		return fmt.Errorf("no tasks defined")
	}
	seen := make(map[string]bool)
	for i := range cfg.Tasks {
		t := &cfg.Tasks[i]
		if t.Name == "" {
			return fmt.Errorf("task %d: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("task %q defined twice", t.Name)
		}
		seen[t.Name] = true
		if t.Annotations == "" {
			return fmt.Errorf("task %q: annotations is required", t.Name)
		}
		if t.TaskDir == "" {
			return fmt.Errorf("task %q: task_dir is required", t.Name)
		}
		if t.ImageRoot == "" {
			t.ImageRoot = t.TaskDir
		}
		if t.Layout == "" {
			t.Layout = defaultLayout(t.Name)
		}
		if !slices.Contains(layouts, t.Layout) {
			return fmt.Errorf("task %q: unknown layout %q", t.Name, t.Layout)
		}
		if t.StripResidualClause == nil {
			strip := t.Name == "Addition"
			t.StripResidualClause = &strip
		}
	}
	return nil
}

func defaultLayout(task string) string {
	switch task {
	case "Billiards", "Paper_Folding":
		return "paired"
	case "Pose_Control":
		return "pose"
	}
	return ""
}

// Task returns the task named name.
func (c *Config) Task(name string) (*Task, bool) {
	for i := range c.Tasks {
		if c.Tasks[i].Name == name {
			return &c.Tasks[i], true
		}
	}
	return nil, false
}

// Override applies environment overrides to the judge settings.
func (c *Config) Override(env *Env) {
	if env.Model != "" {
		c.Judge.Model = env.Model
	}
	if env.BaseURL != "" {
		c.Judge.BaseURL = env.BaseURL
	}
}
