// Package pricing estimates the cost of judge calls from token usage.
package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/editbench/internal/judge"
)

// ModelPricing is the USD price per one million tokens.
type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// Table maps judge model names to prices.
type Table struct {
	Models map[string]ModelPricing `yaml:"models"`
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	for name, p := range t.Models {
		if p.Input < 0 || p.Output < 0 {
			return nil, fmt.Errorf("pricing for %s: prices cannot be negative", name)
		}
	}
	return &t, nil
}

// Cost returns the USD cost of u on model and whether the model is priced.
func (t *Table) Cost(model string, u judge.Usage) (float64, bool) {
	if t == nil || t.Models == nil {
		return 0, false
	}
	p, ok := t.Models[model]
	if !ok {
		return 0, false
	}
	return (float64(u.PromptTokens)*p.Input + float64(u.CompletionTokens)*p.Output) / 1e6, true
}
