package metric

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidBinding = errors.New("invalid --prompt binding")

// Binding maps a metric name to the rubric prompt file used to judge it.
type Binding struct {
	Name       string
	PromptPath string
}

// ParseBindings parses "MetricName=/path/to/prompt.txt" arguments. A name
// given twice keeps its first position and its last path.
func ParseBindings(kvs []string) ([]Binding, error) {
	var out []Binding
	index := make(map[string]int)
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %s (use MetricName=/path/to/prompt.txt)", ErrInvalidBinding, kv)
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			return nil, fmt.Errorf("%w: %s", ErrInvalidBinding, kv)
		}
		if i, ok := index[k]; ok {
			out[i].PromptPath = v
			continue
		}
		index[k] = len(out)
		out = append(out, Binding{Name: k, PromptPath: v})
	}
	return out, nil
}

// NewRegistry builds one Spec per binding, in binding order. Names without a
// registered descriptor use the generic single-key parser.
func NewRegistry(bindings []Binding) []*Spec {
	specs := make([]*Spec, 0, len(bindings))
	for _, b := range bindings {
		specs = append(specs, NewSpec(b.Name, b.PromptPath))
	}
	return specs
}

// Names returns the metric names of specs in order.
func Names(specs []*Spec) []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}
