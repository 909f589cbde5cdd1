package metric

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/signalnine/editbench/internal/parse"
)

// ValidationError reports a verdict that parsed as JSON but does not satisfy
// the metric's schema.
type ValidationError struct {
	Metric string
	Msg    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("metric %s: %s", e.Metric, e.Msg)
}

// Spec is a metric bound to its rubric prompt.
type Spec struct {
	Name       string
	PromptPath string
	Descriptor
}

// NewSpec binds name to promptPath using the registered descriptor.
func NewSpec(name, promptPath string) *Spec {
	return &Spec{Name: name, PromptPath: promptPath, Descriptor: Lookup(name)}
}

// NewRawSpec returns a metric without a schema: the first judge answer is
// accepted as is and no payload is produced.
func NewRawSpec(name, promptPath string) *Spec {
	return &Spec{Name: name, PromptPath: promptPath, Descriptor: Descriptor{Kind: KindRaw}}
}

// HasParser reports whether judge answers are validated for this metric.
func (s *Spec) HasParser() bool { return s.Kind != KindRaw }

// Parse validates text against the metric schema. Payload construction is
// all-or-nothing: any missing key, wrong type or out-of-domain value fails.
func (s *Spec) Parse(text string) (*Payload, error) {
	if !s.HasParser() {
		return nil, &ValidationError{Metric: s.Name, Msg: "metric has no parser"}
	}
	obj, err := parse.Object(text)
	if err != nil {
		return nil, err
	}
	switch s.Rule {
	case RuleSingle:
		return s.parseSingle(obj)
	case RuleMatchRatio:
		return s.parsePose(obj)
	case RuleNeedsModification:
		return s.parseOrientation(obj)
	case RuleMean, RuleBilliards:
		return s.parseCriteria(obj)
	default:
		return nil, &ValidationError{Metric: s.Name, Msg: fmt.Sprintf("unknown rule %d", s.Rule)}
	}
}

func (s *Spec) invalid(format string, args ...any) error {
	return &ValidationError{Metric: s.Name, Msg: fmt.Sprintf(format, args...)}
}

func (s *Spec) parseSingle(obj map[string]json.RawMessage) (*Payload, error) {
	key := s.Keys[0]
	raw, ok := obj[key]
	if !ok {
		return nil, s.invalid("missing key: %s", key)
	}
	entry, err := asObject(raw)
	if err != nil {
		return nil, s.invalid("%s is not an object", key)
	}
	score, err := s.domainScore(key, entry)
	if err != nil {
		return nil, err
	}
	return &Payload{
		Fields: []Field{{Key: "reason", Value: reasonOf(entry)}},
		Score:  score,
	}, nil
}

func (s *Spec) parseCriteria(obj map[string]json.RawMessage) (*Payload, error) {
	if err := s.requireKeys(obj); err != nil {
		return nil, err
	}
	p := &Payload{}
	scores := make(map[string]float64, len(s.Keys))
	var total float64
	for _, k := range s.Keys {
		entry, err := asObject(obj[k])
		if err != nil {
			return nil, s.invalid("%s is not an object", k)
		}
		score, err := s.domainScore(k, entry)
		if err != nil {
			return nil, err
		}
		p.Fields = append(p.Fields, Field{Key: k, Value: Criterion{Reason: reasonOf(entry), Score: score}})
		scores[k] = score
		total += score
	}
	if s.Rule == RuleBilliards {
		cp := scores["Context_Preservation"]
		pc := scores["Path_Correctness"]
		cc := scores["Collision_Correctness"]
		p.Score = Round(cp*(pc+cc)/2.0, 4)
	} else {
		p.Score = Round(total/float64(len(s.Keys)), 4)
	}
	return p, nil
}

func (s *Spec) parseOrientation(obj map[string]json.RawMessage) (*Payload, error) {
	if err := s.requireKeys(obj); err != nil {
		return nil, err
	}
	p := &Payload{}
	var total float64
	var count int
	for _, k := range s.Keys {
		entry, err := asObject(obj[k])
		if err != nil {
			return nil, s.invalid("%s is not an object", k)
		}
		needs, ok := boolOf(entry["needs_modification"])
		if !ok {
			return nil, s.invalid("%s needs_modification is not a boolean", k)
		}
		score, err := s.domainScore(k, entry)
		if err != nil {
			return nil, err
		}
		p.Fields = append(p.Fields, Field{Key: k, Value: Criterion{
			Reason:            reasonOf(entry),
			Score:             score,
			NeedsModification: &needs,
		}})
		if needs {
			total += score
			count++
		}
	}
	if count > 0 {
		p.Score = Round(total/float64(count), 4)
	}
	return p, nil
}

func (s *Spec) parsePose(obj map[string]json.RawMessage) (*Payload, error) {
	raw, ok := obj[s.Name]
	if !ok {
		return nil, s.invalid("missing key: %s", s.Name)
	}
	joints, err := asObject(raw)
	if err != nil {
		return nil, s.invalid("%s is not an object", s.Name)
	}
	p := &Payload{}
	var matched, evaluated int
	for _, k := range s.Keys {
		v, ok := joints[k]
		if !ok {
			return nil, s.invalid("missing key: %s", k)
		}
		var verdict string
		if err := json.Unmarshal(v, &verdict); err != nil {
			return nil, s.invalid("%s must be a string", k)
		}
		verdict = strings.TrimSpace(verdict)
		switch verdict {
		case Match:
			matched++
			evaluated++
		case Mismatch:
			evaluated++
		case NotApply:
		default:
			return nil, s.invalid("%s must be one of [MATCH MISMATCH N/A], got: %s", k, verdict)
		}
		p.Fields = append(p.Fields, Field{Key: k, Value: verdict})
	}
	if evaluated > 0 {
		p.Score = Round(float64(matched)/float64(evaluated), 4)
	}
	return p, nil
}

func (s *Spec) requireKeys(obj map[string]json.RawMessage) error {
	var missing []string
	for _, k := range s.Keys {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return s.invalid("missing keys: %v", missing)
	}
	return nil
}

func (s *Spec) domainScore(key string, entry map[string]json.RawMessage) (float64, error) {
	score, err := numberOf(entry["score"])
	if err != nil {
		return 0, s.invalid("%s score is not numeric", key)
	}
	if !slices.Contains(s.Domain, score) {
		return 0, s.invalid("%s score must be one of %v, got %v", key, s.Domain, score)
	}
	return score, nil
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("null")
	}
	return obj, nil
}

// numberOf accepts JSON numbers, numeric strings and booleans.
func numberOf(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}

func boolOf(raw json.RawMessage) (bool, bool) {
	switch strings.TrimSpace(string(raw)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

func reasonOf(entry map[string]json.RawMessage) string {
	raw, ok := entry["reason"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
