package metric

import (
	"bytes"
	"encoding/json"
)

// Criterion is one scored sub-criterion of a verdict.
type Criterion struct {
	Reason            string  `json:"reason"`
	Score             float64 `json:"score"`
	NeedsModification *bool   `json:"needs_modification,omitempty"`
}

// Field is one key of a payload, kept in schema order.
type Field struct {
	Key   string
	Value any
}

// Payload is a validated verdict plus its synthesized score. It marshals as
// a JSON object whose keys follow Fields, with "score" last.
type Payload struct {
	Fields []Field
	Score  float64
}

// Skipped returns a payload that records a score without consulting the judge.
func Skipped(reason string, score float64) *Payload {
	return &Payload{
		Fields: []Field{{Key: "reason", Value: reason}},
		Score:  score,
	}
}

// Criterion returns the sub-criterion stored under key.
func (p *Payload) Criterion(key string) (Criterion, bool) {
	for _, f := range p.Fields {
		if f.Key == key {
			c, ok := f.Value.(Criterion)
			return c, ok
		}
	}
	return Criterion{}, false
}

// Value returns the raw field stored under key.
func (p *Payload) Value(key string) (any, bool) {
	for _, f := range p.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, f := range p.Fields {
		if f.Key == "score" {
			continue
		}
		if err := writeMember(&buf, f.Key, f.Value); err != nil {
			return nil, err
		}
		buf.WriteByte(',')
	}
	if err := writeMember(&buf, "score", p.Score); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// IsAlreadyDone reports whether a stored metric result is a payload carrying
// a score. Error records and non-objects are not done.
func IsAlreadyDone(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	_, ok := obj["score"]
	return ok
}
