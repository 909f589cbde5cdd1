package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Reserved sample keys. Every other object-valued key is a metric result.
const (
	KeyID             = "id"
	KeyStatus         = "status"
	KeyInputPrompt    = "input_prompt"
	KeySavedImagePath = "saved_image_path"
	KeyScore          = "score"
	KeyEvalErrors     = "_eval_errors"

	StatusSuccess = "success"
)

// Sample is one evaluation unit of a result document. It keeps every key it
// was loaded with, in order, so rewriting a document never drops fields.
type Sample struct {
	keys   []string
	fields map[string]json.RawMessage
}

// NewSample builds a sample from key/value pairs, mostly for tests.
func NewSample(kv ...any) (*Sample, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("odd number of key/value arguments")
	}
	s := &Sample{fields: map[string]json.RawMessage{}}
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("key %v is not a string", kv[i])
		}
		if err := s.SetValue(k, kv[i+1]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ID returns the sample id as a string; numeric ids are formatted as is.
func (s *Sample) ID() string { return s.str(KeyID) }

func (s *Sample) Status() string         { return s.str(KeyStatus) }
func (s *Sample) InputPrompt() string    { return s.str(KeyInputPrompt) }
func (s *Sample) SavedImagePath() string { return s.str(KeySavedImagePath) }

// Succeeded reports whether the sample's generation succeeded and should be judged.
func (s *Sample) Succeeded() bool { return s.Status() == StatusSuccess }

func (s *Sample) str(key string) string {
	raw, ok := s.fields[key]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return ""
	}
	return string(bytes.TrimSpace(raw))
}

// Keys returns the sample keys in document order.
func (s *Sample) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Raw returns the stored JSON for key.
func (s *Sample) Raw(key string) (json.RawMessage, bool) {
	raw, ok := s.fields[key]
	return raw, ok
}

// Set stores raw JSON under key, appending the key if new.
func (s *Sample) Set(key string, raw json.RawMessage) {
	if s.fields == nil {
		s.fields = map[string]json.RawMessage{}
	}
	if _, ok := s.fields[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.fields[key] = raw
}

// SetValue marshals v and stores it under key.
func (s *Sample) SetValue(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	s.Set(key, raw)
	return nil
}

// Score returns the overall score, if present and numeric.
func (s *Sample) Score() (float64, bool) {
	raw, ok := s.fields[KeyScore]
	if !ok {
		return 0, false
	}
	return Number(raw)
}

// AppendEvalError records a per-sample failure that did not produce a metric result.
func (s *Sample) AppendEvalError(msg string) error {
	var errs []string
	if raw, ok := s.fields[KeyEvalErrors]; ok {
		_ = json.Unmarshal(raw, &errs)
	}
	return s.SetValue(KeyEvalErrors, append(errs, msg))
}

// EvalErrors returns the recorded per-sample failures.
func (s *Sample) EvalErrors() []string {
	var errs []string
	if raw, ok := s.fields[KeyEvalErrors]; ok {
		_ = json.Unmarshal(raw, &errs)
	}
	return errs
}

// Number decodes a JSON number or numeric string.
func Number(raw json.RawMessage) (float64, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (s *Sample) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(s.fields[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Sample) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("sample is not a JSON object")
	}
	s.keys = nil
	s.fields = map[string]json.RawMessage{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected sample key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}
		s.Set(key, raw)
	}
	_, err = dec.Token()
	return err
}
