// Package parse locates the JSON verdict inside free-form judge output.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrNoJSON      = errors.New("no JSON found")
	ErrInvalidJSON = errors.New("invalid JSON")
	ErrNotObject   = errors.New("JSON is not an object")
)

// ParseError reports why a judge response could not be turned into an object.
type ParseError struct {
	Err    error
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Detail)
}

func (e *ParseError) Unwrap() error { return e.Err }

var fencedObject = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Candidate returns the substring most likely to hold the JSON object: the
// first fenced code block wrapping `{...}`, otherwise the span from the first
// `{` to the last `}`.
func Candidate(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if m := fencedObject.FindStringSubmatch(t); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last == -1 || last < first {
		return "", false
	}
	c := strings.TrimSpace(text[first : last+1])
	if len(c) < 2 {
		return "", false
	}
	return c, true
}

// Object extracts and decodes the JSON object in text. Values are kept raw so
// callers can validate each key against their own schema.
func Object(text string) (map[string]json.RawMessage, error) {
	c, ok := Candidate(text)
	if !ok {
		return nil, &ParseError{Err: ErrNoJSON}
	}
	var v any
	if err := json.Unmarshal([]byte(c), &v); err != nil {
		return nil, &ParseError{Err: ErrInvalidJSON, Detail: err.Error()}
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, &ParseError{Err: ErrNotObject}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(c), &obj); err != nil {
		return nil, &ParseError{Err: ErrInvalidJSON, Detail: err.Error()}
	}
	return obj, nil
}
