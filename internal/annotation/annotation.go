// Package annotation reads a task's immutable annotation index.
package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// ID is a sample id that may be written as a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	*id = ID(bytes.TrimSpace(data))
	return nil
}

// Record is one annotated sample.
type Record struct {
	ID        ID        `json:"id"`
	FilePaths FilePaths `json:"file_paths"`
	Text      Text      `json:"text_prompt"`
}

// FilePaths are relative image paths. Source is relative to the task's image
// root; VisualInstruction and Target are relative to the task directory.
type FilePaths struct {
	Source            string `json:"source"`
	VisualInstruction string `json:"visual_instruction,omitempty"`
	Target            string `json:"target,omitempty"`
}

type Text struct {
	InputPrompt string `json:"input_prompt"`
}

// Index looks annotation records up by exact id.
type Index struct {
	path    string
	records map[string]*Record
}

// Load reads the annotation list at path. When ids repeat, the first record wins.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading annotations: %w", err)
	}
	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing annotations %s: %w", path, err)
	}
	return New(path, records), nil
}

// New indexes records in memory.
func New(path string, records []*Record) *Index {
	idx := &Index{path: path, records: make(map[string]*Record, len(records))}
	for _, r := range records {
		if r == nil {
			continue
		}
		if _, ok := idx.records[string(r.ID)]; !ok {
			idx.records[string(r.ID)] = r
		}
	}
	return idx
}

// Lookup returns the record whose id equals id.
func (idx *Index) Lookup(id string) (*Record, bool) {
	r, ok := idx.records[id]
	return r, ok
}

func (idx *Index) Len() int { return len(idx.records) }

func (idx *Index) Path() string { return idx.path }
