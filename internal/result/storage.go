package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Document is the in-memory copy of one task-run result document. It is the
// only writer of its file; callers mutate samples through Update and persist
// with Flush.
type Document struct {
	path    string
	samples []*Sample
	index   map[string]int
}

// Load reads the result document at path. The document must be a JSON array
// of sample objects.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result document: %w", err)
	}
	var samples []*Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("result document %s must be a list of samples: %w", path, err)
	}
	return NewDocument(path, samples), nil
}

// NewDocument wraps samples for persistence at path.
func NewDocument(path string, samples []*Sample) *Document {
	d := &Document{path: path, samples: samples, index: make(map[string]int, len(samples))}
	for i, s := range samples {
		if _, dup := d.index[s.ID()]; !dup {
			d.index[s.ID()] = i
		}
	}
	return d
}

func (d *Document) Path() string { return d.path }

// Samples returns the samples in document order.
func (d *Document) Samples() []*Sample { return d.samples }

// Get returns the first sample with the given id.
func (d *Document) Get(id string) (*Sample, bool) {
	i, ok := d.index[id]
	if !ok {
		return nil, false
	}
	return d.samples[i], true
}

// Update stores a metric result on a sample.
func (d *Document) Update(id, metric string, v any) error {
	s, ok := d.Get(id)
	if !ok {
		return fmt.Errorf("sample %q not in %s", id, d.path)
	}
	return s.SetValue(metric, v)
}

// Flush rewrites the whole document. The new content is written to a
// temporary file in the same directory and renamed over the old one, so a
// crash leaves either the previous or the new document.
func (d *Document) Flush() error {
	samples := d.samples
	if samples == nil {
		samples = []*Sample{}
	}
	return WriteJSON(d.path, samples)
}

// WriteJSON atomically writes v as indented JSON to path.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// ReadJSON decodes the JSON document at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// RunPath returns the document path for repeat run i: "dir/name.json"
// becomes "dir/name_i.json".
func RunPath(base string, i int) string {
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), i, ext)
}

var runSuffix = regexp.MustCompile(`^(.+)_(\d+)(\.[^.]*)$`)

// RunIndex splits a repeat-run document path "dir/name_i.json" into the base
// document path and i.
func RunIndex(path string) (string, int, bool) {
	m := runSuffix.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return "", 0, false
	}
	i, err := strconv.Atoi(m[2])
	if err != nil || i < 1 {
		return "", 0, false
	}
	return filepath.Join(filepath.Dir(path), m[1]+m[3]), i, true
}

// SummaryPath is where the task summary (or run aggregate) for the
// document at docPath is written.
func SummaryPath(docPath, task string) string {
	return filepath.Join(filepath.Dir(docPath), task+"_summary.json")
}

// RunSummaryPath is where the summary of repeat run i is written.
func RunSummaryPath(docPath, task string, i int) string {
	return filepath.Join(filepath.Dir(docPath), fmt.Sprintf("%s_summary_%d.json", task, i))
}

// PrepareRun seeds the run document at runPath from the base document.
// When resume is set and the run document already exists it is left
// untouched. It reports whether every metric must be recomputed.
func PrepareRun(basePath, runPath string, resume bool) (rerun bool, err error) {
	if resume {
		if _, err := os.Stat(runPath); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("checking run document: %w", err)
		}
	}
	doc, err := Load(basePath)
	if err != nil {
		return false, err
	}
	doc.path = runPath
	if err := doc.Flush(); err != nil {
		return false, fmt.Errorf("seeding run document: %w", err)
	}
	return !resume, nil
}

var derived = regexp.MustCompile(`^(.+?)(_summary)?_(\d+)\.json$`)

// Collect returns the result documents to evaluate: explicit paths when
// given, otherwise every *.json file directly inside root except summaries
// and the repeat-run copies of another document in root.
func Collect(paths []string, root string) ([]string, error) {
	if len(paths) > 0 {
		return paths, nil
	}
	if root == "" {
		return nil, errors.New("provide --result-json (one or many) or --results-root")
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading results root: %w", err)
	}
	names := make(map[string]bool)
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names[e.Name()] = true
		}
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !names[name] || strings.HasSuffix(name, "_summary.json") {
			continue
		}
		if m := derived.FindStringSubmatch(name); m != nil && (m[2] != "" || names[m[1]+".json"]) {
			continue
		}
		out = append(out, filepath.Join(root, name))
	}
	return out, nil
}
