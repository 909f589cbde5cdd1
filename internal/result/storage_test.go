package result_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/editbench/internal/result"
)

const doc = `[
  {"id": 7, "status": "success", "input_prompt": "add a cat", "saved_image_path": "imgs/7.png", "extra": {"keep": true}},
  {"id": "b", "status": "failed"}
]`

func writeDoc(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "Addition.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndAccessors(t *testing.T) {
	d, err := result.Load(writeDoc(t, t.TempDir()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(d.Samples()) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(d.Samples()))
	}
	s, ok := d.Get("7")
	if !ok {
		t.Fatal("numeric id 7 not found by string lookup")
	}
	if !s.Succeeded() {
		t.Error("expected sample 7 to be successful")
	}
	if s.InputPrompt() != "add a cat" {
		t.Errorf("input_prompt: got %q", s.InputPrompt())
	}
	if s.SavedImagePath() != "imgs/7.png" {
		t.Errorf("saved_image_path: got %q", s.SavedImagePath())
	}
	if b, _ := d.Get("b"); b.Succeeded() {
		t.Error("expected sample b to be skipped")
	}
}

func TestUpdateFlushPreservesFieldsAndOrder(t *testing.T) {
	path := writeDoc(t, t.TempDir())
	d, err := result.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Update("7", "Visual_Coherence", map[string]any{"reason": "ok", "score": 1}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := d.Update("missing", "Visual_Coherence", 1); err == nil {
		t.Error("expected error updating unknown sample")
	}
	if err := d.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reloaded, err := result.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := reloaded.Get("7")
	want := []string{"id", "status", "input_prompt", "saved_image_path", "extra", "Visual_Coherence"}
	if got := s.Keys(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("keys: got %v, want %v", got, want)
	}
	raw, _ := s.Raw("extra")
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil || compact.String() != `{"keep":true}` {
		t.Errorf("extra field lost: %s", raw)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLoadRejectsNonList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{"id": 1}`), 0o644)
	if _, err := result.Load(path); err == nil {
		t.Error("expected error for non-list document")
	}
}

func TestEvalErrors(t *testing.T) {
	s, err := result.NewSample("id", "x", "status", "success")
	if err != nil {
		t.Fatal(err)
	}
	s.AppendEvalError("annotation item not found")
	s.AppendEvalError("missing source image")
	if got := s.EvalErrors(); len(got) != 2 || got[1] != "missing source image" {
		t.Errorf("eval errors: got %v", got)
	}
}

func TestRunPaths(t *testing.T) {
	if got := result.RunPath("/r/Addition.json", 3); got != "/r/Addition_3.json" {
		t.Errorf("RunPath: got %q", got)
	}
	if got := result.SummaryPath("/r/Addition_3.json", "Addition"); got != "/r/Addition_summary.json" {
		t.Errorf("SummaryPath: got %q", got)
	}
	if got := result.RunSummaryPath("/r/Addition_3.json", "Addition", 3); got != "/r/Addition_summary_3.json" {
		t.Errorf("RunSummaryPath: got %q", got)
	}
}

func TestRunIndex(t *testing.T) {
	base, i, ok := result.RunIndex("/r/Addition_12.json")
	if !ok || base != "/r/Addition.json" || i != 12 {
		t.Errorf("RunIndex: got %q %d %t", base, i, ok)
	}
	if _, _, ok := result.RunIndex("/r/Addition.json"); ok {
		t.Error("base document is not a run copy")
	}
	if _, _, ok := result.RunIndex("/r/Addition_0.json"); ok {
		t.Error("runs are numbered from 1")
	}
}

func TestPrepareRun(t *testing.T) {
	dir := t.TempDir()
	base := writeDoc(t, dir)
	run := result.RunPath(base, 1)

	rerun, err := result.PrepareRun(base, run, true)
	if err != nil {
		t.Fatal(err)
	}
	if rerun {
		t.Error("resume should not force a rerun")
	}
	d, _ := result.Load(run)
	d.Update("7", "Visual_Coherence", map[string]any{"score": 1})
	d.Flush()

	if _, err := result.PrepareRun(base, run, true); err != nil {
		t.Fatal(err)
	}
	d, _ = result.Load(run)
	if s, _ := d.Get("7"); len(s.Keys()) != 6 {
		t.Error("resume must keep the existing run document")
	}

	rerun, err = result.PrepareRun(base, run, false)
	if err != nil {
		t.Fatal(err)
	}
	if !rerun {
		t.Error("fresh run must recompute every metric")
	}
	d, _ = result.Load(run)
	if s, _ := d.Get("7"); len(s.Keys()) != 5 {
		t.Error("fresh run must reseed from the base document")
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.json", "a_1.json", "a_2.json", "Addition_summary.json", "Addition_summary_1.json", "b_3.json"} {
		os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0o644)
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(""), 0o644)
	os.Mkdir(filepath.Join(dir, "sub.json"), 0o755)

	got, err := result.Collect(nil, dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range got {
		names = append(names, filepath.Base(p))
	}
	if strings.Join(names, ",") != "a.json,b_3.json" {
		t.Errorf("Collect: got %v", names)
	}
	if got, _ := result.Collect([]string{"x.json"}, dir); len(got) != 1 || got[0] != "x.json" {
		t.Errorf("explicit paths should win: %v", got)
	}
	if _, err := result.Collect(nil, ""); err == nil {
		t.Error("expected error with no inputs")
	}
}
