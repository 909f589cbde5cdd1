// Package report renders task summaries and repeat-run aggregates.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/signalnine/editbench/internal/result"
	"github.com/signalnine/editbench/internal/scoring"
)

var summaryName = regexp.MustCompile(`^(.+)_summary(?:_(\d+))?\.json$`)

// Entry is one summary document: a single run (Run > 0), or the final
// summary of a task (Run == 0), which is either a plain summary or an
// aggregate over repeat runs.
type Entry struct {
	Task      string             `json:"task"`
	Run       int                `json:"run,omitempty"`
	Path      string             `json:"path"`
	Summary   scoring.Summary    `json:"summary,omitempty"`
	Aggregate *scoring.Aggregate `json:"aggregate,omitempty"`
}

// Generate renders every summary document found below root.
func Generate(root, format string, w io.Writer) error {
	entries, err := Collect(root)
	if err != nil {
		return err
	}
	return Render(entries, format, w)
}

// Collect reads every <task>_summary.json and <task>_summary_<i>.json below
// root, sorted by task and run.
func Collect(root string) ([]*Entry, error) {
	var entries []*Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		m := summaryName.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}
		e, err := Read(path)
		if err != nil {
			return err
		}
		e.Task = m[1]
		if m[2] != "" {
			e.Run, _ = strconv.Atoi(m[2])
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collecting summaries: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Task != entries[j].Task {
			return entries[i].Task < entries[j].Task
		}
		if entries[i].Run != entries[j].Run {
			return entries[i].Run < entries[j].Run
		}
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// Read loads a summary or aggregate document.
func Read(path string) (*Entry, error) {
	var probe map[string]json.RawMessage
	if err := result.ReadJSON(path, &probe); err != nil {
		return nil, err
	}
	e := &Entry{Path: path}
	_, hasMean := probe["mean"]
	_, hasN := probe["n"]
	if hasMean && hasN {
		var agg scoring.Aggregate
		if err := result.ReadJSON(path, &agg); err != nil {
			return nil, err
		}
		e.Aggregate = &agg
		return e, nil
	}
	var s scoring.Summary
	if err := result.ReadJSON(path, &s); err != nil {
		return nil, err
	}
	e.Summary = s
	return e, nil
}

// Row is one rendered field of an entry.
type Row struct {
	Task  string
	Run   string
	Field string
	Score string
	Var   string
}

// Rows flattens entries into one row per field, overall score first.
func Rows(entries []*Entry) []Row {
	var rows []Row
	for _, e := range entries {
		run := "final"
		if e.Run > 0 {
			run = strconv.Itoa(e.Run)
		}
		values, variances := e.Summary, scoring.Summary(nil)
		if e.Aggregate != nil {
			values, variances = e.Aggregate.Mean, e.Aggregate.Var
			run = fmt.Sprintf("mean of %d", e.Aggregate.N)
		}
		for _, field := range fields(values) {
			r := Row{Task: e.Task, Run: run, Field: field, Score: formatValue(values[field]), Var: "-"}
			if variances != nil {
				r.Var = formatValue(variances[field])
			}
			rows = append(rows, r)
		}
	}
	return rows
}

func fields(s scoring.Summary) []string {
	var out []string
	for k := range s {
		if k != result.KeyScore {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	if _, ok := s[result.KeyScore]; ok {
		out = append([]string{result.KeyScore}, out...)
	}
	return out
}

func formatValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// Render writes entries as "table", "markdown" or "json".
func Render(entries []*Entry, format string, w io.Writer) error {
	switch format {
	case "json":
		return writeJSON(entries, w)
	case "markdown":
		return writeTable(Rows(entries), w, true)
	default:
		return writeTable(Rows(entries), w, false)
	}
}

func writeTable(rows []Row, w io.Writer, markdown bool) error {
	table := newTable([]string{"Task", "Run", "Metric", "Score", "Var"}, w, markdown)
	for _, r := range rows {
		if err := table.Append([]string{r.Task, r.Run, r.Field, r.Score, r.Var}); err != nil {
			return err
		}
	}
	return table.Render()
}

func newTable(headers []string, w io.Writer, markdown bool) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	opts := []tablewriter.Option{
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	}
	if markdown {
		opts = append(opts, tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}))
	}
	return tablewriter.NewTable(w, opts...)
}

func writeJSON(entries []*Entry, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
