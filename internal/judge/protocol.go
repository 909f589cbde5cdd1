package judge

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/signalnine/editbench/internal/annotation"
	"github.com/signalnine/editbench/internal/imaging"
	"github.com/signalnine/editbench/internal/metric"
)

// ErrRetriesExhausted is returned when the judge never produced a usable
// answer within the retry ceiling. Callers abort the run.
var ErrRetriesExhausted = errors.New("judge retries exhausted")

// SampleError is a configuration problem with one sample, such as a missing
// annotation record or source image. It is never retried.
type SampleError struct {
	SampleID string
	Msg      string
}

func (e *SampleError) Error() string { return e.Msg }

// FatalError is a provider failure that retrying cannot fix.
type FatalError struct {
	Failure Failure
	Err     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("judge call failed (%s): %v", e.Failure, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Layout selects how the reference images of a task are built.
type Layout string

const (
	// LayoutAuto uses LayoutPaired for records with a target, else LayoutComposite.
	LayoutAuto Layout = ""
	// LayoutComposite sends the source and the source with its overlay composited on top.
	LayoutComposite Layout = "composite"
	// LayoutPaired sends the input and the annotated target image.
	LayoutPaired Layout = "paired"
	// LayoutPose sends the source and the raw overlay resized to the source.
	LayoutPose Layout = "pose"
)

// ResidualClause is the Visual_Coherence rubric bullet removed for tasks
// whose overlays are expected to disappear from the result.
const ResidualClause = "- residual visual instruction marks such as arrows, boxes, strokes, or masks that should not appear in the final image."

// Task locates the annotation index and images of one benchmark task.
type Task struct {
	Name                string
	Annotations         *annotation.Index
	TaskDir             string
	ImageRoot           string
	Layout              Layout
	StripResidualClause bool
}

// Call is one (sample, metric) judgment.
type Call struct {
	Task          *Task
	SampleID      string
	InputPrompt   string
	Metric        *metric.Spec
	GeneratedPath string
}

// Outcome is the result of a finished call loop. Payload is nil for metrics
// without a parser.
type Outcome struct {
	Payload  *metric.Payload
	Text     string
	Attempts int
	Usage    Usage
}

// Protocol drives the bounded call loop for one metric at a time.
type Protocol struct {
	Client Client
	Model  string
	Detail string
	Policy RetryPolicy

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Evaluate builds the judge request for c and calls the judge until the
// metric parser accepts an answer or the policy gives up.
func (p *Protocol) Evaluate(ctx context.Context, c *Call) (*Outcome, error) {
	req, err := p.Request(ctx, c)
	if err != nil {
		return nil, err
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	log := clog.FromContext(ctx).With("task", c.Task.Name, "sample", c.SampleID, "metric", c.Metric.Name)

	out := &Outcome{}
	for {
		out.Attempts++
		failure, lastErr := p.attempt(ctx, c.Metric, req, out)
		step := p.Policy.Transition(out.Attempts, failure)
		switch step.Phase {
		case PhaseSucceeded:
			return out, nil
		case PhaseFatal:
			if step.Exhausted {
				return nil, fmt.Errorf("metric %s on sample %s after %d attempts (last: %v): %w",
					c.Metric.Name, c.SampleID, out.Attempts, lastErr, ErrRetriesExhausted)
			}
			return nil, &FatalError{Failure: failure, Err: lastErr}
		}
		log.Warn("judge attempt failed",
			"attempt", out.Attempts, "class", failure.String(), "backoff", step.Backoff, "error", lastErr)
		if step.Backoff > 0 {
			if err := sleep(ctx, step.Backoff); err != nil {
				return nil, err
			}
		}
	}
}

// attempt performs one call and, when it succeeds, one parse.
func (p *Protocol) attempt(ctx context.Context, m *metric.Spec, req *Request, out *Outcome) (Failure, error) {
	resp, err := p.Client.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return FailureUnclassified, ctx.Err()
		}
		return Classify(err), err
	}
	out.Usage.Add(resp.Usage)
	out.Text = resp.Text
	if !m.HasParser() {
		return FailureNone, nil
	}
	payload, err := m.Parse(resp.Text)
	if err != nil {
		return FailureParse, err
	}
	out.Payload = payload
	return FailureNone, nil
}

// Request assembles the rubric text and image set for c.
func (p *Protocol) Request(ctx context.Context, c *Call) (*Request, error) {
	t := c.Task
	rec, ok := t.Annotations.Lookup(c.SampleID)
	if !ok {
		return nil, &SampleError{SampleID: c.SampleID,
			Msg: fmt.Sprintf("annotation item not found: task=%s id=%s", t.Name, c.SampleID)}
	}
	source, reference, err := t.references(ctx, c.SampleID, rec)
	if err != nil {
		return nil, err
	}
	generated := loadGenerated(ctx, c.GeneratedPath, source)

	var set []image.Image
	switch c.Metric.Images {
	case metric.ImagesReferenceGenerated:
		set = []image.Image{reference, generated}
	case metric.ImagesSourceGenerated:
		set = []image.Image{source, generated}
	default:
		set = []image.Image{source, reference, generated}
	}
	urls := make([]string, 0, len(set))
	for _, img := range set {
		u, err := imaging.DataURL(img)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}

	text, err := p.rubric(c)
	if err != nil {
		return nil, err
	}
	return &Request{Model: p.Model, Text: text, Images: urls, Detail: p.Detail}, nil
}

func (p *Protocol) rubric(c *Call) (string, error) {
	data, err := os.ReadFile(c.Metric.PromptPath)
	if err != nil {
		return "", fmt.Errorf("reading prompt for %s: %w", c.Metric.Name, err)
	}
	text := strings.TrimSpace(string(data))
	if c.Metric.Kind == metric.KindVisualCoherence && c.Task.StripResidualClause {
		text = strings.ReplaceAll(text, ResidualClause, "")
	}
	if c.InputPrompt != "" {
		text = strings.ReplaceAll(text, "{prompt}", c.InputPrompt)
	}
	return text, nil
}

// references returns the source (or input) image and the reference image
// compared against the generated result.
func (t *Task) references(ctx context.Context, id string, rec *annotation.Record) (image.Image, image.Image, error) {
	sourcePath := filepath.Join(t.ImageRoot, rec.FilePaths.Source)
	source, err := imaging.Load(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &SampleError{SampleID: id, Msg: "missing source image: " + sourcePath}
		}
		return nil, nil, &SampleError{SampleID: id, Msg: err.Error()}
	}

	layout := t.Layout
	if layout == LayoutAuto {
		layout = LayoutComposite
		if rec.FilePaths.Target != "" {
			layout = LayoutPaired
		}
	}

	switch layout {
	case LayoutPaired:
		targetPath := filepath.Join(t.TaskDir, rec.FilePaths.Target)
		target, err := imaging.Load(targetPath)
		if err != nil {
			return nil, nil, &SampleError{SampleID: id, Msg: "missing target image: " + targetPath}
		}
		return source, target, nil
	case LayoutPose:
		w, h := imaging.Size(source)
		overlay, path, ok := t.overlay(rec)
		if !ok {
			clog.WarnContextf(ctx, "Missing instruction image for %s: %s", t.Name, path)
			return source, imaging.Placeholder(w, h), nil
		}
		if ow, oh := imaging.Size(overlay); ow != w || oh != h {
			overlay = imaging.Resize(overlay, w, h)
		}
		return source, overlay, nil
	default:
		overlay, _, ok := t.overlay(rec)
		if !ok {
			return source, source, nil
		}
		return source, imaging.Compose(source, overlay), nil
	}
}

func (t *Task) overlay(rec *annotation.Record) (image.Image, string, bool) {
	if rec.FilePaths.VisualInstruction == "" {
		return nil, "", false
	}
	path := filepath.Join(t.TaskDir, rec.FilePaths.VisualInstruction)
	img, err := imaging.Load(path)
	if err != nil {
		return nil, path, false
	}
	return img, path, true
}

func loadGenerated(ctx context.Context, path string, source image.Image) image.Image {
	if path != "" {
		if img, err := imaging.Load(path); err == nil {
			return img
		} else if !os.IsNotExist(err) {
			clog.WarnContextf(ctx, "Unreadable generated image %s: %v", path, err)
		}
	}
	w, h := imaging.Size(source)
	return imaging.Placeholder(w, h)
}
