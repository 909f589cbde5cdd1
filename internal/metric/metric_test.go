package metric_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/editbench/internal/metric"
	"github.com/signalnine/editbench/internal/parse"
)

func crit(score any) string {
	return fmt.Sprintf(`{"reason": "r", "score": %v}`, score)
}

func TestBilliardsFormula(t *testing.T) {
	spec := metric.NewSpec("Billiards", "p.txt")
	for _, cp := range []int{0, 1} {
		for _, pc := range []int{0, 1} {
			for _, cc := range []int{0, 1} {
				text := fmt.Sprintf(`{"Context_Preservation": %s, "Path_Correctness": %s, "Collision_Correctness": %s}`,
					crit(cp), crit(pc), crit(cc))
				p, err := spec.Parse(text)
				require.NoError(t, err)
				want := metric.Round(float64(cp)*float64(pc+cc)/2, 4)
				assert.Equal(t, want, p.Score, "cp=%d pc=%d cc=%d", cp, pc, cc)
			}
		}
	}

	p, err := spec.Parse(fmt.Sprintf(`{"Context_Preservation": %s, "Path_Correctness": %s, "Collision_Correctness": %s}`,
		crit(1), crit(1), crit(0)))
	require.NoError(t, err)
	assert.Equal(t, 0.5, p.Score)
}

func TestPoseConsistency(t *testing.T) {
	spec := metric.NewSpec("Pose_Consistency", "p.txt")
	tests := []struct {
		name   string
		joints [4]string
		want   float64
	}{
		{"two match one mismatch one na", [4]string{"MATCH", "MATCH", "MISMATCH", "N/A"}, 0.6667},
		{"all na", [4]string{"N/A", "N/A", "N/A", "N/A"}, 0},
		{"all match", [4]string{"MATCH", "MATCH", "MATCH", "MATCH"}, 1},
		{"padded verdicts", [4]string{" MATCH", "MISMATCH ", "MISMATCH", "MISMATCH"}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := fmt.Sprintf(`{"Pose_Consistency": {"Left_Arm": %q, "Right_Arm": %q, "Left_Leg": %q, "Right_Leg": %q}}`,
				tt.joints[0], tt.joints[1], tt.joints[2], tt.joints[3])
			p, err := spec.Parse(text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Score)
		})
	}

	_, err := spec.Parse(`{"Pose_Consistency": {"Left_Arm": "MATCH", "Right_Arm": "YES", "Left_Leg": "N/A", "Right_Leg": "N/A"}}`)
	var ve *metric.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestOrientationAlignmentIgnoresUnmodifiedAxes(t *testing.T) {
	spec := metric.NewSpec("Orientation_Alignment", "p.txt")
	axis := func(score int, needs bool) string {
		return fmt.Sprintf(`{"reason": "r", "score": %d, "needs_modification": %t}`, score, needs)
	}

	p, err := spec.Parse(fmt.Sprintf(`{"Yaw": %s, "Pitch": %s, "Roll": %s}`, axis(1, true), axis(0, false), axis(0, true)))
	require.NoError(t, err)
	assert.Equal(t, 0.5, p.Score)

	p, err = spec.Parse(fmt.Sprintf(`{"Yaw": %s, "Pitch": %s, "Roll": %s}`, axis(1, false), axis(1, false), axis(1, false)))
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Score)

	_, err = spec.Parse(`{"Yaw": {"score": 1, "needs_modification": "yes"}, "Pitch": {}, "Roll": {}}`)
	assert.Error(t, err)
}

func TestMeanMetrics(t *testing.T) {
	tests := []struct {
		metric string
		body   string
		want   float64
	}{
		{"Instruction_Adherence", fmt.Sprintf(`{"Visual_Instruction_Localization_Correctness": %s, "Visual_Operator_Type_Compliance": %s, "Textual_Action_Semantic_Compliance": %s}`, crit(1), crit(0.5), crit(0)), 0.5},
		{"Visual_Coherence", fmt.Sprintf(`{"Style_Consistency": %s, "Visual_Seamlessness": %s, "Artifact-Free_Generation": %s}`, crit(1), crit(1), crit(0)), 0.6667},
		{"BII_CIC_CP", fmt.Sprintf(`{"Body Instance Integrity": %s, "Character Identity Consistency": %s, "Context Preservation": %s}`, crit(1), crit(0), crit(0)), 0.3333},
		{"Light_Direction_Consistency", fmt.Sprintf(`{"Direction_Matching_Consistency": %s, "Physical_Lighting_Consistency": %s}`, crit(1), crit(0)), 0.5},
		{"Wind_Contextual_Preservation", fmt.Sprintf(`{"Wind-Identity_Preservation": %s, "Wind-Other_Preservation": %s}`, crit(0.5), crit(1)), 0.75},
		{"Reorientation_Contextual_Preservation", fmt.Sprintf(`{"Identity_Consistency": %s, "Visual_Integrity": %s}`, crit(`"0.5"`), crit(0.5)), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			p, err := metric.NewSpec(tt.metric, "p.txt").Parse(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Score)
		})
	}
}

func TestDomainIsEnforced(t *testing.T) {
	body := fmt.Sprintf(`{"Style_Consistency": %s, "Visual_Seamlessness": %s, "Artifact-Free_Generation": %s}`, crit(1), crit(0.5), crit(1))
	_, err := metric.NewSpec("Visual_Coherence", "p.txt").Parse(body)
	var ve *metric.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Msg, "Visual_Seamlessness")
}

func TestMissingKeyFailsWholeParse(t *testing.T) {
	body := fmt.Sprintf(`{"Direction_Matching_Consistency": %s}`, crit(1))
	p, err := metric.NewSpec("Light_Direction_Consistency", "p.txt").Parse(body)
	assert.Nil(t, p)
	assert.ErrorContains(t, err, "missing keys")
}

func TestGenericSingleKeyMetric(t *testing.T) {
	spec := metric.NewSpec("Semantic_Fidelity", "p.txt")
	assert.Equal(t, metric.KindGeneric, spec.Kind)
	assert.Equal(t, metric.ImagesAll, spec.Images)

	p, err := spec.Parse("Verdict:\n```json\n{\"Semantic_Fidelity\": {\"reason\": \"close\", \"score\": 0.5}}\n```")
	require.NoError(t, err)
	assert.Equal(t, 0.5, p.Score)
	reason, _ := p.Value("reason")
	assert.Equal(t, "close", reason)

	_, err = spec.Parse(`{"Other": {"score": 1}}`)
	assert.ErrorContains(t, err, "missing key: Semantic_Fidelity")

	_, err = spec.Parse("no verdict today")
	assert.True(t, errors.Is(err, parse.ErrNoJSON))
}

func TestPayloadMarshalKeepsSchemaOrder(t *testing.T) {
	body := fmt.Sprintf(`{"Collision_Correctness": %s, "Path_Correctness": %s, "Context_Preservation": %s}`, crit(1), crit(1), crit(1))
	p, err := metric.NewSpec("Billiards", "p.txt").Parse(body)
	require.NoError(t, err)
	got, err := json.Marshal(p)
	require.NoError(t, err)
	want := `{"Context_Preservation":{"reason":"r","score":1},"Path_Correctness":{"reason":"r","score":1},"Collision_Correctness":{"reason":"r","score":1},"score":1}`
	if diff := cmp.Diff(want, string(got)); diff != "" {
		t.Errorf("payload JSON mismatch (-want +got):\n%s", diff)
	}
}

func TestSkippedPayload(t *testing.T) {
	got, err := json.Marshal(metric.Skipped("Skipped because Instruction_Adherence.score == 0", 0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"reason": "Skipped because Instruction_Adherence.score == 0", "score": 0}`, string(got))
}

func TestIsAlreadyDone(t *testing.T) {
	assert.True(t, metric.IsAlreadyDone(json.RawMessage(`{"reason": "x", "score": 0}`)))
	assert.False(t, metric.IsAlreadyDone(json.RawMessage(`{"error": "bad", "raw": "..."}`)))
	assert.False(t, metric.IsAlreadyDone(json.RawMessage(`0.5`)))
	assert.False(t, metric.IsAlreadyDone(nil))
}

func TestParseBindings(t *testing.T) {
	got, err := metric.ParseBindings([]string{"Instruction_Adherence=/p/ia.txt", " Visual_Coherence = /p/vc.txt ", "Instruction_Adherence=/p/ia2.txt"})
	require.NoError(t, err)
	want := []metric.Binding{
		{Name: "Instruction_Adherence", PromptPath: "/p/ia2.txt"},
		{Name: "Visual_Coherence", PromptPath: "/p/vc.txt"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("bindings mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"NoEquals", "=/p.txt", "Name="} {
		_, err := metric.ParseBindings([]string{bad})
		assert.ErrorIs(t, err, metric.ErrInvalidBinding, bad)
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.6667, metric.Round(2.0/3.0, 4))
	assert.Equal(t, 0.3333, metric.Round(1.0/3.0, 4))
	assert.Equal(t, 43.21, metric.Round(43.205, 2))
	assert.Equal(t, 100.0, metric.Round(100, 4))
}

func TestRegisterCustomMetric(t *testing.T) {
	metric.Register("Flow_Direction", metric.Descriptor{
		Kind:   metric.KindLightDirection,
		Keys:   []string{"Direction", "Volume"},
		Domain: []float64{0, 1},
		Rule:   metric.RuleMean,
		Images: metric.ImagesReferenceGenerated,
	})
	assert.Contains(t, metric.Registered(), "Flow_Direction")
	p, err := metric.NewSpec("Flow_Direction", "p.txt").Parse(fmt.Sprintf(`{"Direction": %s, "Volume": %s}`, crit(1), crit(1)))
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Score)
}
