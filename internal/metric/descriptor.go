// Package metric defines the rubric metrics a judge is asked to score, the
// schema each verdict must satisfy and the formula that turns a validated
// verdict into a score in [0,1].
package metric

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind identifies a metric's validation and scoring behavior.
type Kind int

const (
	KindGeneric Kind = iota
	KindInstructionAdherence
	KindVisualCoherence
	KindBodyIdentityContext
	KindLightDirection
	KindWindContextual
	KindReorientationContextual
	KindPoseConsistency
	KindOrientationAlignment
	KindBilliards
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindInstructionAdherence:
		return "instruction_adherence"
	case KindVisualCoherence:
		return "visual_coherence"
	case KindBodyIdentityContext:
		return "bii_cic_cp"
	case KindLightDirection:
		return "light_direction"
	case KindWindContextual:
		return "wind_contextual"
	case KindReorientationContextual:
		return "reorientation_contextual"
	case KindPoseConsistency:
		return "pose_consistency"
	case KindOrientationAlignment:
		return "orientation_alignment"
	case KindBilliards:
		return "billiards"
	case KindRaw:
		return "raw"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Rule is the aggregation applied to the validated sub-scores.
type Rule int

const (
	// RuleSingle expects {"<Metric>": {"reason", "score"}} and keeps the score.
	RuleSingle Rule = iota
	// RuleMean averages the score of every key.
	RuleMean
	// RuleMatchRatio counts MATCH over MATCH+MISMATCH verdicts; N/A is excluded.
	RuleMatchRatio
	// RuleNeedsModification averages scores of keys flagged needs_modification.
	RuleNeedsModification
	// RuleBilliards is Context_Preservation * (Path_Correctness + Collision_Correctness) / 2.
	RuleBilliards
)

// ImageSet selects which images accompany the rubric text.
type ImageSet int

const (
	// ImagesAll sends source, reference (composite, raw overlay or target) and generated.
	ImagesAll ImageSet = iota
	// ImagesReferenceGenerated sends only the reference and generated images.
	ImagesReferenceGenerated
	// ImagesSourceGenerated sends only the source and generated images.
	ImagesSourceGenerated
)

// Descriptor is the immutable schema of one metric.
type Descriptor struct {
	Kind   Kind
	Keys   []string
	Domain []float64
	Rule   Rule
	Images ImageSet
}

var (
	binary    = []float64{0, 1}
	halfSteps = []float64{0, 0.5, 1}
)

// Verdicts accepted for every pose joint.
const (
	Match    = "MATCH"
	Mismatch = "MISMATCH"
	NotApply = "N/A"
)

var table = map[string]Descriptor{
	"Instruction_Adherence": {
		Kind: KindInstructionAdherence,
		Keys: []string{
			"Visual_Instruction_Localization_Correctness",
			"Visual_Operator_Type_Compliance",
			"Textual_Action_Semantic_Compliance",
		},
		Domain: halfSteps,
		Rule:   RuleMean,
	},
	"Visual_Coherence": {
		Kind:   KindVisualCoherence,
		Keys:   []string{"Style_Consistency", "Visual_Seamlessness", "Artifact-Free_Generation"},
		Domain: binary,
		Rule:   RuleMean,
	},
	"BII_CIC_CP": {
		Kind:   KindBodyIdentityContext,
		Keys:   []string{"Body Instance Integrity", "Character Identity Consistency", "Context Preservation"},
		Domain: binary,
		Rule:   RuleMean,
		Images: ImagesSourceGenerated,
	},
	"Light_Direction_Consistency": {
		Kind:   KindLightDirection,
		Keys:   []string{"Direction_Matching_Consistency", "Physical_Lighting_Consistency"},
		Domain: binary,
		Rule:   RuleMean,
		Images: ImagesReferenceGenerated,
	},
	"Wind_Contextual_Preservation": {
		Kind:   KindWindContextual,
		Keys:   []string{"Wind-Identity_Preservation", "Wind-Other_Preservation"},
		Domain: halfSteps,
		Rule:   RuleMean,
		Images: ImagesReferenceGenerated,
	},
	"Reorientation_Contextual_Preservation": {
		Kind:   KindReorientationContextual,
		Keys:   []string{"Identity_Consistency", "Visual_Integrity"},
		Domain: halfSteps,
		Rule:   RuleMean,
		Images: ImagesReferenceGenerated,
	},
	"Pose_Consistency": {
		Kind:   KindPoseConsistency,
		Keys:   []string{"Left_Arm", "Right_Arm", "Left_Leg", "Right_Leg"},
		Rule:   RuleMatchRatio,
		Images: ImagesReferenceGenerated,
	},
	"Orientation_Alignment": {
		Kind:   KindOrientationAlignment,
		Keys:   []string{"Yaw", "Pitch", "Roll"},
		Domain: binary,
		Rule:   RuleNeedsModification,
		Images: ImagesReferenceGenerated,
	},
	"Billiards": {
		Kind:   KindBilliards,
		Keys:   []string{"Context_Preservation", "Path_Correctness", "Collision_Correctness"},
		Domain: binary,
		Rule:   RuleBilliards,
		Images: ImagesReferenceGenerated,
	},
	// Generic single-key metrics that compare against the reference only.
	"Contextual_Preservation": {
		Kind:   KindGeneric,
		Domain: halfSteps,
		Rule:   RuleSingle,
		Images: ImagesReferenceGenerated,
	},
	"Wind_Direction_Consistency": {
		Kind:   KindGeneric,
		Domain: halfSteps,
		Rule:   RuleSingle,
		Images: ImagesReferenceGenerated,
	},
}

// Register binds name to d, replacing any existing descriptor. It is not
// safe to call concurrently with Lookup.
func Register(name string, d Descriptor) {
	table[name] = d
}

// Lookup returns the descriptor registered for name, falling back to a
// generic single-key descriptor.
func Lookup(name string) Descriptor {
	d, ok := table[name]
	if !ok {
		d = Descriptor{Kind: KindGeneric, Domain: halfSteps, Rule: RuleSingle}
	}
	if d.Rule == RuleSingle && len(d.Keys) == 0 {
		d.Keys = []string{name}
	}
	return d
}

// Registered returns the names of all registered metrics, sorted.
func Registered() []string {
	names := make([]string, 0, len(table))
	for n := range table {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Round rounds x to places decimals after adding a 1e-12 bias, so values that
// land a hair below a half due to binary representation round up. Decimal
// conversion is exact, matching round-half-even on the biased binary value.
func Round(x float64, places int) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(x+1e-12, 'f', places, 64), 64)
	if err != nil {
		return x
	}
	return v
}
