package models

// ComplexityLevel classifies how demanding a task is expected to be.
type ComplexityLevel string

const (
	// LevelLight indicates a simple task with clear, shallow structure.
	LevelLight ComplexityLevel = "light"
	// LevelMedium indicates a standard task, and is the conservative default.
	LevelMedium ComplexityLevel = "medium"
	// LevelHeavy indicates a complex, multi-phase task.
	LevelHeavy ComplexityLevel = "heavy"
)

// Valid returns true if the level is a known value.
func (l ComplexityLevel) Valid() bool {
	switch l {
	case LevelLight, LevelMedium, LevelHeavy:
		return true
	default:
		return false
	}
}

// Tier returns the tier that directly corresponds to this level.
func (l ComplexityLevel) Tier() Tier {
	switch l {
	case LevelLight:
		return TierLight
	case LevelHeavy:
		return TierHeavy
	default:
		return TierMedium
	}
}

// ComplexityMetrics holds the raw signals the analyzer derived from
// the task text. Metrics are derived once and not independently mutable.
type ComplexityMetrics struct {
	// StructuralDepth estimates nesting/sequencing depth on a 1-5 scale.
	StructuralDepth int `json:"structural_depth"`
	// ActionDensity counts distinct action verbs found in the task.
	ActionDensity int `json:"action_density"`
	// CodeSignalScore is 0 (no code), 0.5 (simple code), or 1.0 (complex code).
	CodeSignalScore float64 `json:"code_signal_score"`
	// ConceptCount counts unique domain concepts referenced by the task.
	ConceptCount int `json:"concept_count"`
}

// TaskComplexity is the analyzer's verdict for one task. It is created
// once per task and never mutated.
type TaskComplexity struct {
	// Level is the classified complexity band.
	Level ComplexityLevel `json:"level"`
	// Confidence is the classifier's certainty in [0,1].
	Confidence float64 `json:"confidence"`
	// Reasoning is a short human-readable explanation citing the
	// signals that dominated the classification.
	Reasoning string `json:"reasoning"`
	// Metrics holds the raw signals behind the score.
	Metrics ComplexityMetrics `json:"metrics"`
}
