// Package analyzer classifies task descriptions into complexity levels.
// The classifier is a deterministic heuristic: cheap, explainable, and
// sub-millisecond. The initial guess does not need to be perfect because
// the cascade can self-correct via escalation.
package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/ShayCichocki/cascade/pkg/models"
)

// Signal weights for the overall score.
const (
	weightStructuralDepth = 0.35
	weightActionDensity   = 0.35
	weightCodeSignal      = 0.30
)

// Decision boundaries. Scores below lightBoundary classify Light, scores
// above heavyBoundary classify Heavy, both gated on confidence; everything
// else falls to the conservative Medium default.
const (
	lightBoundary       = 0.35
	heavyBoundary       = 0.65
	lightConfidenceGate = 0.80
	heavyConfidenceGate = 0.75
)

// minConfidence is reported for empty input, where absence of signal is
// itself a signal.
const minConfidence = 0.05

// actionVerbs are verb stems counted toward action density. Matching is
// by token prefix so "tests" and "testing" both count as "test".
var actionVerbs = []string{
	"add", "analyze", "architect", "benchmark", "build", "create",
	"debug", "deploy", "design", "document", "fix", "implement",
	"integrate", "migrate", "optimize", "prototype", "refactor",
	"remove", "test", "update", "validate", "verify", "write",
}

// heavyVerbs are verbs that signal structural work rather than point edits.
var heavyVerbs = map[string]bool{
	"architect": true,
	"design":    true,
	"implement": true,
	"integrate": true,
	"migrate":   true,
	"optimize":  true,
	"refactor":  true,
}

// conceptTerms are domain entities counted toward concept density.
var conceptTerms = []string{
	"algorithm", "architecture", "async", "authentication", "byzantine",
	"cache", "concurrency", "consensus", "database", "distributed",
	"encryption", "fault-tolerant", "performance", "protocol", "schema",
	"security", "state machine", "transaction",
}

// sequencingCues indicate ordered, multi-step plans.
var sequencingCues = []string{
	" then ", " after ", " first ", " next ", " finally ", " before ", " with ",
}

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

// codeBranchKeywords estimate cyclomatic complexity inside code blocks.
var codeBranchKeywords = []string{
	"if ", "if(", "for ", "for(", "while ", "while(", "switch ",
	"case ", "match ", "&&", "||", "elif", "else if",
}

// Analyzer scores task text into a complexity classification.
// It is stateless and safe for concurrent use.
type Analyzer struct{}

// New returns an Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Analyze classifies a task description. priorMessages is the number of
// conversation messages that precede the task; deep conversations nudge
// structural depth upward. Empty input yields Light with minimum
// confidence rather than an error.
func (a *Analyzer) Analyze(taskText string, priorMessages int) models.TaskComplexity {
	text := strings.TrimSpace(taskText)
	if text == "" {
		return models.TaskComplexity{
			Level:      models.LevelLight,
			Confidence: minConfidence,
			Reasoning:  "empty task text: no signal present, defaulting to light",
			Metrics: models.ComplexityMetrics{
				StructuralDepth: 1,
			},
		}
	}

	lower := strings.ToLower(text)
	tokens := tokenSplit.Split(lower, -1)

	verbs := matchVerbs(tokens)
	concepts := matchConcepts(lower)

	depthScore := structuralDepthScore(text, lower, len(verbs), len(concepts), priorMessages)
	actionScore := actionDensityScore(verbs)
	codeScore := codeSignalScore(text)

	score := weightStructuralDepth*depthScore +
		weightActionDensity*actionScore +
		weightCodeSignal*codeScore

	confidence := deriveConfidence(score, depthScore, actionScore, codeScore)
	level := classify(score, confidence)

	metrics := models.ComplexityMetrics{
		StructuralDepth: 1 + int(math.Round(4*depthScore)),
		ActionDensity:   len(verbs),
		CodeSignalScore: codeScore,
		ConceptCount:    len(concepts),
	}

	return models.TaskComplexity{
		Level:      level,
		Confidence: confidence,
		Reasoning:  buildReasoning(level, score, verbs, concepts, depthScore, codeScore),
		Metrics:    metrics,
	}
}

// classify applies the confidence-gated decision rule. Ambiguous or
// low-confidence scores always resolve to Medium.
func classify(score, confidence float64) models.ComplexityLevel {
	switch {
	case score < lightBoundary && confidence > lightConfidenceGate:
		return models.LevelLight
	case score > heavyBoundary && confidence > heavyConfidenceGate:
		return models.LevelHeavy
	default:
		return models.LevelMedium
	}
}

// deriveConfidence computes classifier certainty from two inputs: how far
// the score sits from the nearest decision boundary, and how many of the
// three sub-scores fall in the same band as the overall score. Signals
// that disagree with the overall band (e.g. high action density but no
// structural depth) reduce confidence.
//
// confidence = clamp(0.57 + 0.15*agreeing - 0.12*conflicting
//                         + 0.05*min(1, boundaryDistance/0.35))
func deriveConfidence(score, depthScore, actionScore, codeScore float64) float64 {
	band := bandOf(score)
	agreeing, conflicting := 0, 0
	for _, s := range []float64{depthScore, actionScore, codeScore} {
		if bandOf(s) == band {
			agreeing++
		} else {
			conflicting++
		}
	}

	dist := boundaryDistance(score)
	conf := 0.57 + 0.15*float64(agreeing) - 0.12*float64(conflicting) +
		0.05*math.Min(1, dist/lightBoundary)

	if conf > 0.99 {
		conf = 0.99
	}
	if conf < minConfidence {
		conf = minConfidence
	}
	return conf
}

// bandOf places a value in the light/medium/heavy band of the score space.
func bandOf(v float64) int {
	switch {
	case v < lightBoundary:
		return 0
	case v > heavyBoundary:
		return 2
	default:
		return 1
	}
}

// boundaryDistance is how far the score sits from the nearest decision
// boundary. A score deep inside a band is a more certain classification.
func boundaryDistance(score float64) float64 {
	switch {
	case score < lightBoundary:
		return lightBoundary - score
	case score > heavyBoundary:
		return score - heavyBoundary
	default:
		return math.Min(score-lightBoundary, heavyBoundary-score)
	}
}

// structuralDepthScore estimates nesting and sequencing in [0,1].
// A flat single-clause request scores near the 0.1 floor; a multi-phase
// plan with domain concepts scores 0.6-1.0.
func structuralDepthScore(text, lower string, verbCount, conceptCount, priorMessages int) float64 {
	s := 0.0

	clauses := strings.Count(text, ",") + strings.Count(text, ";") + strings.Count(lower, " and ")
	if clauses >= 1 {
		s += 0.15
	}
	if clauses >= 4 {
		s += 0.10
	}

	for _, cue := range sequencingCues {
		if strings.Contains(lower, cue) {
			s += 0.15
			break
		}
	}

	// Three or more distinct action verbs reads as a multi-phase plan.
	if verbCount >= 3 {
		s += 0.30
	}

	if conceptCount >= 2 {
		s += 0.15
	}
	if conceptCount >= 4 {
		s += 0.15
	}

	lines := nonEmptyLines(text)
	if lines > 3 {
		s += 0.15
	}
	if lines > 10 {
		s += 0.10
	}
	if strings.Contains(text, "\n- ") || strings.Contains(text, "\n* ") || strings.Contains(text, "\n1.") {
		s += 0.15
	}

	// Long-running conversations accumulate structure of their own.
	if priorMessages >= 8 {
		s += 0.10
	}

	if s < 0.1 {
		s = 0.1
	}
	return math.Min(s, 1.0)
}

// actionDensityScore converts distinct verb matches to [0,1], saturating
// above five distinct verbs. Heavy verbs carry extra weight because
// "refactor" or "migrate" implies more work than "fix".
func actionDensityScore(verbs []string) float64 {
	heavy := 0
	for _, v := range verbs {
		if heavyVerbs[v] {
			heavy++
		}
	}
	return math.Min(1.0, 0.2*float64(len(verbs))+0.15*float64(heavy))
}

// codeSignalScore returns 0 when no code is present, 0.5 for code with low
// estimated cyclomatic complexity, and 1.0 for code with high complexity.
func codeSignalScore(text string) float64 {
	block := extractCodeBlock(text)
	if block == "" {
		if !looksLikeInlineCode(text) {
			return 0
		}
		block = text
	}

	branches := 0
	lowerBlock := strings.ToLower(block)
	for _, kw := range codeBranchKeywords {
		branches += strings.Count(lowerBlock, kw)
	}

	if branches > 5 {
		return 1.0
	}
	return 0.5
}

// extractCodeBlock returns the contents of the first fenced code block,
// or "" if none is present.
func extractCodeBlock(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return rest
	}
	return rest[:end]
}

// looksLikeInlineCode detects unfenced code pasted directly into the task.
func looksLikeInlineCode(text string) bool {
	codeLines := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasSuffix(trimmed, "{") || strings.HasSuffix(trimmed, ";") ||
			strings.HasPrefix(trimmed, "func ") || strings.HasPrefix(trimmed, "def ") ||
			strings.HasPrefix(trimmed, "fn ") || strings.HasPrefix(trimmed, "class ") {
			codeLines++
		}
	}
	return codeLines >= 3
}

func matchVerbs(tokens []string) []string {
	seen := make(map[string]bool)
	var matched []string
	for _, tok := range tokens {
		for _, stem := range actionVerbs {
			if seen[stem] {
				continue
			}
			if strings.HasPrefix(tok, stem) {
				seen[stem] = true
				matched = append(matched, stem)
			}
		}
	}
	return matched
}

func matchConcepts(lower string) []string {
	var matched []string
	for _, term := range conceptTerms {
		if strings.Contains(lower, term) {
			matched = append(matched, term)
		}
	}
	return matched
}

func nonEmptyLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// buildReasoning produces a short explanation citing the dominant signals.
func buildReasoning(level models.ComplexityLevel, score float64, verbs, concepts []string, depthScore, codeScore float64) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("score %.2f -> %s", score, level))

	if len(verbs) > 0 {
		parts = append(parts, fmt.Sprintf("%d action verb(s): %s", len(verbs), strings.Join(verbs, ", ")))
	} else {
		parts = append(parts, "no action verbs")
	}

	switch {
	case depthScore >= 0.6:
		parts = append(parts, "multi-phase structure")
	case depthScore <= 0.2:
		parts = append(parts, "flat structure")
	}

	if len(concepts) > 0 {
		parts = append(parts, fmt.Sprintf("concepts: %s", strings.Join(concepts, ", ")))
	}

	switch codeScore {
	case 1.0:
		parts = append(parts, "complex code present")
	case 0.5:
		parts = append(parts, "code present")
	}

	return strings.Join(parts, "; ")
}
