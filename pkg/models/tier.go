package models

import "fmt"

// Tier represents a capability tier for task execution.
type Tier string

const (
	// TierLight is for simple, low-cost tasks.
	TierLight Tier = "light"
	// TierMedium is for standard tasks and the conservative default.
	TierMedium Tier = "medium"
	// TierHeavy is for complex tasks requiring maximum capability.
	TierHeavy Tier = "heavy"
)

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	switch t {
	case TierLight, TierMedium, TierHeavy:
		return true
	default:
		return false
	}
}

// Rank returns the ordinal position of the tier. Higher rank means
// more capability. Unknown tiers rank below Light.
func (t Tier) Rank() int {
	switch t {
	case TierLight:
		return 1
	case TierMedium:
		return 2
	case TierHeavy:
		return 3
	default:
		return 0
	}
}

// Next returns the tier one rank above, or false if already at Heavy.
func (t Tier) Next() (Tier, bool) {
	switch t {
	case TierLight:
		return TierMedium, true
	case TierMedium:
		return TierHeavy, true
	default:
		return "", false
	}
}

// ParseTier converts a string to a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier: %q", s)
	}
	return t, nil
}

// ModelTier binds a tier name to a concrete backend and its models.
// ModelTiers are owned by the tier registry, loaded once at startup,
// and never mutated at runtime.
type ModelTier struct {
	// Name is the tier this entry serves.
	Name Tier `json:"name"`
	// BackendID selects the execution backend implementation.
	BackendID string `json:"backend_id"`
	// ModelIDs lists concrete model identifiers in preference order.
	ModelIDs []string `json:"model_ids"`
	// MaxCostPerRequest is the per-request cost ceiling in USD (0 = no cap).
	MaxCostPerRequest float64 `json:"max_cost_per_request"`
}

// PrimaryModel returns the first configured model identifier.
func (m ModelTier) PrimaryModel() string {
	if len(m.ModelIDs) == 0 {
		return ""
	}
	return m.ModelIDs[0]
}
