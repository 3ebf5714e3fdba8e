package config

import (
	"fmt"
	"time"

	"github.com/ShayCichocki/cascade/pkg/models"
)

// EscalationPolicy constrains which tier transitions an escalation
// request may make.
type EscalationPolicy string

const (
	// PolicyAllowAll permits any single-step upward escalation.
	PolicyAllowAll EscalationPolicy = "allow_all"
	// PolicyLightToMediumOnly permits only light -> medium.
	PolicyLightToMediumOnly EscalationPolicy = "light_to_medium_only"
	// PolicyMediumToHeavyOnly permits only medium -> heavy.
	PolicyMediumToHeavyOnly EscalationPolicy = "medium_to_heavy_only"
)

// Valid returns true if the policy is a known value.
func (p EscalationPolicy) Valid() bool {
	switch p {
	case PolicyAllowAll, PolicyLightToMediumOnly, PolicyMediumToHeavyOnly:
		return true
	default:
		return false
	}
}

// Permits reports whether the policy allows escalating from one tier to
// the next. It assumes the transition is already a single upward step.
func (p EscalationPolicy) Permits(from, to models.Tier) bool {
	switch p {
	case PolicyAllowAll:
		return true
	case PolicyLightToMediumOnly:
		return from == models.TierLight && to == models.TierMedium
	case PolicyMediumToHeavyOnly:
		return from == models.TierMedium && to == models.TierHeavy
	default:
		return false
	}
}

// RoutingPolicy tunes how aggressively the router trusts the classifier.
type RoutingPolicy string

const (
	// RoutingConservative routes ambiguous classifications to Medium.
	RoutingConservative RoutingPolicy = "conservative"
	// RoutingAggressive routes strictly by classified level.
	RoutingAggressive RoutingPolicy = "aggressive"
)

// CostLimits caps cascade spend.
type CostLimits struct {
	// MaxPerTask is the USD ceiling across one cascade's lifetime (0 = no cap).
	MaxPerTask float64 `mapstructure:"max_per_task"`
}

// TierDef is one tier entry from the cascades configuration section.
type TierDef struct {
	Name              string   `mapstructure:"name"`
	BackendID         string   `mapstructure:"backend_id"`
	ModelIDs          []string `mapstructure:"model_ids"`
	MaxCostPerRequest float64  `mapstructure:"max_cost_per_request"`
}

// CascadeConfig is the parsed cascades section. It is loaded once at
// process start and immutable thereafter.
type CascadeConfig struct {
	RoutingPolicy           RoutingPolicy    `mapstructure:"routing_policy"`
	EscalationPolicy        EscalationPolicy `mapstructure:"escalation_policy"`
	DefaultTier             string           `mapstructure:"default_tier"`
	EscalationNeedsApproval bool             `mapstructure:"escalation_needs_approval"`
	ConfidenceThreshold     float64          `mapstructure:"confidence_threshold"`
	MaxLifetime             time.Duration    `mapstructure:"max_lifetime"`
	CostLimits              *CostLimits      `mapstructure:"cost_limits"`
	Tiers                   []TierDef        `mapstructure:"tiers"`
}

// applyCascadeDefaults fills unset fields of a present cascades section.
func applyCascadeDefaults(cc *CascadeConfig) {
	if cc == nil {
		return
	}
	if cc.RoutingPolicy == "" {
		cc.RoutingPolicy = RoutingConservative
	}
	if cc.EscalationPolicy == "" {
		cc.EscalationPolicy = PolicyAllowAll
	}
	if cc.DefaultTier == "" {
		cc.DefaultTier = string(models.TierMedium)
	}
	if cc.ConfidenceThreshold == 0 {
		cc.ConfidenceThreshold = 0.7
	}
	if cc.MaxLifetime == 0 {
		cc.MaxLifetime = DefaultCascadeLifetime
	}
}

// Validate checks an active cascades section. An enabled cascade needs
// all three tiers configured so escalation always has a landing spot.
func (cc *CascadeConfig) Validate() error {
	if cc == nil {
		return nil
	}

	if !cc.EscalationPolicy.Valid() {
		return fmt.Errorf("unknown escalation_policy: %q", cc.EscalationPolicy)
	}

	if _, err := models.ParseTier(cc.DefaultTier); err != nil {
		return fmt.Errorf("default_tier: %w", err)
	}

	if cc.ConfidenceThreshold < 0 || cc.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0.0 and 1.0, got %v", cc.ConfidenceThreshold)
	}

	if len(cc.Tiers) == 0 {
		return fmt.Errorf("cascades enabled but no tiers configured")
	}

	seen := make(map[models.Tier]bool)
	for i, td := range cc.Tiers {
		name, err := models.ParseTier(td.Name)
		if err != nil {
			return fmt.Errorf("tiers[%d]: %w", i, err)
		}
		if seen[name] {
			return fmt.Errorf("tiers[%d]: duplicate tier %q", i, name)
		}
		seen[name] = true
		if td.BackendID == "" {
			return fmt.Errorf("tiers[%d] (%s): backend_id is required", i, name)
		}
		if len(td.ModelIDs) == 0 {
			return fmt.Errorf("tiers[%d] (%s): at least one model_id is required", i, name)
		}
	}

	for _, required := range []models.Tier{models.TierLight, models.TierMedium, models.TierHeavy} {
		if !seen[required] {
			return fmt.Errorf("missing required tier configuration: %s", required)
		}
	}

	return nil
}
