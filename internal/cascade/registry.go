// Package cascade implements tiered task routing and bounded, auditable
// escalation. A task is classified, routed to an initial tier, and may be
// escalated one tier at a time while its full conversation history is
// carried forward.
package cascade

import (
	"fmt"

	"github.com/ShayCichocki/cascade/internal/config"
	"github.com/ShayCichocki/cascade/pkg/models"
)

// Registry maps tier names to their backend and model bindings.
// It is built once from configuration and read-only afterwards, so it is
// safe for unsynchronized concurrent reads.
type Registry struct {
	tiers       map[models.Tier]models.ModelTier
	defaultTier models.Tier
}

// NewRegistry builds a Registry from an active cascades configuration.
func NewRegistry(cc *config.CascadeConfig) (*Registry, error) {
	if cc == nil {
		return nil, fmt.Errorf("cascades configuration is absent")
	}
	if err := cc.Validate(); err != nil {
		return nil, err
	}

	tiers := make(map[models.Tier]models.ModelTier, len(cc.Tiers))
	for _, td := range cc.Tiers {
		name, _ := models.ParseTier(td.Name)
		ids := append([]string{}, td.ModelIDs...)
		tiers[name] = models.ModelTier{
			Name:              name,
			BackendID:         td.BackendID,
			ModelIDs:          ids,
			MaxCostPerRequest: td.MaxCostPerRequest,
		}
	}

	defaultTier, _ := models.ParseTier(cc.DefaultTier)

	return &Registry{
		tiers:       tiers,
		defaultTier: defaultTier,
	}, nil
}

// TierFor returns the ModelTier serving the given tier name.
func (r *Registry) TierFor(name models.Tier) (models.ModelTier, bool) {
	mt, ok := r.tiers[name]
	return mt, ok
}

// Default returns the ModelTier for the configured default tier.
func (r *Registry) Default() models.ModelTier {
	return r.tiers[r.defaultTier]
}

// DefaultTier returns the configured default tier name.
func (r *Registry) DefaultTier() models.Tier {
	return r.defaultTier
}

// Tiers returns the configured tier names in ascending rank order.
func (r *Registry) Tiers() []models.Tier {
	var out []models.Tier
	for _, t := range []models.Tier{models.TierLight, models.TierMedium, models.TierHeavy} {
		if _, ok := r.tiers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
