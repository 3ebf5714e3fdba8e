package cascade

import (
	"github.com/ShayCichocki/cascade/internal/config"
	"github.com/ShayCichocki/cascade/pkg/models"
)

// Router maps a complexity classification to an initial tier.
//
// The single most important safety property of the subsystem lives here:
// any classification below the confidence threshold resolves to Medium,
// regardless of its raw level. A cheap heuristic classifier is allowed to
// be wrong; it is not allowed to be confidently cheap.
type Router struct {
	registry            *Registry
	policy              config.RoutingPolicy
	confidenceThreshold float64
}

// NewRouter creates a Router over the given registry.
func NewRouter(registry *Registry, cc *config.CascadeConfig) *Router {
	threshold := 0.7
	policy := config.RoutingConservative
	if cc != nil {
		if cc.ConfidenceThreshold > 0 {
			threshold = cc.ConfidenceThreshold
		}
		if cc.RoutingPolicy != "" {
			policy = cc.RoutingPolicy
		}
	}
	return &Router{
		registry:            registry,
		policy:              policy,
		confidenceThreshold: threshold,
	}
}

// Route picks the initial tier for a classified task. It never fails for
// a well-formed registry: a level with no configured tier falls back to
// the registry default.
func (r *Router) Route(complexity models.TaskComplexity) models.ModelTier {
	if r.policy != config.RoutingAggressive && complexity.Confidence < r.confidenceThreshold {
		if mt, ok := r.registry.TierFor(models.TierMedium); ok {
			return mt
		}
		return r.registry.Default()
	}

	if mt, ok := r.registry.TierFor(complexity.Level.Tier()); ok {
		return mt
	}
	return r.registry.Default()
}
