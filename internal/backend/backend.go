// Package backend defines the execution-backend capability interface and
// its implementations. A backend executes a task on a concrete model,
// given the complete conversation history, and returns either a terminal
// result or an escalation request. Backends are selected by backend ID,
// never by runtime type inspection.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/ShayCichocki/cascade/pkg/models"
)

// EscalationSignal is raised by a backend (or the model itself, via the
// escalate tool) when the current tier is insufficient.
type EscalationSignal struct {
	// Reason explains why the tier is insufficient.
	Reason string
	// ContextSummary optionally summarizes the work done so far.
	ContextSummary string
}

// Result is the outcome of one execution attempt on one tier.
type Result struct {
	// Output is the model's final answer text. Empty when Escalation is set.
	Output string
	// Escalation is non-nil when the backend requests a tier upgrade
	// instead of finishing.
	Escalation *EscalationSignal
	// TokensIn and TokensOut track usage for cost accounting.
	TokensIn  int64
	TokensOut int64
	// CostUSD is the estimated cost of this attempt.
	CostUSD float64
	// DurationMS is how long the attempt took.
	DurationMS int64
}

// Executor runs a task on a concrete model. Implementations must append
// to the supplied history conceptually, never reorder or drop it: the
// cascade replays the complete ordered history on every tier.
type Executor interface {
	// ID returns the backend identifier this executor serves.
	ID() string
	// Execute runs the task on the given model with the full
	// conversation history. escalationEnabled controls whether the
	// escalate tool is offered to the model. maxCostUSD caps the
	// estimated spend of this single request; implementations refuse to
	// dispatch a request that cannot fit the ceiling. Zero means no
	// ceiling.
	Execute(ctx context.Context, modelID string, history []models.Message, escalationEnabled bool, maxCostUSD float64) (*Result, error)
}

// Registry holds executors keyed by backend ID. Registration happens at
// startup; lookups are read-only afterwards.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds an executor under its ID.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.ID()] = e
}

// Get returns the executor for a backend ID.
func (r *Registry) Get(backendID string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[backendID]
	if !ok {
		return nil, fmt.Errorf("unknown backend: %q", backendID)
	}
	return e, nil
}
