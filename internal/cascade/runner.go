package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/cascade/internal/analyzer"
	"github.com/ShayCichocki/cascade/internal/backend"
	"github.com/ShayCichocki/cascade/internal/config"
	"github.com/ShayCichocki/cascade/pkg/models"
)

// Approver answers approval requests raised while a cascade is running.
// The CLI implements this with an interactive prompt; tests implement it
// with canned decisions.
type Approver interface {
	Decide(req ApprovalRequest) ApprovalDecision
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(req ApprovalRequest) ApprovalDecision

// Decide calls f.
func (f ApproverFunc) Decide(req ApprovalRequest) ApprovalDecision {
	return f(req)
}

// RunResult is the outcome of one cascaded task run.
type RunResult struct {
	// TaskID identifies the cascade.
	TaskID string
	// Output is the final assistant output.
	Output string
	// Complexity is the classification the task was admitted with.
	Complexity models.TaskComplexity
	// Path is the full tier trail, initial tier first.
	Path []models.Tier
	// FinalTier is the tier that produced the final output.
	FinalTier models.Tier
	// Escalations counts executed escalations (len(Path)-1).
	Escalations int
	// MessageCount is the final conversation length.
	MessageCount int
	// TokensIn and TokensOut aggregate usage across all tiers.
	TokensIn  int64
	TokensOut int64
	// CostUSD aggregates estimated spend across all tiers.
	CostUSD float64
	// DurationMS is wall time from admission to the terminal state.
	DurationMS int64
}

// Runner drives one task through the full cascade lifecycle: classify,
// route, execute, and escalate until the task completes, fails, or runs
// out of tiers. One Runner serves many sequential tasks; each task gets
// its own Context.
type Runner struct {
	analyzer *analyzer.Analyzer
	router   *Router
	registry *Registry
	backends *backend.Registry
	gate     *Gate
	tool     *Tool
	events   EventSink
	approver Approver

	lifetime    time.Duration
	maxCostTask float64
}

// NewRunner wires a Runner from an active cascades configuration.
// Returns an error when the configuration is absent or invalid; callers
// should check Config.CascadeActive first and skip cascade routing
// entirely when it is false.
func NewRunner(cc *config.CascadeConfig, backends *backend.Registry, events EventSink, approver Approver) (*Runner, error) {
	registry, err := NewRegistry(cc)
	if err != nil {
		return nil, err
	}

	gate := NewGate(cc, events)

	lifetime := cc.MaxLifetime
	if lifetime <= 0 {
		lifetime = config.DefaultCascadeLifetime
	}

	maxCost := 0.0
	if cc.CostLimits != nil {
		maxCost = cc.CostLimits.MaxPerTask
	}

	return &Runner{
		analyzer:    analyzer.New(),
		router:      NewRouter(registry, cc),
		registry:    registry,
		backends:    backends,
		gate:        gate,
		tool:        NewTool(gate, events),
		events:      events,
		approver:    approver,
		lifetime:    lifetime,
		maxCostTask: maxCost,
	}, nil
}

// Gate exposes the approval gate, letting hosts watch Requests() from
// another goroutine instead of supplying an Approver.
func (r *Runner) Gate() *Gate {
	return r.gate
}

// Classify runs only the analysis and routing stages, without executing
// anything. Used by the classify command for dry runs.
func (r *Runner) Classify(taskText string, priorMessages int) (models.TaskComplexity, models.ModelTier) {
	complexity := r.analyzer.Analyze(taskText, priorMessages)
	return complexity, r.router.Route(complexity)
}

// Run executes one task end to end. Prior messages seed the conversation
// history before the task text is appended as the latest user turn.
//
// The returned error is non-nil for terminal failures: backend errors,
// rejected escalations, timeout, cancellation. Refused escalations are
// not failures; execution continues at the current tier with the
// escalate tool withdrawn.
func (r *Runner) Run(ctx context.Context, taskText string, prior []models.Message) (*RunResult, error) {
	complexity := r.analyzer.Analyze(taskText, len(prior))
	tier := r.router.Route(complexity)

	cc := NewContext(uuid.New().String(), tier.Name, complexity, r.lifetime)
	for _, msg := range prior {
		cc.AppendMessage(msg)
	}
	cc.AppendMessage(models.Message{
		Role:      models.RoleUser,
		Content:   taskText,
		Timestamp: time.Now(),
	})

	r.emit(cc, models.EventCreated, complexity.Reasoning, &complexity.Metrics)
	r.emit(cc, models.EventRouted, fmt.Sprintf("level=%s confidence=%.2f", complexity.Level, complexity.Confidence), nil)

	result := &RunResult{
		TaskID:     cc.TaskID(),
		Complexity: complexity,
	}

	// A refused escalation withdraws the tool for the rest of the run so
	// the backend cannot spin on requests that will never be granted.
	escalationAllowed := true

	for {
		if err := ctx.Err(); err != nil {
			return r.fail(cc, result, "cancelled", err)
		}

		// After a refused escalation the cascade is already Executing.
		if cc.State() != StateExecuting {
			if err := cc.StartExecuting(); err != nil {
				return r.fail(cc, result, cc.FailureReason(), err)
			}
		}

		exec, err := r.backends.Get(tier.BackendID)
		if err != nil {
			return r.fail(cc, result, err.Error(), err)
		}

		offerTool := escalationAllowed && cc.CanEscalate()
		res, err := exec.Execute(ctx, tier.PrimaryModel(), cc.History(), offerTool, tier.MaxCostPerRequest)
		if err != nil {
			return r.fail(cc, result, fmt.Sprintf("backend %s: %v", tier.BackendID, err), err)
		}

		result.TokensIn += res.TokensIn
		result.TokensOut += res.TokensOut
		result.CostUSD += res.CostUSD

		if res.Output != "" {
			cc.AppendMessage(models.Message{
				Role:      models.RoleAssistant,
				Content:   res.Output,
				Timestamp: time.Now(),
			})
		}

		if res.Escalation == nil {
			if err := cc.Complete(); err != nil {
				return r.fail(cc, result, cc.FailureReason(), err)
			}
			result.Output = res.Output
			r.finish(cc, result)
			r.emit(cc, models.EventCompleted, "", nil)
			return result, nil
		}

		if r.maxCostTask > 0 && result.CostUSD >= r.maxCostTask {
			// Over budget: refuse without touching the state machine and
			// let the current tier finish the task.
			escalationAllowed = false
			cc.AppendMessage(toolRefusalMessage(fmt.Sprintf(
				"escalation refused: task cost limit of $%.2f reached", r.maxCostTask)))
			continue
		}

		toolRes := r.tool.Execute(cc, EscalationRequest{
			Reason:         res.Escalation.Reason,
			ContextSummary: res.Escalation.ContextSummary,
		})

		switch {
		case toolRes.Success:
			tier = r.tierFor(toolRes.EscalatedTo)

		case toolRes.PendingApproval:
			newTier, err := r.awaitApproval(ctx, cc, toolRes.RequestID)
			if err != nil {
				result.Output = res.Output
				r.finish(cc, result)
				return result, err
			}
			tier = r.tierFor(newTier)

		default:
			if cc.State().Terminal() {
				// Timeout surfaced through the tool; the failed event was
				// already emitted there.
				result.Output = res.Output
				r.finish(cc, result)
				return result, fmt.Errorf("escalation failed: %s", toolRes.Error)
			}
			escalationAllowed = false
			cc.AppendMessage(toolRefusalMessage("escalation refused: " + toolRes.Error))
		}
	}
}

// awaitApproval blocks until the reviewer decides the pending request.
// Approval returns the new tier; rejection and cancellation are terminal.
func (r *Runner) awaitApproval(ctx context.Context, cc *Context, requestID string) (models.Tier, error) {
	var req ApprovalRequest
	select {
	case req = <-r.gate.Requests():
	case <-ctx.Done():
		return "", r.failPending(cc, requestID, "cancelled while awaiting approval")
	}

	if r.approver == nil {
		return "", r.failPending(cc, requestID, "no reviewer available")
	}

	decision := r.approver.Decide(req)
	outcome, err := r.gate.Resolve(requestID, decision)
	if err != nil {
		return "", err
	}
	return outcome.NewTier, nil
}

// failPending rejects a parked request so it does not leak, then reports
// the terminal error.
func (r *Runner) failPending(cc *Context, requestID string, reason string) error {
	if _, err := r.gate.Resolve(requestID, ApprovalDecision{Approved: false, Reason: reason}); err != nil {
		return err
	}
	return fmt.Errorf("escalation rejected: %s", reason)
}

// fail drives the cascade into Failed and emits the terminal event.
func (r *Runner) fail(cc *Context, result *RunResult, reason string, cause error) (*RunResult, error) {
	if !cc.State().Terminal() {
		_ = cc.Fail(reason)
		r.emit(cc, models.EventFailed, reason, nil)
	} else if errors.Is(cause, ErrCascadeTimeout) {
		// The deadline check moved the context to Failed itself; the
		// terminal event still has to reach the audit trail.
		r.emit(cc, models.EventFailed, cc.FailureReason(), nil)
	}
	r.finish(cc, result)
	return result, cause
}

// finish snapshots the trail and timing into the run result.
func (r *Runner) finish(cc *Context, result *RunResult) {
	result.Path = cc.Path()
	result.FinalTier = cc.CurrentTier()
	result.Escalations = len(result.Path) - 1
	result.MessageCount = cc.MessageCount()
	result.DurationMS = time.Since(cc.StartedAt()).Milliseconds()
}

// tierFor resolves a tier name to its model binding; the registry was
// validated at construction, so a miss falls back to the default.
func (r *Runner) tierFor(name models.Tier) models.ModelTier {
	if mt, ok := r.registry.TierFor(name); ok {
		return mt
	}
	return r.registry.Default()
}

// emit records one lifecycle event for a runner-driven transition.
func (r *Runner) emit(cc *Context, eventType models.EventType, reason string, metrics *models.ComplexityMetrics) {
	if r.events == nil {
		return
	}
	ev := models.CascadeEvent{
		EventID:      uuid.New().String(),
		Type:         eventType,
		TaskID:       cc.TaskID(),
		Tier:         cc.CurrentTier(),
		Timestamp:    time.Now(),
		Reason:       reason,
		Metrics:      metrics,
		MessageCount: cc.MessageCount(),
	}
	if eventType == models.EventCompleted || eventType == models.EventFailed {
		ev.EscalationPath = cc.Path()
		ev.DurationMS = time.Since(cc.StartedAt()).Milliseconds()
	}
	r.events.Emit(ev)
}

// toolRefusalMessage renders an escalation refusal back into the
// conversation so the model sees why it is still on the same tier.
func toolRefusalMessage(text string) models.Message {
	return models.Message{
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	}
}
