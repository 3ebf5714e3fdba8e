package cascade

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/cascade/pkg/models"
)

// ToolName is the tool identifier exposed to executing backends.
const ToolName = "escalate"

// ToolDescription is the escalate tool's description as registered with
// the backend. It is only registered when cascades are active.
const ToolDescription = "Escalate to the next model tier for increased capability. " +
	"Use when the current tier is insufficient for the task."

// maxReasonLength bounds the escalation reason accepted from a backend.
const maxReasonLength = 1000

// EscalationRequest is the structured input of an escalate tool call.
type EscalationRequest struct {
	// Reason is the required, non-empty explanation for escalating.
	Reason string `json:"reason"`
	// ContextSummary optionally summarizes the work done so far.
	ContextSummary string `json:"context_summary,omitempty"`
}

// EscalationResult is returned to the caller of the escalate tool.
// A failed validation sets Success false with a descriptive Error and
// leaves the cascade Executing at its current tier — no partial state.
type EscalationResult struct {
	// Success is true once the cascade was re-armed on a higher tier.
	Success bool `json:"success"`
	// EscalatedTo names the new tier on success.
	EscalatedTo models.Tier `json:"escalated_to,omitempty"`
	// Error describes why the escalation was refused.
	Error string `json:"error,omitempty"`
	// MessageCountTransferred is the number of conversation messages
	// carried into the new tier's execution.
	MessageCountTransferred int `json:"message_count_transferred,omitempty"`
	// PendingApproval is true when the cascade paused for review; the
	// escalation has neither succeeded nor failed yet.
	PendingApproval bool `json:"pending_approval,omitempty"`
	// RequestID identifies the pending approval request.
	RequestID string `json:"request_id,omitempty"`
}

// Tool validates and applies escalation requests raised by executing
// backends. All validation happens before any state change: a refused
// request leaves the context untouched.
type Tool struct {
	gate   *Gate
	events EventSink
}

// NewTool creates the escalate tool over the given gate.
func NewTool(gate *Gate, events EventSink) *Tool {
	return &Tool{gate: gate, events: events}
}

// Execute processes one escalation request against the given cascade.
// Validation order: reason, max tier, policy. Validation failures are
// recovered locally — they produce a Success=false result and execution
// continues at the current tier.
func (t *Tool) Execute(cc *Context, req EscalationRequest) EscalationResult {
	if req.Reason == "" {
		return refuse("escalation reason must not be empty")
	}
	if len(req.Reason) > maxReasonLength {
		return refuse(fmt.Sprintf("escalation reason exceeds %d characters", maxReasonLength))
	}

	current := cc.CurrentTier()
	next, ok := current.Next()
	if !ok {
		return refuse(fmt.Sprintf("%s: already at %s tier", ErrMaxTierReached, current))
	}

	if err := t.gate.CheckPolicy(current, next); err != nil {
		return refuse(err.Error())
	}

	if _, err := cc.RequestEscalation(req.Reason); err != nil {
		if errors.Is(err, ErrCascadeTimeout) {
			t.emitFailed(cc, "timeout")
		}
		return EscalationResult{Success: false, Error: err.Error()}
	}

	t.emitRequested(cc, req.Reason)

	outcome, err := t.gate.Admit(cc, req.Reason, req.ContextSummary)
	if err != nil {
		if errors.Is(err, ErrCascadeTimeout) {
			t.emitFailed(cc, "timeout")
		}
		return EscalationResult{Success: false, Error: err.Error()}
	}

	if outcome.Pending {
		return EscalationResult{
			Success:         false,
			PendingApproval: true,
			RequestID:       outcome.RequestID,
		}
	}

	return EscalationResult{
		Success:                 true,
		EscalatedTo:             outcome.NewTier,
		MessageCountTransferred: cc.MessageCount(),
	}
}

// refuse builds a validation-failure result. The cascade state is
// untouched: still Executing at the same tier.
func refuse(msg string) EscalationResult {
	return EscalationResult{Success: false, Error: msg}
}

// emitRequested records the escalation_requested audit event.
func (t *Tool) emitRequested(cc *Context, reason string) {
	if t.events == nil {
		return
	}
	t.events.Emit(models.CascadeEvent{
		EventID:      uuid.New().String(),
		Type:         models.EventEscalationRequested,
		TaskID:       cc.TaskID(),
		Tier:         cc.CurrentTier(),
		Timestamp:    time.Now(),
		Reason:       reason,
		MessageCount: cc.MessageCount(),
	})
}

// emitFailed records a terminal failure event raised inside tool handling.
func (t *Tool) emitFailed(cc *Context, reason string) {
	if t.events == nil {
		return
	}
	t.events.Emit(models.CascadeEvent{
		EventID:        uuid.New().String(),
		Type:           models.EventFailed,
		TaskID:         cc.TaskID(),
		Tier:           cc.CurrentTier(),
		Timestamp:      time.Now(),
		Reason:         reason,
		EscalationPath: cc.Path(),
		MessageCount:   cc.MessageCount(),
	})
}
