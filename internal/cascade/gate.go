package cascade

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/cascade/internal/config"
	"github.com/ShayCichocki/cascade/pkg/models"
)

// EventSink receives audit events. Emission must never fail the task;
// implementations swallow their own persistence errors.
type EventSink interface {
	Emit(event models.CascadeEvent)
}

// ApprovalRequest is published to reviewers when an escalation needs a
// human (or automated) decision before it executes.
type ApprovalRequest struct {
	// RequestID identifies this request for Resolve.
	RequestID string
	// TaskID is the cascade awaiting the decision.
	TaskID string
	// FromTier and ToTier describe the proposed transition.
	FromTier models.Tier
	ToTier   models.Tier
	// Reason is the escalation reason supplied by the backend.
	Reason string
	// ContextSummary is the optional summary supplied with the request.
	ContextSummary string
	// MessageCount is the conversation length at request time.
	MessageCount int
	// RequestedAt is when the request was raised.
	RequestedAt time.Time
}

// ApprovalDecision is a reviewer's answer to an ApprovalRequest.
type ApprovalDecision struct {
	// Approved clears the escalation to execute.
	Approved bool
	// Notes carries optional reviewer notes on approval.
	Notes string
	// Reason carries the rejection reason; it becomes the task's final
	// error when Approved is false.
	Reason string
}

// GateOutcome reports what the gate did with an accepted escalation.
type GateOutcome struct {
	// Escalated is true once the cascade was re-armed on NewTier.
	Escalated bool
	// NewTier is the tier the cascade moved to.
	NewTier models.Tier
	// Pending is true when the cascade paused awaiting approval.
	Pending bool
	// RequestID identifies the pending approval request.
	RequestID string
}

// Gate validates escalation requests against policy and runs the
// approval workflow. When approval is not required it synthesizes an
// Approved status and proceeds immediately; otherwise the cascade pauses
// in PendingApproval until Resolve is called.
type Gate struct {
	needsApproval bool
	policy        config.EscalationPolicy
	events        EventSink

	mu        sync.Mutex
	pending   map[string]*Context
	requestCh chan ApprovalRequest
}

// NewGate creates a Gate from an active cascades configuration.
func NewGate(cc *config.CascadeConfig, events EventSink) *Gate {
	policy := config.PolicyAllowAll
	needsApproval := false
	if cc != nil {
		policy = cc.EscalationPolicy
		needsApproval = cc.EscalationNeedsApproval
	}
	return &Gate{
		needsApproval: needsApproval,
		policy:        policy,
		events:        events,
		pending:       make(map[string]*Context),
		requestCh:     make(chan ApprovalRequest, 8),
	}
}

// Requests returns a read-only channel of approval requests. The caller
// (CLI prompt, dashboard, automation) listens here and answers via
// Resolve.
func (g *Gate) Requests() <-chan ApprovalRequest {
	return g.requestCh
}

// NeedsApproval reports whether escalations pause for review.
func (g *Gate) NeedsApproval() bool {
	return g.needsApproval
}

// CheckPolicy verifies the configured escalation policy permits moving
// from one tier to the next.
func (g *Gate) CheckPolicy(from, to models.Tier) error {
	if !g.policy.Permits(from, to) {
		return fmt.Errorf("%w: %s forbids %s -> %s", ErrPolicyViolation, g.policy, from, to)
	}
	return nil
}

// Admit processes a cascade whose escalation request was already
// validated and accepted (state EscalationRequested). It either executes
// the escalation immediately or parks the cascade pending approval.
func (g *Gate) Admit(cc *Context, reason, contextSummary string) (GateOutcome, error) {
	if !g.needsApproval {
		return g.autoApprove(cc)
	}

	requestID := uuid.New().String()
	if err := cc.MarkPendingApproval(requestID); err != nil {
		return GateOutcome{}, err
	}

	g.mu.Lock()
	g.pending[requestID] = cc
	g.mu.Unlock()

	req := ApprovalRequest{
		RequestID:      requestID,
		TaskID:         cc.TaskID(),
		FromTier:       cc.CurrentTier(),
		ToTier:         mustNext(cc.CurrentTier()),
		Reason:         reason,
		ContextSummary: contextSummary,
		MessageCount:   cc.MessageCount(),
		RequestedAt:    time.Now(),
	}

	// Buffered publish; a full channel means no reviewer is listening,
	// and the request stays resolvable through Resolve regardless.
	select {
	case g.requestCh <- req:
	default:
	}

	return GateOutcome{Pending: true, RequestID: requestID}, nil
}

// autoApprove synthesizes the Approved status and executes the
// escalation in one step.
func (g *Gate) autoApprove(cc *Context) (GateOutcome, error) {
	if err := cc.MarkPendingApproval("auto-" + uuid.New().String()[:8]); err != nil {
		return GateOutcome{}, err
	}
	if err := cc.ApproveEscalation("auto-approved"); err != nil {
		return GateOutcome{}, err
	}
	return g.execute(cc)
}

// Resolve supplies the reviewer's decision for a pending request. On
// approval the cascade is re-armed on the next tier; on rejection the
// cascade fails terminally with the reviewer's reason.
func (g *Gate) Resolve(requestID string, decision ApprovalDecision) (GateOutcome, error) {
	g.mu.Lock()
	cc, ok := g.pending[requestID]
	if ok {
		delete(g.pending, requestID)
	}
	g.mu.Unlock()

	if !ok {
		return GateOutcome{}, fmt.Errorf("no pending approval request %q", requestID)
	}

	if !decision.Approved {
		reason := decision.Reason
		if reason == "" {
			reason = "escalation rejected by reviewer"
		}
		if err := cc.RejectEscalation(reason); err != nil {
			return GateOutcome{}, err
		}
		g.emit(cc, models.EventEscalationRejected, reason)
		g.emit(cc, models.EventFailed, reason)
		return GateOutcome{}, fmt.Errorf("%w: %s", ErrApprovalRejected, reason)
	}

	if err := cc.ApproveEscalation(decision.Notes); err != nil {
		g.emitOnTimeout(cc, err)
		return GateOutcome{}, err
	}
	return g.execute(cc)
}

// HasPending reports whether a request is awaiting resolution.
func (g *Gate) HasPending(requestID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[requestID]
	return ok
}

// execute re-arms the cascade on the next tier and emits the approval
// and execution events.
func (g *Gate) execute(cc *Context) (GateOutcome, error) {
	before := cc.MessageCount()

	g.emit(cc, models.EventEscalationApproved, cc.PendingReason())

	newTier, err := cc.ExecuteEscalation()
	if err != nil {
		g.emitOnTimeout(cc, err)
		return GateOutcome{}, err
	}

	// History is append-only and carried forward wholesale; shrinkage
	// here means an internal invariant was violated, and the cascade
	// aborts rather than silently losing messages.
	if cc.MessageCount() < before {
		_ = cc.Fail("context transfer failure")
		g.emit(cc, models.EventFailed, "context transfer failure")
		return GateOutcome{}, ErrContextTransferFailure
	}

	g.emit(cc, models.EventEscalationExecuted, "")

	return GateOutcome{Escalated: true, NewTier: newTier}, nil
}

// emitOnTimeout records the terminal event when the lifetime cap tripped
// during a gate-driven transition. The deadline check already moved the
// context to Failed; without this the transition would leave no trace.
func (g *Gate) emitOnTimeout(cc *Context, err error) {
	if errors.Is(err, ErrCascadeTimeout) {
		g.emit(cc, models.EventFailed, cc.FailureReason())
	}
}

// emit sends one audit event for a gate-driven transition.
func (g *Gate) emit(cc *Context, eventType models.EventType, reason string) {
	if g.events == nil {
		return
	}
	ev := models.CascadeEvent{
		EventID:      uuid.New().String(),
		Type:         eventType,
		TaskID:       cc.TaskID(),
		Tier:         cc.CurrentTier(),
		Timestamp:    time.Now(),
		Reason:       reason,
		MessageCount: cc.MessageCount(),
	}
	// Escalation-executed and terminal events carry the full trail for
	// audit reconstruction.
	if eventType == models.EventEscalationExecuted || eventType == models.EventFailed {
		ev.EscalationPath = cc.Path()
	}
	g.events.Emit(ev)
}

// mustNext returns the tier above t; callers guarantee one exists.
func mustNext(t models.Tier) models.Tier {
	next, _ := t.Next()
	return next
}
