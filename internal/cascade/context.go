package cascade

import (
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/cascade/pkg/models"
)

// State is the cascade lifecycle state.
type State string

const (
	// StateRouted means the router picked an initial tier but execution
	// has not started yet.
	StateRouted State = "routed"
	// StateExecuting means the backend is running the task on the
	// current tier.
	StateExecuting State = "executing"
	// StateEscalationRequested means an escalation was raised and is
	// being validated.
	StateEscalationRequested State = "escalation_requested"
	// StatePendingApproval means the cascade is paused awaiting an
	// external reviewer decision.
	StatePendingApproval State = "pending_approval"
	// StateEscalationExecuted means the cascade was re-armed on the next
	// tier and is about to resume execution.
	StateEscalationExecuted State = "escalation_executed"
	// StateCompleted is terminal success.
	StateCompleted State = "completed"
	// StateFailed is terminal failure.
	StateFailed State = "failed"
)

// Terminal returns true for Completed and Failed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// maxPathLength bounds escalation depth: a cascade visits at most three
// tiers (two escalations).
const maxPathLength = 3

// Context owns the escalation state machine for one in-flight task: the
// tier trail, the conversation history, and the approval status. Contexts
// are created when a task is admitted and dropped (not persisted) once
// they reach a terminal state.
//
// Invariants, enforced at every transition:
//   - the escalation path is strictly increasing in tier rank, length <= 3
//   - the current tier is always the last path element
//   - the conversation history is never truncated
//   - the cascade lifetime cap forces Failed once exceeded
type Context struct {
	mu sync.Mutex

	taskID     string
	complexity models.TaskComplexity
	state      State
	path       []models.Tier
	history    []models.Message
	approval   models.ApprovalStatus
	startedAt  time.Time
	lifetime   time.Duration

	// pendingReason holds the reason of an in-flight escalation request.
	pendingReason string
	// failureReason holds the terminal failure cause.
	failureReason string

	// now is swappable for deadline tests.
	now func() time.Time
}

// NewContext admits a task into a cascade on the given initial tier.
func NewContext(taskID string, initial models.Tier, complexity models.TaskComplexity, lifetime time.Duration) *Context {
	c := &Context{
		taskID:     taskID,
		complexity: complexity,
		state:      StateRouted,
		path:       []models.Tier{initial},
		approval:   models.NewApprovalStatus(),
		lifetime:   lifetime,
		now:        time.Now,
	}
	c.startedAt = c.now()
	return c
}

// TaskID returns the task this cascade serves.
func (c *Context) TaskID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.taskID
}

// State returns the current lifecycle state.
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentTier returns the last element of the escalation path.
func (c *Context) CurrentTier() models.Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path[len(c.path)-1]
}

// Path returns a copy of the tiers visited so far, in order.
func (c *Context) Path() []models.Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Tier{}, c.path...)
}

// Complexity returns the classification this cascade was admitted with.
func (c *Context) Complexity() models.TaskComplexity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.complexity
}

// Approval returns the current approval status snapshot.
func (c *Context) Approval() models.ApprovalStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.approval
}

// StartedAt returns when the cascade was admitted.
func (c *Context) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// FailureReason returns the terminal failure cause, if any.
func (c *Context) FailureReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failureReason
}

// PendingReason returns the reason attached to the in-flight escalation.
func (c *Context) PendingReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingReason
}

// AppendMessage appends one message to the conversation history.
// History is append-only; there is no removal operation.
func (c *Context) AppendMessage(msg models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, msg)
}

// History returns a copy of the complete ordered conversation history.
func (c *Context) History() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message{}, c.history...)
}

// MessageCount returns the current history length.
func (c *Context) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// CanEscalate reports whether another escalation is structurally possible.
func (c *Context) CanEscalate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.path) >= maxPathLength {
		return false
	}
	_, ok := c.path[len(c.path)-1].Next()
	return ok
}

// NextTier returns the tier an escalation would move to, if any.
func (c *Context) NextTier() (models.Tier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.path) >= maxPathLength {
		return "", false
	}
	return c.path[len(c.path)-1].Next()
}

// EscalationSummary returns a one-line human-readable trail.
func (c *Context) EscalationSummary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("started at %s, now at %s, %d escalation(s)",
		c.path[0], c.path[len(c.path)-1], len(c.path)-1)
}

// StartExecuting moves the cascade into Executing. Valid from Routed
// (initial dispatch) and EscalationExecuted (resume on the new tier).
func (c *Context) StartExecuting() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkDeadlineLocked(); err != nil {
		return err
	}
	if c.state != StateRouted && c.state != StateEscalationExecuted {
		return fmt.Errorf("%w: cannot execute from %s", ErrInvalidTransition, c.state)
	}
	c.state = StateExecuting
	return nil
}

// RequestEscalation validates that one more upward step exists and moves
// the cascade into EscalationRequested. On validation failure the state
// is unchanged: the cascade remains Executing at the current tier.
func (c *Context) RequestEscalation(reason string) (models.Tier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkDeadlineLocked(); err != nil {
		return "", err
	}
	if c.state != StateExecuting {
		return "", fmt.Errorf("%w: cannot escalate from %s", ErrInvalidTransition, c.state)
	}

	current := c.path[len(c.path)-1]
	next, ok := current.Next()
	if !ok {
		return "", fmt.Errorf("%w: already at %s tier", ErrMaxTierReached, current)
	}
	if len(c.path) >= maxPathLength {
		return "", fmt.Errorf("%w: escalation path already has %d tiers", ErrMaxTierReached, len(c.path))
	}

	c.state = StateEscalationRequested
	c.pendingReason = reason
	// Each escalation gets a fresh approval workflow; the status itself
	// only moves forward.
	c.approval = models.NewApprovalStatus()
	return next, nil
}

// MarkPendingApproval pauses the cascade for an external reviewer
// decision. Valid only from EscalationRequested.
func (c *Context) MarkPendingApproval(requestID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkDeadlineLocked(); err != nil {
		return err
	}
	if c.state != StateEscalationRequested {
		return fmt.Errorf("%w: cannot pend approval from %s", ErrInvalidTransition, c.state)
	}
	if err := c.approval.MarkPending(requestID, c.now()); err != nil {
		return err
	}
	c.state = StatePendingApproval
	return nil
}

// ApproveEscalation records the reviewer's approval. Valid only from
// PendingApproval; the caller follows up with ExecuteEscalation.
func (c *Context) ApproveEscalation(notes string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkDeadlineLocked(); err != nil {
		return err
	}
	if c.state != StatePendingApproval {
		return fmt.Errorf("%w: cannot approve from %s", ErrInvalidTransition, c.state)
	}
	if err := c.approval.MarkApproved(notes, c.now()); err != nil {
		return err
	}
	c.state = StateEscalationRequested
	return nil
}

// RejectEscalation records the reviewer's rejection. Rejection is
// terminal for the cascade: the task fails with the reviewer's reason.
func (c *Context) RejectEscalation(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePendingApproval {
		return fmt.Errorf("%w: cannot reject from %s", ErrInvalidTransition, c.state)
	}
	if err := c.approval.MarkRejected(reason, c.now()); err != nil {
		return err
	}
	c.state = StateFailed
	c.failureReason = reason
	return nil
}

// ExecuteEscalation re-arms the cascade on the next tier. The complete
// conversation history is carried forward untouched; the new tier only
// appends to it. Valid from EscalationRequested (after approval, or
// immediately when no approval is required).
func (c *Context) ExecuteEscalation() (models.Tier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkDeadlineLocked(); err != nil {
		return "", err
	}
	if c.state != StateEscalationRequested {
		return "", fmt.Errorf("%w: cannot execute escalation from %s", ErrInvalidTransition, c.state)
	}

	current := c.path[len(c.path)-1]
	next, ok := current.Next()
	if !ok {
		return "", fmt.Errorf("%w: already at %s tier", ErrMaxTierReached, current)
	}
	if next.Rank() != current.Rank()+1 {
		return "", fmt.Errorf("%w: %s -> %s is not a single step", ErrPolicyViolation, current, next)
	}
	if len(c.path) >= maxPathLength {
		return "", fmt.Errorf("%w: escalation path already has %d tiers", ErrMaxTierReached, len(c.path))
	}

	c.path = append(c.path, next)
	c.state = StateEscalationExecuted
	c.pendingReason = ""
	return next, nil
}

// Complete marks the cascade as successfully finished.
func (c *Context) Complete() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkDeadlineLocked(); err != nil {
		return err
	}
	if c.state != StateExecuting {
		return fmt.Errorf("%w: cannot complete from %s", ErrInvalidTransition, c.state)
	}
	c.state = StateCompleted
	return nil
}

// Fail forces the cascade into terminal failure with the given reason.
// Used for backend errors and external cancellation; the accumulated
// history is retained, never silently discarded.
func (c *Context) Fail(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Terminal() {
		return fmt.Errorf("%w: already %s", ErrTerminal, c.state)
	}
	c.state = StateFailed
	c.failureReason = reason
	return nil
}

// Expired reports whether the lifetime cap has been exceeded.
func (c *Context) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiredLocked()
}

func (c *Context) expiredLocked() bool {
	return c.lifetime > 0 && c.now().Sub(c.startedAt) > c.lifetime
}

// checkDeadlineLocked enforces the lifetime cap at each transition
// attempt. There is no background timer: expiry is detected lazily and
// forces the cascade into Failed with a timeout reason.
func (c *Context) checkDeadlineLocked() error {
	if c.state.Terminal() {
		return fmt.Errorf("%w: already %s", ErrTerminal, c.state)
	}
	if c.expiredLocked() {
		c.state = StateFailed
		c.failureReason = "timeout"
		return fmt.Errorf("%w: exceeded %s lifetime", ErrCascadeTimeout, c.lifetime)
	}
	return nil
}
