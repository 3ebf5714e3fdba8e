package cascade

import "errors"

// Sentinel errors for the cascade error taxonomy. Validation errors
// (ErrMaxTierReached, ErrPolicyViolation) are recovered locally: the tool
// reports them in its result and execution continues at the current tier.
// Terminal errors (ErrApprovalRejected, ErrCascadeTimeout) surface to the
// caller as task failure.
var (
	// ErrMaxTierReached means escalation was requested while already at Heavy.
	ErrMaxTierReached = errors.New("no higher tier available")
	// ErrPolicyViolation means the escalation target violates the
	// configured escalation policy.
	ErrPolicyViolation = errors.New("escalation not permitted by policy")
	// ErrApprovalRejected means a reviewer declined the escalation.
	ErrApprovalRejected = errors.New("escalation rejected")
	// ErrCascadeTimeout means the cascade exceeded its lifetime cap.
	ErrCascadeTimeout = errors.New("cascade timeout")
	// ErrContextTransferFailure means conversation history was lost across
	// a transition. Structurally this should be impossible; if detected it
	// is a fatal internal-invariant violation, never recovered.
	ErrContextTransferFailure = errors.New("context transfer failure: conversation history lost")
	// ErrInvalidTransition means a state-machine transition was attempted
	// from a state that does not allow it.
	ErrInvalidTransition = errors.New("invalid cascade state transition")
	// ErrTerminal means the cascade already reached Completed or Failed.
	ErrTerminal = errors.New("cascade is in a terminal state")
)
