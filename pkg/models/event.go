package models

import "time"

// EventType identifies a cascade lifecycle event.
type EventType string

const (
	// EventCreated is emitted when a task is admitted into a cascade.
	EventCreated EventType = "created"
	// EventRouted is emitted when the router picks the initial tier.
	EventRouted EventType = "routed"
	// EventEscalationRequested is emitted when an escalation is raised.
	EventEscalationRequested EventType = "escalation_requested"
	// EventEscalationApproved is emitted when a reviewer clears an escalation.
	EventEscalationApproved EventType = "escalation_approved"
	// EventEscalationRejected is emitted when a reviewer declines an escalation.
	EventEscalationRejected EventType = "escalation_rejected"
	// EventEscalationExecuted is emitted when the cascade re-arms on a new tier.
	EventEscalationExecuted EventType = "escalation_executed"
	// EventCompleted is emitted when a cascade finishes successfully.
	EventCompleted EventType = "completed"
	// EventFailed is emitted when a cascade ends in failure.
	EventFailed EventType = "failed"
)

// CascadeEvent is one append-only audit record. Events are never mutated
// after emission, and events for a task are emitted in the exact order
// their transitions occur.
type CascadeEvent struct {
	// EventID uniquely identifies this event.
	EventID string `json:"event_id"`
	// Type is the lifecycle event type.
	Type EventType `json:"event_type"`
	// TaskID identifies the cascade this event belongs to.
	TaskID string `json:"task_id"`
	// Tier is the cascade's current tier when the event fired.
	Tier Tier `json:"tier"`
	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
	// DurationMS is how long the step took, when applicable.
	DurationMS int64 `json:"duration_ms,omitempty"`
	// Reason carries the human-readable cause for the transition.
	Reason string `json:"reason,omitempty"`
	// Metrics carries the complexity metrics for routing events.
	Metrics *ComplexityMetrics `json:"metrics,omitempty"`
	// EscalationPath carries the full tier trail for escalation_executed
	// and terminal events, for audit reconstruction.
	EscalationPath []Tier `json:"escalation_path,omitempty"`
	// MessageCount snapshots the conversation length at emission time.
	MessageCount int `json:"message_count,omitempty"`
}
