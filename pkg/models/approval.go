package models

import (
	"fmt"
	"time"
)

// ApprovalState identifies where an escalation sits in the approval workflow.
type ApprovalState string

const (
	// ApprovalNotRequested means no approval has been asked for.
	ApprovalNotRequested ApprovalState = "not_requested"
	// ApprovalPending means a reviewer decision is outstanding.
	ApprovalPending ApprovalState = "pending"
	// ApprovalApproved means the escalation was cleared to proceed.
	ApprovalApproved ApprovalState = "approved"
	// ApprovalRejected means the escalation was declined.
	ApprovalRejected ApprovalState = "rejected"
)

// ApprovalStatus tracks the approval workflow for one escalation.
// Transitions only move forward: NotRequested -> Pending -> Approved|Rejected.
// A status never re-enters NotRequested once left, and a resolved status
// cannot be resolved again.
type ApprovalStatus struct {
	// State is the current workflow state.
	State ApprovalState `json:"state"`
	// RequestID identifies the pending request, set when State is Pending.
	RequestID string `json:"request_id,omitempty"`
	// RequestedAt is when the approval was requested.
	RequestedAt time.Time `json:"requested_at,omitzero"`
	// ResolvedAt is when the approval was approved or rejected.
	ResolvedAt time.Time `json:"resolved_at,omitzero"`
	// Notes carries optional reviewer notes on approval.
	Notes string `json:"notes,omitempty"`
	// Reason carries the reviewer's reason on rejection.
	Reason string `json:"reason,omitempty"`
}

// NewApprovalStatus returns a status in the NotRequested state.
func NewApprovalStatus() ApprovalStatus {
	return ApprovalStatus{State: ApprovalNotRequested}
}

// MarkPending moves the status to Pending. Only valid from NotRequested.
func (s *ApprovalStatus) MarkPending(requestID string, at time.Time) error {
	if s.State != ApprovalNotRequested {
		return fmt.Errorf("approval already %s, cannot mark pending", s.State)
	}
	s.State = ApprovalPending
	s.RequestID = requestID
	s.RequestedAt = at
	return nil
}

// MarkApproved resolves a pending status as approved.
func (s *ApprovalStatus) MarkApproved(notes string, at time.Time) error {
	if s.State != ApprovalPending {
		return fmt.Errorf("approval is %s, cannot approve", s.State)
	}
	s.State = ApprovalApproved
	s.Notes = notes
	s.ResolvedAt = at
	return nil
}

// MarkRejected resolves a pending status as rejected.
func (s *ApprovalStatus) MarkRejected(reason string, at time.Time) error {
	if s.State != ApprovalPending {
		return fmt.Errorf("approval is %s, cannot reject", s.State)
	}
	s.State = ApprovalRejected
	s.Reason = reason
	s.ResolvedAt = at
	return nil
}

// Resolved returns true once the status is Approved or Rejected.
func (s ApprovalStatus) Resolved() bool {
	return s.State == ApprovalApproved || s.State == ApprovalRejected
}
