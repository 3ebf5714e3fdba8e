package cascade

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/cascade/internal/config"
	"github.com/ShayCichocki/cascade/pkg/models"
)

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []models.CascadeEvent
}

func (s *recordingSink) Emit(event models.CascadeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []models.CascadeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CascadeEvent{}, s.events...)
}

func (s *recordingSink) types() []models.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

// executingContext returns a context ready to escalate.
func executingContext(t *testing.T, initial models.Tier) *Context {
	t.Helper()
	cc := newTestContext(t, initial)
	if err := cc.StartExecuting(); err != nil {
		t.Fatalf("StartExecuting: %v", err)
	}
	cc.AppendMessage(models.Message{Role: models.RoleUser, Content: "task"})
	cc.AppendMessage(models.Message{Role: models.RoleAssistant, Content: "partial work"})
	return cc
}

func TestGate_AutoApproval(t *testing.T) {
	sink := &recordingSink{}
	cfg := testCascadeConfig()
	gate := NewGate(cfg, sink)

	cc := executingContext(t, models.TierLight)
	if _, err := cc.RequestEscalation("needs more"); err != nil {
		t.Fatalf("RequestEscalation: %v", err)
	}

	outcome, err := gate.Admit(cc, "needs more", "")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !outcome.Escalated || outcome.NewTier != models.TierMedium {
		t.Errorf("outcome = %+v, want escalated to medium", outcome)
	}
	if cc.State() != StateEscalationExecuted {
		t.Errorf("State = %s, want %s", cc.State(), StateEscalationExecuted)
	}
	// Auto-path still walks the approval workflow.
	if got := cc.Approval().State; got != models.ApprovalApproved {
		t.Errorf("approval state = %s, want %s", got, models.ApprovalApproved)
	}

	wantTypes := []models.EventType{models.EventEscalationApproved, models.EventEscalationExecuted}
	gotTypes := sink.types()
	if len(gotTypes) != len(wantTypes) {
		t.Fatalf("events = %v, want %v", gotTypes, wantTypes)
	}
	for i := range wantTypes {
		if gotTypes[i] != wantTypes[i] {
			t.Errorf("event[%d] = %s, want %s", i, gotTypes[i], wantTypes[i])
		}
	}
}

func TestGate_PendingApprovalThenApprove(t *testing.T) {
	sink := &recordingSink{}
	cfg := testCascadeConfig()
	cfg.EscalationNeedsApproval = true
	gate := NewGate(cfg, sink)

	cc := executingContext(t, models.TierLight)
	if _, err := cc.RequestEscalation("needs more"); err != nil {
		t.Fatalf("RequestEscalation: %v", err)
	}

	outcome, err := gate.Admit(cc, "needs more", "halfway done")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !outcome.Pending || outcome.RequestID == "" {
		t.Fatalf("outcome = %+v, want pending with request ID", outcome)
	}
	if cc.State() != StatePendingApproval {
		t.Errorf("State = %s, want %s", cc.State(), StatePendingApproval)
	}
	if !gate.HasPending(outcome.RequestID) {
		t.Error("HasPending = false, want true")
	}

	// The request is published for reviewers.
	select {
	case req := <-gate.Requests():
		if req.RequestID != outcome.RequestID {
			t.Errorf("published RequestID = %q, want %q", req.RequestID, outcome.RequestID)
		}
		if req.FromTier != models.TierLight || req.ToTier != models.TierMedium {
			t.Errorf("published tiers %s->%s, want light->medium", req.FromTier, req.ToTier)
		}
		if req.ContextSummary != "halfway done" {
			t.Errorf("ContextSummary = %q, want %q", req.ContextSummary, "halfway done")
		}
	case <-time.After(time.Second):
		t.Fatal("no approval request published")
	}

	resolved, err := gate.Resolve(outcome.RequestID, ApprovalDecision{Approved: true, Notes: "go ahead"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !resolved.Escalated || resolved.NewTier != models.TierMedium {
		t.Errorf("resolved = %+v, want escalated to medium", resolved)
	}
	if gate.HasPending(outcome.RequestID) {
		t.Error("HasPending = true after resolution")
	}
}

func TestGate_RejectionFailsCascade(t *testing.T) {
	sink := &recordingSink{}
	cfg := testCascadeConfig()
	cfg.EscalationNeedsApproval = true
	gate := NewGate(cfg, sink)

	cc := executingContext(t, models.TierMedium)
	if _, err := cc.RequestEscalation("want heavy"); err != nil {
		t.Fatalf("RequestEscalation: %v", err)
	}
	outcome, err := gate.Admit(cc, "want heavy", "")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	_, err = gate.Resolve(outcome.RequestID, ApprovalDecision{Approved: false, Reason: "over cost cap"})
	if !errors.Is(err, ErrApprovalRejected) {
		t.Fatalf("Resolve err = %v, want ErrApprovalRejected", err)
	}

	if cc.State() != StateFailed {
		t.Errorf("State = %s, want %s", cc.State(), StateFailed)
	}
	if cc.FailureReason() != "over cost cap" {
		t.Errorf("FailureReason = %q, want %q", cc.FailureReason(), "over cost cap")
	}
	// History survives the failure for the audit trail.
	if cc.MessageCount() != 2 {
		t.Errorf("MessageCount = %d, want 2", cc.MessageCount())
	}

	wantTypes := []models.EventType{models.EventEscalationRejected, models.EventFailed}
	gotTypes := sink.types()
	if len(gotTypes) != len(wantTypes) {
		t.Fatalf("events = %v, want %v", gotTypes, wantTypes)
	}
	for i := range wantTypes {
		if gotTypes[i] != wantTypes[i] {
			t.Errorf("event[%d] = %s, want %s", i, gotTypes[i], wantTypes[i])
		}
	}
}

func TestGate_ResolveAfterExpiryEmitsFailed(t *testing.T) {
	sink := &recordingSink{}
	cfg := testCascadeConfig()
	cfg.EscalationNeedsApproval = true
	gate := NewGate(cfg, sink)

	cc := executingContext(t, models.TierLight)
	if _, err := cc.RequestEscalation("needs more"); err != nil {
		t.Fatalf("RequestEscalation: %v", err)
	}
	outcome, err := gate.Admit(cc, "needs more", "")
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}

	// The lifetime cap expires while the request sits pending; approving
	// now trips the deadline check instead of escalating.
	start := cc.StartedAt()
	cc.now = func() time.Time { return start.Add(31 * time.Minute) }

	_, err = gate.Resolve(outcome.RequestID, ApprovalDecision{Approved: true})
	if !errors.Is(err, ErrCascadeTimeout) {
		t.Fatalf("Resolve err = %v, want ErrCascadeTimeout", err)
	}
	if cc.State() != StateFailed {
		t.Errorf("State = %s, want %s", cc.State(), StateFailed)
	}
	if cc.FailureReason() != "timeout" {
		t.Errorf("FailureReason = %q, want %q", cc.FailureReason(), "timeout")
	}

	gotTypes := sink.types()
	if len(gotTypes) == 0 || gotTypes[len(gotTypes)-1] != models.EventFailed {
		t.Fatalf("events = %v, want trailing failed event", gotTypes)
	}
	last := sink.all()[len(gotTypes)-1]
	if last.Reason != "timeout" {
		t.Errorf("failed event reason = %q, want %q", last.Reason, "timeout")
	}
}

func TestGate_ResolveUnknownRequest(t *testing.T) {
	gate := NewGate(testCascadeConfig(), nil)
	if _, err := gate.Resolve("nope", ApprovalDecision{Approved: true}); err == nil {
		t.Error("expected error resolving unknown request")
	}
}

func TestGate_CheckPolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  config.EscalationPolicy
		from    models.Tier
		to      models.Tier
		wantErr bool
	}{
		{"allow_all light to medium", config.PolicyAllowAll, models.TierLight, models.TierMedium, false},
		{"allow_all medium to heavy", config.PolicyAllowAll, models.TierMedium, models.TierHeavy, false},
		{"restricted permits light to medium", config.PolicyLightToMediumOnly, models.TierLight, models.TierMedium, false},
		{"restricted forbids medium to heavy", config.PolicyLightToMediumOnly, models.TierMedium, models.TierHeavy, true},
		{"heavy-only forbids light to medium", config.PolicyMediumToHeavyOnly, models.TierLight, models.TierMedium, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testCascadeConfig()
			cfg.EscalationPolicy = tt.policy
			gate := NewGate(cfg, nil)

			err := gate.CheckPolicy(tt.from, tt.to)
			if tt.wantErr {
				if !errors.Is(err, ErrPolicyViolation) {
					t.Errorf("err = %v, want ErrPolicyViolation", err)
				}
			} else if err != nil {
				t.Errorf("CheckPolicy: %v", err)
			}
		})
	}
}

func TestGate_ExecutedEventCarriesPath(t *testing.T) {
	sink := &recordingSink{}
	gate := NewGate(testCascadeConfig(), sink)

	cc := executingContext(t, models.TierLight)
	if _, err := cc.RequestEscalation("up"); err != nil {
		t.Fatalf("RequestEscalation: %v", err)
	}
	if _, err := gate.Admit(cc, "up", ""); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	var executed *models.CascadeEvent
	for _, ev := range sink.all() {
		if ev.Type == models.EventEscalationExecuted {
			executed = &ev
			break
		}
	}
	if executed == nil {
		t.Fatal("no escalation_executed event")
	}
	if len(executed.EscalationPath) != 2 ||
		executed.EscalationPath[0] != models.TierLight ||
		executed.EscalationPath[1] != models.TierMedium {
		t.Errorf("EscalationPath = %v, want [light medium]", executed.EscalationPath)
	}
}
