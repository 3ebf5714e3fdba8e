package cascade

import (
	"errors"
	"testing"
	"time"

	"github.com/ShayCichocki/cascade/pkg/models"
)

func newTestContext(t *testing.T, initial models.Tier) *Context {
	t.Helper()
	complexity := models.TaskComplexity{Level: models.LevelMedium, Confidence: 0.9}
	return NewContext("task-1", initial, complexity, 30*time.Minute)
}

func TestNewContext(t *testing.T) {
	cc := newTestContext(t, models.TierLight)

	if cc.State() != StateRouted {
		t.Errorf("State = %s, want %s", cc.State(), StateRouted)
	}
	if cc.CurrentTier() != models.TierLight {
		t.Errorf("CurrentTier = %s, want %s", cc.CurrentTier(), models.TierLight)
	}
	if got := cc.Path(); len(got) != 1 || got[0] != models.TierLight {
		t.Errorf("Path = %v, want [light]", got)
	}
	if cc.MessageCount() != 0 {
		t.Errorf("MessageCount = %d, want 0", cc.MessageCount())
	}
}

func TestFullEscalationLifecycle(t *testing.T) {
	cc := newTestContext(t, models.TierLight)

	if err := cc.StartExecuting(); err != nil {
		t.Fatalf("StartExecuting: %v", err)
	}
	cc.AppendMessage(models.Message{Role: models.RoleUser, Content: "do the thing"})
	cc.AppendMessage(models.Message{Role: models.RoleAssistant, Content: "working"})

	next, err := cc.RequestEscalation("needs more capability")
	if err != nil {
		t.Fatalf("RequestEscalation: %v", err)
	}
	if next != models.TierMedium {
		t.Errorf("next = %s, want %s", next, models.TierMedium)
	}
	if cc.State() != StateEscalationRequested {
		t.Errorf("State = %s, want %s", cc.State(), StateEscalationRequested)
	}

	got, err := cc.ExecuteEscalation()
	if err != nil {
		t.Fatalf("ExecuteEscalation: %v", err)
	}
	if got != models.TierMedium {
		t.Errorf("ExecuteEscalation = %s, want %s", got, models.TierMedium)
	}
	if cc.CurrentTier() != models.TierMedium {
		t.Errorf("CurrentTier = %s, want %s", cc.CurrentTier(), models.TierMedium)
	}
	// History survives the escalation untouched.
	if cc.MessageCount() != 2 {
		t.Errorf("MessageCount = %d, want 2 after escalation", cc.MessageCount())
	}

	if err := cc.StartExecuting(); err != nil {
		t.Fatalf("StartExecuting after escalation: %v", err)
	}
	if err := cc.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if cc.State() != StateCompleted {
		t.Errorf("State = %s, want %s", cc.State(), StateCompleted)
	}
}

func TestPathIsStrictlyIncreasing(t *testing.T) {
	cc := newTestContext(t, models.TierLight)

	mustExecute := func() {
		t.Helper()
		if err := cc.StartExecuting(); err != nil {
			t.Fatalf("StartExecuting: %v", err)
		}
	}

	mustExecute()
	for _, want := range []models.Tier{models.TierMedium, models.TierHeavy} {
		if _, err := cc.RequestEscalation("up"); err != nil {
			t.Fatalf("RequestEscalation: %v", err)
		}
		got, err := cc.ExecuteEscalation()
		if err != nil {
			t.Fatalf("ExecuteEscalation: %v", err)
		}
		if got != want {
			t.Errorf("escalated to %s, want %s", got, want)
		}
		mustExecute()
	}

	path := cc.Path()
	if len(path) != 3 {
		t.Fatalf("len(path) = %d, want 3", len(path))
	}
	for i := 1; i < len(path); i++ {
		if path[i].Rank() != path[i-1].Rank()+1 {
			t.Errorf("path %v is not strictly increasing by one rank", path)
		}
	}
}

func TestRequestEscalationAtHeavyFails(t *testing.T) {
	cc := newTestContext(t, models.TierHeavy)
	if err := cc.StartExecuting(); err != nil {
		t.Fatalf("StartExecuting: %v", err)
	}

	_, err := cc.RequestEscalation("more")
	if !errors.Is(err, ErrMaxTierReached) {
		t.Errorf("err = %v, want ErrMaxTierReached", err)
	}
	// Failed validation leaves the cascade executing at its tier.
	if cc.State() != StateExecuting {
		t.Errorf("State = %s, want %s after refused escalation", cc.State(), StateExecuting)
	}
	if cc.CurrentTier() != models.TierHeavy {
		t.Errorf("CurrentTier = %s, want %s", cc.CurrentTier(), models.TierHeavy)
	}
}

func TestCanEscalate(t *testing.T) {
	tests := []struct {
		name    string
		initial models.Tier
		want    bool
	}{
		{"from light", models.TierLight, true},
		{"from medium", models.TierMedium, true},
		{"from heavy", models.TierHeavy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := newTestContext(t, tt.initial)
			if got := cc.CanEscalate(); got != tt.want {
				t.Errorf("CanEscalate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApprovalFlow(t *testing.T) {
	cc := newTestContext(t, models.TierLight)
	if err := cc.StartExecuting(); err != nil {
		t.Fatalf("StartExecuting: %v", err)
	}
	if _, err := cc.RequestEscalation("needs approval"); err != nil {
		t.Fatalf("RequestEscalation: %v", err)
	}

	if err := cc.MarkPendingApproval("req-1"); err != nil {
		t.Fatalf("MarkPendingApproval: %v", err)
	}
	if cc.State() != StatePendingApproval {
		t.Errorf("State = %s, want %s", cc.State(), StatePendingApproval)
	}
	if got := cc.Approval().State; got != models.ApprovalPending {
		t.Errorf("approval state = %s, want %s", got, models.ApprovalPending)
	}

	if err := cc.ApproveEscalation("looks fine"); err != nil {
		t.Fatalf("ApproveEscalation: %v", err)
	}
	if cc.State() != StateEscalationRequested {
		t.Errorf("State = %s, want %s after approval", cc.State(), StateEscalationRequested)
	}

	if _, err := cc.ExecuteEscalation(); err != nil {
		t.Fatalf("ExecuteEscalation: %v", err)
	}
	if cc.CurrentTier() != models.TierMedium {
		t.Errorf("CurrentTier = %s, want %s", cc.CurrentTier(), models.TierMedium)
	}
}

func TestRejectEscalationIsTerminal(t *testing.T) {
	cc := newTestContext(t, models.TierLight)
	if err := cc.StartExecuting(); err != nil {
		t.Fatalf("StartExecuting: %v", err)
	}
	if _, err := cc.RequestEscalation("too ambitious"); err != nil {
		t.Fatalf("RequestEscalation: %v", err)
	}
	if err := cc.MarkPendingApproval("req-1"); err != nil {
		t.Fatalf("MarkPendingApproval: %v", err)
	}

	if err := cc.RejectEscalation("over cost cap"); err != nil {
		t.Fatalf("RejectEscalation: %v", err)
	}
	if cc.State() != StateFailed {
		t.Errorf("State = %s, want %s", cc.State(), StateFailed)
	}
	if cc.FailureReason() != "over cost cap" {
		t.Errorf("FailureReason = %q, want %q", cc.FailureReason(), "over cost cap")
	}
	// History is retained even on rejection.
	if err := cc.StartExecuting(); !errors.Is(err, ErrTerminal) {
		t.Errorf("StartExecuting after rejection = %v, want ErrTerminal", err)
	}
}

func TestInvalidTransitions(t *testing.T) {
	t.Run("escalate before executing", func(t *testing.T) {
		cc := newTestContext(t, models.TierLight)
		if _, err := cc.RequestEscalation("x"); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("err = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("complete before executing", func(t *testing.T) {
		cc := newTestContext(t, models.TierLight)
		if err := cc.Complete(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("err = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("approve without pending", func(t *testing.T) {
		cc := newTestContext(t, models.TierLight)
		if err := cc.ApproveEscalation("x"); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("err = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("execute escalation without request", func(t *testing.T) {
		cc := newTestContext(t, models.TierLight)
		if _, err := cc.ExecuteEscalation(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("err = %v, want ErrInvalidTransition", err)
		}
	})
}

func TestLifetimeExpiry(t *testing.T) {
	cc := newTestContext(t, models.TierLight)
	if err := cc.StartExecuting(); err != nil {
		t.Fatalf("StartExecuting: %v", err)
	}

	// Jump the clock past the lifetime cap.
	start := cc.StartedAt()
	cc.now = func() time.Time { return start.Add(31 * time.Minute) }

	if !cc.Expired() {
		t.Fatal("Expired = false, want true past the lifetime cap")
	}

	_, err := cc.RequestEscalation("too late")
	if !errors.Is(err, ErrCascadeTimeout) {
		t.Errorf("err = %v, want ErrCascadeTimeout", err)
	}
	if cc.State() != StateFailed {
		t.Errorf("State = %s, want %s after expiry", cc.State(), StateFailed)
	}
	if cc.FailureReason() != "timeout" {
		t.Errorf("FailureReason = %q, want %q", cc.FailureReason(), "timeout")
	}
}

func TestFailFromAnyNonTerminalState(t *testing.T) {
	cc := newTestContext(t, models.TierMedium)
	if err := cc.Fail("cancelled"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if cc.State() != StateFailed {
		t.Errorf("State = %s, want %s", cc.State(), StateFailed)
	}
	if err := cc.Fail("again"); !errors.Is(err, ErrTerminal) {
		t.Errorf("second Fail = %v, want ErrTerminal", err)
	}
}

func TestHistoryCopyIsIsolated(t *testing.T) {
	cc := newTestContext(t, models.TierLight)
	cc.AppendMessage(models.Message{Role: models.RoleUser, Content: "a"})

	got := cc.History()
	got[0].Content = "mutated"

	if cc.History()[0].Content != "a" {
		t.Error("History() must return a copy, not the backing slice")
	}
}

func TestEscalationSummary(t *testing.T) {
	cc := newTestContext(t, models.TierLight)
	if err := cc.StartExecuting(); err != nil {
		t.Fatalf("StartExecuting: %v", err)
	}
	if _, err := cc.RequestEscalation("up"); err != nil {
		t.Fatalf("RequestEscalation: %v", err)
	}
	if _, err := cc.ExecuteEscalation(); err != nil {
		t.Fatalf("ExecuteEscalation: %v", err)
	}

	want := "started at light, now at medium, 1 escalation(s)"
	if got := cc.EscalationSummary(); got != want {
		t.Errorf("EscalationSummary = %q, want %q", got, want)
	}
}
