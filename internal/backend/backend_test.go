package backend

import (
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/cascade/pkg/models"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	exec := &AnthropicExecutor{}
	registry.Register(exec)

	got, err := registry.Get(AnthropicID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != exec {
		t.Error("Get returned a different executor")
	}

	if _, err := registry.Get("unknown"); err == nil {
		t.Error("expected error for unknown backend ID")
	}
}

func TestNewAnthropicExecutor_RequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := NewAnthropicExecutor(AnthropicConfig{}); err == nil {
		t.Error("expected error without an API key")
	}

	if _, err := NewAnthropicExecutor(AnthropicConfig{APIKey: "sk-test"}); err != nil {
		t.Errorf("NewAnthropicExecutor with explicit key: %v", err)
	}
}

func TestBuildMessages_PreservesOrderAndRoles(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleSystem, Content: "context"},
		{Role: models.RoleUser, Content: "do the task"},
		{Role: models.RoleAssistant, Content: "working on it"},
		{Role: models.RoleUser, Content: "continue"},
	}

	got := buildMessages(history)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4 (no history dropped)", len(got))
	}

	wantRoles := []anthropic.MessageParamRole{
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleUser,
		anthropic.MessageParamRoleAssistant,
		anthropic.MessageParamRoleUser,
	}
	for i, msg := range got {
		if msg.Role != wantRoles[i] {
			t.Errorf("messages[%d].Role = %s, want %s", i, msg.Role, wantRoles[i])
		}
	}
}

func TestRateFor(t *testing.T) {
	tests := []struct {
		modelID string
		wantIn  float64
		wantOut float64
	}{
		{"claude-3-5-haiku-latest", 0.80, 4.00},
		{"claude-sonnet-4-20250514", 3.00, 15.00},
		{"claude-opus-4-20250514", 15.00, 75.00},
		{"some-unknown-model", 3.00, 15.00},
	}

	for _, tt := range tests {
		t.Run(tt.modelID, func(t *testing.T) {
			rate := rateFor(tt.modelID)
			if rate.inputPerMTok != tt.wantIn || rate.outputPerMTok != tt.wantOut {
				t.Errorf("rateFor(%s) = %v/%v, want %v/%v",
					tt.modelID, rate.inputPerMTok, rate.outputPerMTok, tt.wantIn, tt.wantOut)
			}
		})
	}
}

func TestEstimateCost(t *testing.T) {
	// sonnet: 1M input at $3/MTok + 200k output at $15/MTok.
	got := estimateCost("claude-sonnet-4-20250514", 1_000_000, 200_000)
	if got != 6.0 {
		t.Errorf("estimateCost = %v, want 6.0", got)
	}

	if estimateCost("claude-3-5-haiku-latest", 0, 0) != 0 {
		t.Error("zero usage should cost zero")
	}
}

func TestCapTokensForBudget(t *testing.T) {
	const model = "claude-sonnet-4-20250514"

	t.Run("no ceiling leaves cap unchanged", func(t *testing.T) {
		got, err := capTokensForBudget(model, 1000, 8192, 0)
		if err != nil || got != 8192 {
			t.Errorf("got %d, %v; want 8192, nil", got, err)
		}
	})

	t.Run("generous ceiling leaves cap unchanged", func(t *testing.T) {
		got, err := capTokensForBudget(model, 1000, 8192, 10.0)
		if err != nil || got != 8192 {
			t.Errorf("got %d, %v; want 8192, nil", got, err)
		}
	})

	t.Run("tight ceiling shrinks cap", func(t *testing.T) {
		// $0.01 ceiling minus $0.003 prompt leaves ~466 output tokens.
		got, err := capTokensForBudget(model, 1000, 8192, 0.01)
		if err != nil {
			t.Fatalf("capTokensForBudget: %v", err)
		}
		if got >= 8192 || got < 1 {
			t.Errorf("got %d, want a positive cap below 8192", got)
		}
	})

	t.Run("prompt alone over ceiling errors", func(t *testing.T) {
		if _, err := capTokensForBudget(model, 1000, 8192, 0.002); err == nil {
			t.Error("expected error when the prompt busts the ceiling")
		}
	})
}

func TestEstimatePromptTokens(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: strings.Repeat("a", 400)},
		{Role: models.RoleAssistant, Content: strings.Repeat("b", 400)},
	}
	if got := estimatePromptTokens(history); got != 201 {
		t.Errorf("estimatePromptTokens = %d, want 201", got)
	}
}

func TestEscalateToolParam(t *testing.T) {
	tool := escalateToolParam()
	if tool.OfTool == nil {
		t.Fatal("OfTool is nil")
	}
	if tool.OfTool.Name != "escalate" {
		t.Errorf("Name = %q, want escalate", tool.OfTool.Name)
	}
	required := tool.OfTool.InputSchema.Required
	if len(required) != 1 || required[0] != "reason" {
		t.Errorf("Required = %v, want [reason]", required)
	}
}
