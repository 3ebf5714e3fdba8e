package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ShayCichocki/cascade/pkg/models"
)

// AnthropicID is the backend identifier served by AnthropicExecutor.
const AnthropicID = "anthropic"

// escalateToolName mirrors the tool name registered with the cascade
// core; a tool_use block with this name is translated into an
// EscalationSignal rather than executed.
const escalateToolName = "escalate"

// AnthropicConfig contains configuration for creating an AnthropicExecutor.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of the
	// direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// MaxTokens caps the response size per call (0 = default 8192).
	MaxTokens int64
	// SystemPrompt is prepended to every execution.
	SystemPrompt string
}

// AnthropicExecutor executes tasks against the Anthropic Messages API.
type AnthropicExecutor struct {
	client       anthropic.Client
	maxTokens    int64
	systemPrompt string
}

// NewAnthropicExecutor creates an executor for the Anthropic API or AWS
// Bedrock, depending on configuration.
func NewAnthropicExecutor(cfg AnthropicConfig) (*AnthropicExecutor, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	return &AnthropicExecutor{
		client:       anthropic.NewClient(opts...),
		maxTokens:    maxTokens,
		systemPrompt: systemPrompt,
	}, nil
}

const defaultSystemPrompt = "You are executing a task for a tiered routing system. " +
	"Complete the task directly. If the task is beyond your current capability tier, " +
	"call the escalate tool with a clear reason instead of producing a partial answer."

// ID returns the backend identifier.
func (e *AnthropicExecutor) ID() string {
	return AnthropicID
}

// Execute runs one attempt on the given model. The complete conversation
// history is replayed into the request; an escalate tool_use block in the
// response is returned as an EscalationSignal without being executed.
// A non-zero maxCostUSD shrinks the response token cap so the request's
// estimated cost stays under the ceiling, and refuses dispatch outright
// when the prompt alone is already over it.
func (e *AnthropicExecutor) Execute(ctx context.Context, modelID string, history []models.Message, escalationEnabled bool, maxCostUSD float64) (*Result, error) {
	start := time.Now()

	messages := buildMessages(history)
	if len(messages) == 0 {
		return nil, fmt.Errorf("empty conversation history")
	}

	maxTokens, err := capTokensForBudget(modelID, estimatePromptTokens(history), e.maxTokens, maxCostUSD)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: e.systemPrompt},
		},
		Messages: messages,
	}
	if escalationEnabled {
		params.Tools = []anthropic.ToolUnionParam{escalateToolParam()}
	}

	resp, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("API call failed: %w", err)
	}

	result := &Result{
		TokensIn:   resp.Usage.InputTokens,
		TokensOut:  resp.Usage.OutputTokens,
		CostUSD:    estimateCost(modelID, resp.Usage.InputTokens, resp.Usage.OutputTokens),
		DurationMS: time.Since(start).Milliseconds(),
	}

	var textOutput string
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			textOutput += variant.Text

		case anthropic.ToolUseBlock:
			if variant.Name != escalateToolName {
				continue
			}
			var input struct {
				Reason         string `json:"reason"`
				ContextSummary string `json:"context_summary"`
			}
			if err := json.Unmarshal(variant.Input, &input); err != nil {
				return nil, fmt.Errorf("decode escalate tool input: %w", err)
			}
			result.Escalation = &EscalationSignal{
				Reason:         input.Reason,
				ContextSummary: input.ContextSummary,
			}
		}
	}

	if result.Escalation == nil {
		result.Output = textOutput
	}

	return result, nil
}

// modelRate is the per-million-token price of a model family.
type modelRate struct {
	inputPerMTok  float64
	outputPerMTok float64
}

// modelRates resolves prices by model ID fragment, most specific first.
// Kept in sync with the published Anthropic price list; unknown models
// fall back to sonnet rates.
var modelRates = []struct {
	fragment string
	rate     modelRate
}{
	{"haiku", modelRate{inputPerMTok: 0.80, outputPerMTok: 4.00}},
	{"opus", modelRate{inputPerMTok: 15.00, outputPerMTok: 75.00}},
	{"sonnet", modelRate{inputPerMTok: 3.00, outputPerMTok: 15.00}},
}

func rateFor(modelID string) modelRate {
	for _, entry := range modelRates {
		if strings.Contains(modelID, entry.fragment) {
			return entry.rate
		}
	}
	return modelRate{inputPerMTok: 3.00, outputPerMTok: 15.00}
}

// estimateCost prices actual token usage for one request.
func estimateCost(modelID string, tokensIn, tokensOut int64) float64 {
	rate := rateFor(modelID)
	return float64(tokensIn)*rate.inputPerMTok/1e6 + float64(tokensOut)*rate.outputPerMTok/1e6
}

// estimatePromptTokens approximates prompt size at ~4 characters per
// token, which is good enough for budget enforcement.
func estimatePromptTokens(history []models.Message) int64 {
	chars := 0
	for _, msg := range history {
		chars += len(msg.Content)
	}
	return int64(chars/4) + 1
}

// capTokensForBudget shrinks the response token cap so the estimated
// request cost fits under maxCostUSD. A zero ceiling leaves the cap
// unchanged; a prompt that alone busts the ceiling is an error.
func capTokensForBudget(modelID string, promptTokens, maxTokens int64, maxCostUSD float64) (int64, error) {
	if maxCostUSD <= 0 {
		return maxTokens, nil
	}

	rate := rateFor(modelID)
	promptCost := float64(promptTokens) * rate.inputPerMTok / 1e6
	remaining := maxCostUSD - promptCost

	budgetTokens := int64(remaining / rate.outputPerMTok * 1e6)
	if budgetTokens < 1 {
		return 0, fmt.Errorf("prompt estimated at $%.4f leaves no room under the $%.2f request ceiling", promptCost, maxCostUSD)
	}
	if budgetTokens < maxTokens {
		return budgetTokens, nil
	}
	return maxTokens, nil
}

// buildMessages converts cascade history into API message params,
// preserving order exactly. System messages are folded into user turns
// so the replayed transcript stays complete.
func buildMessages(history []models.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, msg := range history {
		block := anthropic.NewTextBlock(msg.Content)
		switch msg.Role {
		case models.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		default:
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	return messages
}

// escalateToolParam is the escalate tool schema offered to the model.
func escalateToolParam() anthropic.ToolUnionParam {
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name: escalateToolName,
			Description: anthropic.String("Escalate to the next model tier for increased capability. " +
				"Use when the task exceeds what you can reliably complete."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "Why the current tier is insufficient (required, max 1000 chars)",
					},
					"context_summary": map[string]interface{}{
						"type":        "string",
						"description": "Optional summary of work completed so far",
					},
				},
				Required: []string{"reason"},
			},
		},
	}
}
