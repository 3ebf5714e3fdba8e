package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/cascade/internal/backend"
	"github.com/ShayCichocki/cascade/internal/cascade"
	"github.com/ShayCichocki/cascade/internal/config"
	"github.com/ShayCichocki/cascade/internal/events"
)

var (
	runAutoApprove bool
	runQuiet       bool
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a task through the cascade",
	Long: `Run a task: classify it, route it to a starting tier, and execute.

When the model requests an escalation and 'escalation_needs_approval'
is set, the run pauses and prompts you to approve or reject the move.
Rejection fails the task; approval re-arms it on the next tier with the
complete conversation carried forward.

Examples:
  cascade run "fix the typo in README.md"
  cascade run --auto-approve "refactor the session module"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Approve escalation requests without prompting")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Print only the final output")
}

func runTask(cmd *cobra.Command, args []string) error {
	taskText := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.CascadeActive() {
		return fmt.Errorf("no 'cascades' section in config; run 'cascade init' to create one")
	}

	sink, cleanup, err := buildEventSink(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	backends, err := buildBackends(cfg)
	if err != nil {
		return err
	}

	runner, err := cascade.NewRunner(cfg.Cascades, backends, sink, promptApprover())
	if err != nil {
		return fmt.Errorf("configure cascade: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !runQuiet {
		fmt.Printf("Running task through cascade...\n\n")
	}

	result, runErr := runner.Run(ctx, taskText, nil)

	if result != nil && result.Output != "" {
		fmt.Println(result.Output)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "\n%s %v\n", color.RedString("✗"), runErr)
		if result != nil && !runQuiet {
			printRunSummary(result)
		}
		os.Exit(1)
	}

	if !runQuiet {
		fmt.Printf("\n%s Task completed\n", color.GreenString("✓"))
		printRunSummary(result)
	}
	return nil
}

// printRunSummary prints the tier trail and usage for a finished run.
func printRunSummary(result *cascade.RunResult) {
	trail := make([]string, len(result.Path))
	for i, t := range result.Path {
		trail[i] = string(t)
	}
	fmt.Printf("  task:        %s\n", result.TaskID)
	fmt.Printf("  complexity:  %s (confidence %.2f)\n", result.Complexity.Level, result.Complexity.Confidence)
	fmt.Printf("  tiers:       %s\n", strings.Join(trail, " -> "))
	fmt.Printf("  escalations: %d\n", result.Escalations)
	fmt.Printf("  messages:    %d\n", result.MessageCount)
	if result.TokensIn > 0 || result.TokensOut > 0 {
		fmt.Printf("  tokens:      %d in / %d out\n", result.TokensIn, result.TokensOut)
	}
	if result.CostUSD > 0 {
		fmt.Printf("  cost:        $%.4f\n", result.CostUSD)
	}
	fmt.Printf("  duration:    %dms\n", result.DurationMS)
}

// promptApprover prompts on stdin for each escalation request. With
// --auto-approve every request is cleared without prompting.
func promptApprover() cascade.Approver {
	return cascade.ApproverFunc(func(req cascade.ApprovalRequest) cascade.ApprovalDecision {
		if runAutoApprove {
			return cascade.ApprovalDecision{Approved: true, Notes: "auto-approved via --auto-approve"}
		}

		yellow := color.New(color.FgYellow)
		yellow.Printf("\n⚠ Escalation requested: %s -> %s\n", req.FromTier, req.ToTier)
		fmt.Printf("  reason:   %s\n", req.Reason)
		if req.ContextSummary != "" {
			fmt.Printf("  context:  %s\n", req.ContextSummary)
		}
		fmt.Printf("  messages: %d will be carried forward\n", req.MessageCount)
		fmt.Print("Approve? [y/N]: ")

		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return cascade.ApprovalDecision{Approved: false, Reason: "no reviewer response"}
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return cascade.ApprovalDecision{Approved: true}
		default:
			return cascade.ApprovalDecision{Approved: false, Reason: "rejected by reviewer"}
		}
	})
}

// buildEventSink wires the JSONL log, the SQLite store, and the debug
// side channel from configuration. The returned cleanup closes all three.
func buildEventSink(cfg *config.Config) (*events.Logger, func(), error) {
	debug, err := events.NewDebugLogger(cfg.Events.DebugLogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open debug log: %w", err)
	}

	var store *events.Store
	if cfg.Events.DBPath != "" {
		store, err = events.OpenStore(cfg.Events.DBPath)
		if err != nil {
			debug.Close()
			return nil, nil, fmt.Errorf("open event store: %w", err)
		}
	}

	logger, err := events.NewLogger(cfg.Events.LogPath, store, debug)
	if err != nil {
		if store != nil {
			store.Close()
		}
		debug.Close()
		return nil, nil, fmt.Errorf("open event log: %w", err)
	}

	cleanup := func() {
		logger.Close()
		if store != nil {
			store.Close()
		}
		debug.Close()
	}
	return logger, cleanup, nil
}

// buildBackends registers every executor the configured tiers can bind to.
func buildBackends(cfg *config.Config) (*backend.Registry, error) {
	registry := backend.NewRegistry()

	exec, err := backend.NewAnthropicExecutor(backend.AnthropicConfig{
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create anthropic backend: %w", err)
	}
	registry.Register(exec)

	return registry, nil
}
