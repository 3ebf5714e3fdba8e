package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/cascade/internal/analyzer"
	"github.com/ShayCichocki/cascade/internal/cascade"
	"github.com/ShayCichocki/cascade/internal/config"
)

var classifyPriorMessages int

var classifyCmd = &cobra.Command{
	Use:   "classify <task>",
	Short: "Classify a task without running it",
	Long: `Classify a task and show where the router would send it.

Nothing executes and no events are recorded; this is a dry run of the
analysis and routing stages. When cascades are not configured, only the
classification is shown.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskText := strings.Join(args, " ")

		complexity := analyzer.New().Analyze(taskText, classifyPriorMessages)

		fmt.Printf("level:       %s\n", complexity.Level)
		fmt.Printf("confidence:  %.2f\n", complexity.Confidence)
		fmt.Printf("reasoning:   %s\n", complexity.Reasoning)
		fmt.Printf("metrics:\n")
		fmt.Printf("  structural_depth:  %d\n", complexity.Metrics.StructuralDepth)
		fmt.Printf("  action_density:    %d\n", complexity.Metrics.ActionDensity)
		fmt.Printf("  code_signal_score: %.1f\n", complexity.Metrics.CodeSignalScore)
		fmt.Printf("  concept_count:     %d\n", complexity.Metrics.ConceptCount)

		cfg, err := config.Load()
		if err != nil {
			cmd.PrintErrf("config not loaded, routing skipped: %v\n", err)
			return nil
		}
		if !cfg.CascadeActive() {
			return nil
		}

		registry, err := cascade.NewRegistry(cfg.Cascades)
		if err != nil {
			cmd.PrintErrf("cascades config invalid, routing skipped: %v\n", err)
			return nil
		}
		tier := cascade.NewRouter(registry, cfg.Cascades).Route(complexity)
		fmt.Printf("routed tier: %s (%s)\n", tier.Name, tier.PrimaryModel())
		return nil
	},
}

func init() {
	classifyCmd.Flags().IntVar(&classifyPriorMessages, "prior-messages", 0, "Conversation length preceding this task")
}
