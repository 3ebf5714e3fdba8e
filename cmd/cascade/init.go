package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Create a starter cascade configuration",
	Long: `Create a .cascade.yaml template in the target directory.

The template configures three tiers (light, medium, heavy) on the
anthropic backend with conservative routing and approval-gated
escalation. Edit the model IDs and limits to taste; the 'cascades'
section must be present for cascade routing to activate.

The directory argument is optional and defaults to the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInitCmd,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing .cascade.yaml")
}

func runInitCmd(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	configPath := filepath.Join(absPath, ".cascade.yaml")
	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Printf(".cascade.yaml already exists. Use --force to overwrite.\n")
		return nil
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (you can set it later)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	if err := os.WriteFile(configPath, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}
	printStatus("✓", "Created .cascade.yaml template", color.FgGreen)

	fmt.Printf("\n%s Cascade initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit .cascade.yaml to set your tier models")
	fmt.Println("  2. cascade classify \"your task\"   # dry-run the router")
	fmt.Println("  3. cascade run \"your task\"")
	return nil
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

const configTemplate = `# Cascade configuration.
# The presence of the 'cascades' section activates tiered routing;
# remove it to run without cascades.

events:
  log_path: .cascade/events.jsonl
  db_path: .cascade/events.db

cascades:
  routing_policy: conservative    # conservative | aggressive
  escalation_policy: allow_all    # allow_all | light_to_medium_only | medium_to_heavy_only
  default_tier: medium
  escalation_needs_approval: true
  confidence_threshold: 0.7
  max_lifetime: 30m
  cost_limits:
    max_per_task: 5.00
  tiers:
    - name: light
      backend_id: anthropic
      model_ids: ["claude-3-5-haiku-latest"]
      max_cost_per_request: 0.50
    - name: medium
      backend_id: anthropic
      model_ids: ["claude-sonnet-4-20250514"]
      max_cost_per_request: 2.00
    - name: heavy
      backend_id: anthropic
      model_ids: ["claude-opus-4-20250514"]
      max_cost_per_request: 5.00
`
