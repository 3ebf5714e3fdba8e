package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Tiered task routing and escalation",
	Long: `Cascade routes tasks to model tiers by estimated complexity and
escalates them one tier at a time when the executing model asks for
more capability.

A task is classified (light, medium, heavy), routed to a starting tier,
and executed. The model may call the escalate tool with a reason; the
request is validated against policy, optionally held for your approval,
and the full conversation is carried to the next tier. Every transition
is recorded in an append-only event log.

Tiers, policies, and cost limits are configured under the 'cascades'
section of the config file. Without that section the subsystem stays
inert and 'cascade run' refuses to start.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}
