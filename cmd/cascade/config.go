package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/cascade/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View the resolved cascade configuration.

Configuration is stored at ~/.config/cascade/config.yaml
Project-specific overrides can be placed in .cascade.yaml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		out, err := yaml.Marshal(renderConfig(cfg))
		if err != nil {
			return fmt.Errorf("render config: %w", err)
		}
		os.Stdout.Write(out)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file paths",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("user:    %s\n", config.GetUserConfigPath())
		fmt.Printf("project: %s\n", config.GetProjectConfigPath())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

// renderConfig builds the YAML view of the resolved config. The API key
// is masked; an absent cascades section is shown as absent, because its
// presence is what activates the subsystem.
func renderConfig(cfg *config.Config) map[string]interface{} {
	apiKey := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKey = "****"
	}

	out := map[string]interface{}{
		"anthropic": map[string]interface{}{
			"api_key":         apiKey,
			"use_aws_bedrock": cfg.Anthropic.UseAWSBedrock,
			"aws_region":      cfg.Anthropic.AWSRegion,
			"aws_profile":     cfg.Anthropic.AWSProfile,
		},
		"defaults": map[string]interface{}{
			"tier":  cfg.Defaults.Tier,
			"model": cfg.Defaults.Model,
		},
		"events": map[string]interface{}{
			"log_path":       cfg.Events.LogPath,
			"db_path":        cfg.Events.DBPath,
			"debug_log_path": cfg.Events.DebugLogPath,
		},
	}

	if cfg.Cascades == nil {
		out["cascades"] = "(not configured; cascade routing is inactive)"
		return out
	}

	tiers := make([]map[string]interface{}, 0, len(cfg.Cascades.Tiers))
	for _, td := range cfg.Cascades.Tiers {
		tiers = append(tiers, map[string]interface{}{
			"name":                 td.Name,
			"backend_id":           td.BackendID,
			"model_ids":            td.ModelIDs,
			"max_cost_per_request": td.MaxCostPerRequest,
		})
	}

	cascades := map[string]interface{}{
		"routing_policy":            string(cfg.Cascades.RoutingPolicy),
		"escalation_policy":         string(cfg.Cascades.EscalationPolicy),
		"default_tier":              cfg.Cascades.DefaultTier,
		"escalation_needs_approval": cfg.Cascades.EscalationNeedsApproval,
		"confidence_threshold":      cfg.Cascades.ConfidenceThreshold,
		"max_lifetime":              cfg.Cascades.MaxLifetime.String(),
		"tiers":                     tiers,
	}
	if cfg.Cascades.CostLimits != nil {
		cascades["cost_limits"] = map[string]interface{}{
			"max_per_task": cfg.Cascades.CostLimits.MaxPerTask,
		}
	}
	out["cascades"] = cascades
	return out
}
