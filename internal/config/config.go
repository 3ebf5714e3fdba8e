// Package config handles configuration loading for cascade.
// It supports XDG config paths, project-level overrides, and environment
// variables. The cascades subsystem is opt-in: it activates only when an
// explicit `cascades` section is present in configuration, and there is
// no runtime toggle — changing it requires a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/cascade/pkg/models"
)

// Config holds all configuration for cascade.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Events    EventsConfig    `mapstructure:"events"`
	// Cascades is nil when no cascades section exists in configuration.
	// A nil value means the cascade subsystem is entirely inert.
	Cascades *CascadeConfig `mapstructure:"cascades"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// DefaultsConfig holds host-level defaults that apply whether or not
// cascades are active.
type DefaultsConfig struct {
	// Tier is the tier tasks run on when the cascade subsystem is disabled.
	Tier string `mapstructure:"tier"`
	// Model is the model used when cascades are disabled.
	Model string `mapstructure:"model"`
}

// EventsConfig holds audit trail output settings.
type EventsConfig struct {
	// LogPath is the append-only JSONL event log file.
	LogPath string `mapstructure:"log_path"`
	// DBPath is the SQLite event store used by `cascade events`.
	DBPath string `mapstructure:"db_path"`
	// DebugLogPath receives side-channel diagnostics (e.g. event
	// persistence failures that must not fail the task).
	DebugLogPath string `mapstructure:"debug_log_path"`
}

// CascadeActive returns true when the cascades section was present.
func (c *Config) CascadeActive() bool {
	return c.Cascades != nil
}

// DefaultTier returns the host's non-cascade default tier.
func (c *Config) DefaultTier() models.Tier {
	if t, err := models.ParseTier(c.Defaults.Tier); err == nil {
		return t
	}
	return models.TierMedium
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.cascade.yaml in current directory or parent)
// 3. User config (~/.config/cascade/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

// unmarshal decodes the merged settings and applies the activation gate:
// without an explicit cascades section the Cascades field stays nil, no
// matter what other keys say.
func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	if !v.IsSet("cascades") {
		cfg.Cascades = nil
		return cfg, nil
	}

	applyCascadeDefaults(cfg.Cascades)
	if err := cfg.Cascades.Validate(); err != nil {
		return nil, fmt.Errorf("cascades config: %w", err)
	}

	return cfg, nil
}

// setDefaults configures built-in defaults. Note: no default is set for
// the cascades section — its presence is the activation signal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("defaults.tier", "medium")
	v.SetDefault("defaults.model", "claude-sonnet-4-5")
	v.SetDefault("events.log_path", filepath.Join(".cascade", "events.jsonl"))
	v.SetDefault("events.db_path", filepath.Join(".cascade", "events.db"))
	v.SetDefault("events.debug_log_path", "")
}

// getUserConfigDir returns the XDG config directory for cascade.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "cascade")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "cascade")
	}
	return filepath.Join(home, ".config", "cascade")
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// findProjectConfig searches for .cascade.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".cascade.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with built-in defaults and cascades disabled.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Tier:  "medium",
			Model: "claude-sonnet-4-5",
		},
		Events: EventsConfig{
			LogPath: filepath.Join(".cascade", "events.jsonl"),
			DBPath:  filepath.Join(".cascade", "events.db"),
		},
	}
}

// DefaultCascadeLifetime caps how long one cascade may run before it is
// forced to fail with a timeout reason.
const DefaultCascadeLifetime = 30 * time.Minute
