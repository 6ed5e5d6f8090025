// Package config handles configuration loading for Flotilla. It
// supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/davenport-labs/flotilla/pkg/models"
)

// Config holds all configuration for Flotilla.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Git       GitConfig       `mapstructure:"git"`
	Verify    VerifyConfig    `mapstructure:"verify"`
}

// AnthropicConfig holds API transport settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// UseBedrock routes requests through AWS Bedrock.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// BatchConfig holds batch execution settings.
type BatchConfig struct {
	// MaxConcurrent caps the parallel fan-out width.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// Model is the default worker model tier.
	Model string `mapstructure:"model"`
	// ModelCeiling caps every model the router picks ("" = no cap).
	ModelCeiling string `mapstructure:"model_ceiling"`
	// TokenBudget bounds total batch token spend (0 = unlimited).
	TokenBudget int64 `mapstructure:"token_budget"`
}

// GitConfig holds repository settings.
type GitConfig struct {
	MainBranch string `mapstructure:"main_branch"`
	Remote     string `mapstructure:"remote"`
}

// VerifyConfig holds the merge-phase verification suite.
type VerifyConfig struct {
	// Commands run in order inside each rebased worktree; the first
	// failure blocks that task's merge.
	Commands []string `mapstructure:"commands"`
}

// Model returns the configured worker model as a typed value.
func (c *Config) Model() models.Model {
	return models.Model(c.Batch.Model)
}

// ModelCeiling returns the configured ceiling as a typed value.
func (c *Config) ModelCeiling() models.Model {
	return models.Model(c.Batch.ModelCeiling)
}

// StateDir returns the per-repository state directory.
func StateDir(repoPath string) string {
	return filepath.Join(repoPath, ".flotilla")
}

// Load loads configuration with the following precedence (highest to
// lowest): FLOTILLA_ environment variables, project config
// (.flotilla.yaml in the current directory or a parent), user config
// (~/.config/flotilla/config.yaml), built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		pv := viper.New()
		pv.SetConfigFile(projectConfig)
		if err := pv.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("FLOTILLA")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("batch.max_concurrent", "FLOTILLA_MAX_CONCURRENT")
	v.BindEnv("batch.model", "FLOTILLA_MODEL")
	v.BindEnv("git.main_branch", "FLOTILLA_MAIN_BRANCH")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Default returns a Config with built-in defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("batch.max_concurrent", 3)
	v.SetDefault("batch.model", string(models.ModelSonnet))
	v.SetDefault("batch.model_ceiling", "")
	v.SetDefault("batch.token_budget", 0)

	v.SetDefault("git.main_branch", "main")
	v.SetDefault("git.remote", "origin")

	v.SetDefault("verify.commands", []string{})
}

// userConfigDir returns the XDG config directory for Flotilla.
func userConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flotilla")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "flotilla")
	}
	return filepath.Join(home, ".config", "flotilla")
}

// findProjectConfig searches for .flotilla.yaml upward from the
// current directory.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(cwd, ".flotilla.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return ""
		}
		cwd = parent
	}
}
