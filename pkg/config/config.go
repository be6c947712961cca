package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	GroqAPIKey      string
	Analysis        AnalysisConfig
	Oracle          OracleConfig
	RoutingConfig   *RoutingConfig
	ConfigDir       string
}

// AnalysisConfig tunes chunking and relatedness detection.
type AnalysisConfig struct {
	ChunkBudget          int    `yaml:"chunk_budget,omitempty"`
	SizeFunc             string `yaml:"size_func,omitempty"`
	RelatednessThreshold int    `yaml:"relatedness_threshold,omitempty"`
	MaxRelatedPairs      int    `yaml:"max_related_pairs,omitempty"`
	Concurrency          int    `yaml:"concurrency,omitempty"`
}

// OracleConfig controls how oracle calls are made.
type OracleConfig struct {
	Offline bool          `yaml:"offline,omitempty"`
	Degrade bool          `yaml:"degrade,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// FileConfig represents the structure of ~/.reqlens/config.yaml
type FileConfig struct {
	Analysis AnalysisConfig `yaml:"analysis"`
	Oracle   OracleConfig   `yaml:"oracle"`
}

// Load reads configuration from config files and environment variables.
// API keys are only read from the environment.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	routingPath := filepath.Join(configDir, "routing.yaml")
	if _, err := os.Stat(routingPath); err != nil {
		routingPath = ""
	}
	return load(configDir, routingPath)
}

// LoadWithRoutingFile loads config with a specific routing file.
func LoadWithRoutingFile(routingPath string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return load(configDir, routingPath)
}

func load(configDir, routingPath string) (*Config, error) {
	fileConfig, err := loadFileConfig(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg := &Config{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		GroqAPIKey:      os.Getenv("GROQ_API_KEY"),
		Analysis:        fileConfig.Analysis,
		Oracle:          fileConfig.Oracle,
		ConfigDir:       configDir,
	}
	if v := os.Getenv("REQLENS_OFFLINE"); v == "1" || v == "true" {
		cfg.Oracle.Offline = true
	}

	if routingPath != "" {
		routing, err := LoadRoutingConfig(routingPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load routing config from %s: %w", routingPath, err)
		}
		cfg.RoutingConfig = routing
	} else {
		cfg.RoutingConfig = DefaultRoutingConfig()
	}

	cfg.Analysis.ApplyDefaults()
	return cfg, nil
}

// Default returns a configuration with defaults and no API keys.
func Default() *Config {
	cfg := &Config{RoutingConfig: DefaultRoutingConfig()}
	cfg.Analysis.ApplyDefaults()
	return cfg
}

// HasAdapter returns true if the API key for the given adapter is configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "groq":
		return c.GroqAPIKey != ""
	case "mock":
		return true
	default:
		return false
	}
}

// loadFileConfig reads the config file, returning empty config if not found.
func loadFileConfig(path string) (*FileConfig, error) {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Overlay returns a copy of a with every non-zero field of o applied.
func (a AnalysisConfig) Overlay(o AnalysisConfig) AnalysisConfig {
	if o.ChunkBudget != 0 {
		a.ChunkBudget = o.ChunkBudget
	}
	if o.SizeFunc != "" {
		a.SizeFunc = o.SizeFunc
	}
	if o.RelatednessThreshold != 0 {
		a.RelatednessThreshold = o.RelatednessThreshold
	}
	if o.MaxRelatedPairs != 0 {
		a.MaxRelatedPairs = o.MaxRelatedPairs
	}
	if o.Concurrency != 0 {
		a.Concurrency = o.Concurrency
	}
	return a
}

// ApplyDefaults fills unset fields.
func (a *AnalysisConfig) ApplyDefaults() {
	if a.ChunkBudget <= 0 {
		a.ChunkBudget = 4000
	}
	if a.SizeFunc == "" {
		a.SizeFunc = "chars"
	}
	if a.RelatednessThreshold <= 0 {
		a.RelatednessThreshold = 3
	}
	if a.MaxRelatedPairs <= 0 {
		a.MaxRelatedPairs = 20
	}
	if a.Concurrency <= 0 {
		a.Concurrency = 1
	}
}

func getConfigDir() (string, error) {
	if dir := os.Getenv("REQLENS_CONFIG_DIR"); dir != "" {
		return dir, os.MkdirAll(dir, 0755)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".reqlens")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
