package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Oracle task kinds that can be routed independently.
const (
	TaskExtract     = "extract"
	TaskConsistency = "consistency"
	TaskPair        = "pair"
	TaskScenario    = "scenario"
)

// Tasks lists every routable task kind.
var Tasks = []string{TaskExtract, TaskConsistency, TaskPair, TaskScenario}

// RoutingConfig maps oracle tasks to adapters and models.
type RoutingConfig struct {
	Tasks    map[string]RouteTarget `yaml:"tasks,omitempty"`
	Default  RouteTarget            `yaml:"default"`
	Retry    RetryConfig            `yaml:"retry,omitempty"`
	Fallback FallbackConfig         `yaml:"fallback,omitempty"`
	Pricing  PricingConfig          `yaml:"pricing,omitempty"`
}

// RouteTarget specifies an adapter and model combination.
type RouteTarget struct {
	Adapter string `yaml:"adapter"`
	Model   string `yaml:"model"`
}

func (t RouteTarget) String() string {
	return fmt.Sprintf("%s/%s", t.Adapter, t.Model)
}

// RetryConfig defines retry and backoff behavior.
type RetryConfig struct {
	MaxRetries    int `yaml:"max_retries,omitempty"`
	BaseBackoffMs int `yaml:"base_backoff_ms,omitempty"`
	MaxBackoffMs  int `yaml:"max_backoff_ms,omitempty"`
}

// FallbackConfig defines adapter/model fallbacks.
type FallbackConfig struct {
	AllowFallback bool                     `yaml:"allow_fallback,omitempty"`
	FallbackChain map[string][]RouteTarget `yaml:"fallback_chain,omitempty"`
}

// PricingConfig maps adapter -> model -> pricing.
type PricingConfig map[string]map[string]ModelPricing

// ModelPricing defines per-1k token pricing.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `yaml:"completion_per_1k,omitempty"`
}

// LoadRoutingConfig reads routing configuration from a YAML file.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg RoutingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	applyRoutingDefaults(&cfg)
	return &cfg, nil
}

// DefaultRoutingConfig returns the default routing configuration.
func DefaultRoutingConfig() *RoutingConfig {
	cfg := &RoutingConfig{
		Tasks: map[string]RouteTarget{
			TaskExtract:     {Adapter: "groq", Model: "llama-3.3-70b-versatile"},
			TaskScenario:    {Adapter: "groq", Model: "llama-3.3-70b-versatile"},
			TaskConsistency: {Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
			TaskPair:        {Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
		},
		Default: RouteTarget{
			Adapter: "anthropic",
			Model:   "claude-sonnet-4-20250514",
		},
	}

	applyRoutingDefaults(cfg)
	return cfg
}

// Validate rejects routes for unknown task kinds.
func (c *RoutingConfig) Validate() error {
	for task := range c.Tasks {
		known := false
		for _, t := range Tasks {
			if t == task {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown task %q in routing config", task)
		}
	}
	return nil
}

// Target returns the route for a task, or the default route.
func (c *RoutingConfig) Target(task string) RouteTarget {
	if c == nil {
		return RouteTarget{}
	}
	if t, ok := c.Tasks[task]; ok && t.Adapter != "" {
		return t
	}
	return c.Default
}

// Override points every task and the default at one adapter and model.
// An empty model keeps each route's configured model only if the adapter
// is unchanged.
func (c *RoutingConfig) Override(adapterName, model string) {
	override := func(t RouteTarget) RouteTarget {
		if adapterName != "" && adapterName != t.Adapter {
			t = RouteTarget{Adapter: adapterName}
		}
		if model != "" {
			t.Model = model
		}
		return t
	}
	c.Default = override(c.Default)
	for task, t := range c.Tasks {
		c.Tasks[task] = override(t)
	}
}

func applyRoutingDefaults(cfg *RoutingConfig) {
	if cfg == nil {
		return
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 2
	}
	if cfg.Retry.BaseBackoffMs == 0 {
		cfg.Retry.BaseBackoffMs = 200
	}
	if cfg.Retry.MaxBackoffMs == 0 {
		cfg.Retry.MaxBackoffMs = 2000
	}
	if cfg.Retry.MaxBackoffMs < cfg.Retry.BaseBackoffMs {
		cfg.Retry.MaxBackoffMs = cfg.Retry.BaseBackoffMs
	}
	if cfg.Tasks == nil {
		cfg.Tasks = make(map[string]RouteTarget)
	}
}
