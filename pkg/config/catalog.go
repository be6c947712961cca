package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Catalog maps model aliases to canonical model names and lists the models
// each provider serves. Routes may name a model by either form.
type Catalog struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// Resolution is the outcome of looking up a routed model name.
type Resolution struct {
	Name     string
	Model    string
	Provider string
	Chain    []string
}

// IsAlias reports whether Name went through at least one alias.
func (r Resolution) IsAlias() bool {
	return len(r.Chain) > 0
}

// LoadCatalog reads a models.yaml file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := &Catalog{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// LayeredCatalog starts from DefaultCatalog and merges projectPath, then
// ~/.reqlens/models.yaml, over it. Missing files are skipped; a file that
// exists but cannot be parsed is an error.
func LayeredCatalog(projectPath string) (*Catalog, error) {
	c := DefaultCatalog()

	var paths []string
	if projectPath != "" {
		paths = append(paths, projectPath)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".reqlens", "models.yaml"))
	}

	for _, p := range paths {
		layer, err := LoadCatalog(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		c.Merge(layer)
	}
	return c, nil
}

// Merge overlays o onto c. Aliases in o win; a provider listed in o replaces
// that provider's model list.
func (c *Catalog) Merge(o *Catalog) {
	if o == nil {
		return
	}
	if c.Aliases == nil {
		c.Aliases = make(map[string]string, len(o.Aliases))
	}
	if c.Providers == nil {
		c.Providers = make(map[string][]string, len(o.Providers))
	}
	for k, v := range o.Aliases {
		c.Aliases[k] = v
	}
	for k, v := range o.Providers {
		c.Providers[k] = append([]string(nil), v...)
	}
}

// Lookup follows name through the alias table until it reaches a name that
// is not an alias. A cycle stops at the first repeated name.
func (c *Catalog) Lookup(name string) Resolution {
	res := Resolution{Name: name, Model: name}
	if c == nil {
		return res
	}
	seen := map[string]bool{name: true}
	for {
		next, ok := c.Aliases[res.Model]
		if !ok || seen[next] {
			break
		}
		res.Chain = append(res.Chain, res.Model)
		seen[next] = true
		res.Model = next
	}
	res.Provider = c.ProviderFor(res.Model)
	return res
}

// Resolve returns the canonical model for name, or name itself.
func (c *Catalog) Resolve(name string) string {
	return c.Lookup(name).Model
}

// ProviderFor returns the first provider, by name, that lists model.
func (c *Catalog) ProviderFor(model string) string {
	for _, p := range c.ProviderNames() {
		for _, m := range c.Providers[p] {
			if m == model {
				return p
			}
		}
	}
	return ""
}

// ProviderNames returns the providers in sorted order.
func (c *Catalog) ProviderNames() []string {
	if c == nil {
		return nil
	}
	return sortedKeys(c.Providers)
}

// AliasNames returns the aliases in sorted order.
func (c *Catalog) AliasNames() []string {
	if c == nil {
		return nil
	}
	return sortedKeys(c.Aliases)
}

// Models returns the models listed for provider.
func (c *Catalog) Models(provider string) []string {
	if c == nil {
		return nil
	}
	return c.Providers[provider]
}

// CheckTarget resolves t's model and confirms its adapter lists it. A
// catalog with no providers cannot check anything and accepts every target.
func (c *Catalog) CheckTarget(t RouteTarget) error {
	if c == nil || len(c.Providers) == 0 {
		return nil
	}
	models, ok := c.Providers[t.Adapter]
	if !ok {
		return fmt.Errorf("unknown adapter %q", t.Adapter)
	}
	res := c.Lookup(t.Model)
	for _, m := range models {
		if m == res.Model {
			return nil
		}
	}
	if res.IsAlias() {
		return fmt.Errorf("model %q (alias %q) not in %s provider list", res.Model, t.Model, t.Adapter)
	}
	return fmt.Errorf("model %q not in %s provider list", t.Model, t.Adapter)
}

// CheckRouting checks every task route, the default route and each fallback
// target, in a stable order.
func (c *Catalog) CheckRouting(cfg *RoutingConfig) []error {
	if c == nil || cfg == nil {
		return nil
	}

	var errs []error
	for _, task := range sortedKeys(cfg.Tasks) {
		if err := c.CheckTarget(cfg.Tasks[task]); err != nil {
			errs = append(errs, fmt.Errorf("task %q: %w", task, err))
		}
	}
	if err := c.CheckTarget(cfg.Default); err != nil {
		errs = append(errs, fmt.Errorf("default: %w", err))
	}
	for _, from := range sortedKeys(cfg.Fallback.FallbackChain) {
		for i, t := range cfg.Fallback.FallbackChain[from] {
			if err := c.CheckTarget(t); err != nil {
				errs = append(errs, fmt.Errorf("fallback %s[%d]: %w", from, i, err))
			}
		}
	}
	return errs
}

// DefaultCatalog covers the models the default routing uses.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Aliases: map[string]string{
			"quality": "claude-sonnet-4-20250514",
			"deep":    "claude-opus-4-20250514",
			"fast":    "gpt-4o-mini",
			"gpt":     "gpt-4o",
			"gemini":  "gemini-2.0-flash",
			"llama":   "llama-3.3-70b-versatile",
			"cheap":   "llama-3.1-8b-instant",
		},
		Providers: map[string][]string{
			"anthropic": {"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
			"openai":    {"gpt-4o", "gpt-4o-mini"},
			"google":    {"gemini-2.0-flash", "gemini-2.0-pro"},
			"groq":      {"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
			"mock":      {"mock"},
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
