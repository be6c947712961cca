// Package adapter wraps LLM provider SDKs behind one Generate call.
package adapter

import (
	"context"
	"fmt"
	"sort"
)

// Adapter defines the interface for LLM provider adapters.
type Adapter interface {
	// Generate sends a prompt to the model and returns its response.
	Generate(ctx context.Context, model string, prompt string) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// Keys carries provider credentials. Empty keys leave that provider out.
type Keys struct {
	Anthropic string
	OpenAI    string
	Google    string
	Groq      string
}

// Registry builds the adapters for every provider with a key, plus mock.
// Provider construction errors are returned keyed by adapter name so callers
// can report them without losing the adapters that did start.
func Registry(ctx context.Context, keys Keys) (map[string]Adapter, map[string]error) {
	adapters := map[string]Adapter{"mock": NewMockAdapter()}
	errs := make(map[string]error)

	add := func(name string, a Adapter, err error) {
		if err != nil {
			errs[name] = err
			return
		}
		adapters[name] = a
	}

	if keys.Anthropic != "" {
		a, err := NewAnthropicAdapter(keys.Anthropic)
		add("anthropic", a, err)
	}
	if keys.OpenAI != "" {
		a, err := NewOpenAIAdapter(keys.OpenAI)
		add("openai", a, err)
	}
	if keys.Google != "" {
		a, err := NewGoogleAdapter(ctx, keys.Google)
		add("google", a, err)
	}
	if keys.Groq != "" {
		a, err := NewGroqAdapter(keys.Groq)
		add("groq", a, err)
	}
	return adapters, errs
}

// Names returns the sorted adapter names in a registry.
func Names(adapters map[string]Adapter) []string {
	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func emptyKeyError(provider string) error {
	return fmt.Errorf("%s API key is required", provider)
}
