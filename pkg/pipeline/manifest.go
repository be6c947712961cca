package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zen-systems/reqlens/pkg/blackboard"
	"github.com/zen-systems/reqlens/pkg/chunk"
)

// LoadManifest reads a pipeline definition from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks the manifest for errors.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(m.Sources) == 0 {
		return fmt.Errorf("pipeline must define at least one source")
	}

	seen := make(map[blackboard.Kind]struct{})
	for _, name := range m.Sources {
		if name == "" {
			return fmt.Errorf("source name is required")
		}
		k, err := blackboard.ParseKind(name)
		if err != nil {
			return err
		}
		if _, ok := seen[k]; ok {
			return fmt.Errorf("duplicate source: %s", name)
		}
		seen[k] = struct{}{}
	}

	for _, k := range []blackboard.Kind{blackboard.KindDocumentParser, blackboard.KindTextCleaner, blackboard.KindResultFormatter} {
		if _, ok := seen[k]; !ok {
			return fmt.Errorf("pipeline %s must include %s", m.Name, k)
		}
	}
	_, llm := seen[blackboard.KindLLMRequirementExtractor]
	_, regex := seen[blackboard.KindRegexRequirementExtractor]
	if !regex && !(llm && m.Extraction.UseLLM()) {
		return fmt.Errorf("pipeline %s has no enabled requirement extractor", m.Name)
	}

	a := m.Analysis
	if a.ChunkBudget < 0 || a.RelatednessThreshold < 0 || a.MaxRelatedPairs < 0 || a.Concurrency < 0 {
		return fmt.Errorf("pipeline %s: analysis settings must not be negative", m.Name)
	}
	if a.SizeFunc != "" {
		if _, err := chunk.SizeFuncByName(a.SizeFunc); err != nil {
			return fmt.Errorf("pipeline %s: %w", m.Name, err)
		}
	}

	return nil
}

// Kinds returns the knowledge sources the manifest enables.
func (m *Manifest) Kinds() ([]blackboard.Kind, error) {
	var kinds []blackboard.Kind
	for _, name := range m.Sources {
		k, err := blackboard.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if k == blackboard.KindLLMRequirementExtractor && !m.Extraction.UseLLM() {
			continue
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
