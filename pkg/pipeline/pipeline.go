// Package pipeline runs the blackboard from a declarative YAML manifest
// and records evidence for each run.
package pipeline

import (
	"github.com/zen-systems/reqlens/pkg/blackboard"
	"github.com/zen-systems/reqlens/pkg/config"
)

// Manifest names the knowledge sources of a run and tunes analysis.
type Manifest struct {
	Name        string                `yaml:"name"`
	Description string                `yaml:"description,omitempty"`
	Sources     []string              `yaml:"sources"`
	Analysis    config.AnalysisConfig `yaml:"analysis,omitempty"`
	Extraction  Extraction            `yaml:"extraction,omitempty"`
}

// Extraction controls requirement extraction.
type Extraction struct {
	// LLM enables the oracle-backed extractor. Unset means enabled.
	LLM *bool `yaml:"llm,omitempty"`
}

// UseLLM reports whether the LLM extractor may run.
func (e Extraction) UseLLM() bool {
	return e.LLM == nil || *e.LLM
}

// DefaultManifest runs every knowledge source in canonical order.
func DefaultManifest() *Manifest {
	m := &Manifest{
		Name:        "default",
		Description: "parse, extract, check consistency and generate scenarios",
	}
	for _, k := range blackboard.Kinds() {
		m.Sources = append(m.Sources, k.String())
	}
	return m
}
