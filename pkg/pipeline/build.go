package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zen-systems/reqlens/pkg/blackboard"
	"github.com/zen-systems/reqlens/pkg/chunk"
	"github.com/zen-systems/reqlens/pkg/config"
	"github.com/zen-systems/reqlens/pkg/consistency"
	"github.com/zen-systems/reqlens/pkg/document"
	"github.com/zen-systems/reqlens/pkg/oracle"
	"github.com/zen-systems/reqlens/pkg/scenario"
)

// Oracles hands out the oracle for a task kind. *oracle.Router implements it.
type Oracles interface {
	For(task string) (oracle.Oracle, error)
}

// SingleOracle serves every task from one oracle.
type SingleOracle struct {
	Oracle oracle.Oracle
}

// For returns s.Oracle.
func (s SingleOracle) For(string) (oracle.Oracle, error) {
	return s.Oracle, nil
}

// BuildOptions are the collaborators Build wires into sources.
type BuildOptions struct {
	Oracles  Oracles
	Analysis config.AnalysisConfig
	Logger   *zap.Logger
	// Observer, when set, sees every oracle call.
	Observer func(oracle.Call)
}

// Build turns a validated manifest into ordered knowledge sources.
// Oracles are only requested for the tasks the enabled sources need.
func Build(m *Manifest, opts BuildOptions) ([]blackboard.KnowledgeSource, error) {
	kinds, err := m.Kinds()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	analysis := opts.Analysis.Overlay(m.Analysis)
	analysis.ApplyDefaults()

	task := func(name string) (oracle.Oracle, error) {
		if opts.Oracles == nil {
			return nil, fmt.Errorf("pipeline %s: no oracles configured for task %s", m.Name, name)
		}
		o, err := opts.Oracles.For(name)
		if err != nil {
			return nil, err
		}
		return oracle.Recorded(o, name, opts.Observer), nil
	}

	deps := blackboard.Deps{
		Parsers: document.NewRegistry(document.WithLogger(logger)),
		Logger:  logger,
	}
	for _, k := range kinds {
		switch k {
		case blackboard.KindLLMRequirementExtractor:
			if deps.Extractor, err = task(config.TaskExtract); err != nil {
				return nil, err
			}
		case blackboard.KindConsistencyChecker:
			if deps.Analyzer, err = buildAnalyzer(analysis, task, logger); err != nil {
				return nil, err
			}
		case blackboard.KindScenarioGenerator:
			o, err := task(config.TaskScenario)
			if err != nil {
				return nil, err
			}
			deps.Scenarios = scenario.NewGenerator(o,
				scenario.WithLogger(logger),
				scenario.WithConcurrency(analysis.Concurrency))
		}
	}

	return blackboard.NewSources(kinds, deps)
}

func buildAnalyzer(a config.AnalysisConfig, task func(string) (oracle.Oracle, error), logger *zap.Logger) (*consistency.Analyzer, error) {
	size, err := chunk.SizeFuncByName(a.SizeFunc)
	if err != nil {
		return nil, err
	}
	chunkOracle, err := task(config.TaskConsistency)
	if err != nil {
		return nil, err
	}
	pairOracle, err := task(config.TaskPair)
	if err != nil {
		return nil, err
	}
	return consistency.NewAnalyzer(chunkOracle,
		consistency.WithLogger(logger),
		consistency.WithChunking(size, a.ChunkBudget),
		consistency.WithRelatedness(a.RelatednessThreshold, a.MaxRelatedPairs),
		consistency.WithConcurrency(a.Concurrency),
		consistency.WithPairOracle(pairOracle),
	), nil
}
