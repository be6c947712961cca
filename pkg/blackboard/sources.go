package blackboard

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/zen-systems/reqlens/pkg/consistency"
	"github.com/zen-systems/reqlens/pkg/document"
	"github.com/zen-systems/reqlens/pkg/oracle"
	"github.com/zen-systems/reqlens/pkg/requirements"
	"github.com/zen-systems/reqlens/pkg/scenario"
)

// Deps are the collaborators knowledge sources are built from. A nil
// field disables the sources that need it.
type Deps struct {
	Parsers   *document.Registry
	Extractor oracle.Oracle
	Analyzer  *consistency.Analyzer
	Scenarios *scenario.Generator
	Logger    *zap.Logger
}

// NewSources builds the sources for kinds, in canonical order regardless
// of the order given. Duplicate kinds are rejected.
func NewSources(kinds []Kind, deps Deps) ([]KnowledgeSource, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		if _, ok := kindNames[k]; !ok {
			return nil, fmt.Errorf("unknown knowledge source %s", k)
		}
		if want[k] {
			return nil, fmt.Errorf("duplicate knowledge source %s", k)
		}
		want[k] = true
	}

	var sources []KnowledgeSource
	for _, k := range Kinds() {
		if !want[k] {
			continue
		}
		switch k {
		case KindDocumentParser:
			parsers := deps.Parsers
			if parsers == nil {
				parsers = document.NewRegistry(document.WithLogger(logger))
			}
			sources = append(sources, &DocumentParser{parsers: parsers, logger: logger})
		case KindTextCleaner:
			sources = append(sources, &TextCleaner{})
		case KindLLMRequirementExtractor:
			if deps.Extractor == nil {
				return nil, fmt.Errorf("%s requires an extraction oracle", k)
			}
			sources = append(sources, &LLMRequirementExtractor{oracle: deps.Extractor, logger: logger})
		case KindRegexRequirementExtractor:
			sources = append(sources, &RegexRequirementExtractor{
				llmRegistered: want[KindLLMRequirementExtractor],
				logger:        logger,
			})
		case KindConsistencyChecker:
			if deps.Analyzer == nil {
				return nil, fmt.Errorf("%s requires an analyzer", k)
			}
			sources = append(sources, &ConsistencyChecker{analyzer: deps.Analyzer})
		case KindScenarioGenerator:
			if deps.Scenarios == nil {
				return nil, fmt.Errorf("%s requires a scenario generator", k)
			}
			sources = append(sources, &ScenarioGenerator{generator: deps.Scenarios})
		case KindResultFormatter:
			sources = append(sources, &ResultFormatter{
				awaitConsistency: want[KindConsistencyChecker],
				awaitScenarios:   want[KindScenarioGenerator],
			})
		}
	}
	return sources, nil
}

// DocumentParser turns the input file into raw text.
type DocumentParser struct {
	parsers *document.Registry
	logger  *zap.Logger
}

func (s *DocumentParser) Name() string { return KindDocumentParser.String() }
func (s *DocumentParser) Kind() Kind   { return KindDocumentParser }

func (s *DocumentParser) CanContribute(b *Board) bool {
	return !b.RawText.IsSet() && (b.FilePath.IsSet() || b.Content.IsSet())
}

func (s *DocumentParser) Contribute(ctx context.Context, b *Board) error {
	name := b.FilePath.Value()
	data, ok := b.Content.Get()
	if !ok {
		var err error
		data, err = os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
	}

	res, err := s.parsers.Parse(ctx, name, data)
	if err != nil {
		return err
	}
	if res.ParseError != "" {
		s.logger.Warn("document parsed with fallback decoder",
			zap.String("file", name),
			zap.String("parse_error", res.ParseError))
	}
	b.FileType.Set(res.FileType)
	b.RawText.Set(res.Text)
	return nil
}

// TextCleaner normalizes raw text.
type TextCleaner struct{}

func (s *TextCleaner) Name() string { return KindTextCleaner.String() }
func (s *TextCleaner) Kind() Kind   { return KindTextCleaner }

func (s *TextCleaner) CanContribute(b *Board) bool {
	return b.RawText.IsSet() && !b.CleanText.IsSet()
}

func (s *TextCleaner) Contribute(_ context.Context, b *Board) error {
	b.CleanText.Set(document.Clean(b.RawText.Value()))
	return nil
}

// LLMRequirementExtractor asks the extraction oracle for requirements. On
// failure it records the error so the regex extractor can take over.
type LLMRequirementExtractor struct {
	oracle oracle.Oracle
	logger *zap.Logger
}

func (s *LLMRequirementExtractor) Name() string { return KindLLMRequirementExtractor.String() }
func (s *LLMRequirementExtractor) Kind() Kind   { return KindLLMRequirementExtractor }

func (s *LLMRequirementExtractor) CanContribute(b *Board) bool {
	return b.CleanText.IsSet() && !b.Requirements.IsSet() && !b.LLMError.IsSet()
}

func (s *LLMRequirementExtractor) Contribute(ctx context.Context, b *Board) error {
	reqs, err := requirements.ExtractWithOracle(ctx, s.oracle, b.CleanText.Value())
	if err == nil && len(reqs) == 0 {
		err = requirements.ErrExtractionEmpty
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Info("llm extraction failed, deferring to regex extractor", zap.Error(err))
		b.LLMError.Set(err.Error())
		return nil
	}

	b.Requirements.Set(reqs)
	b.RequirementsMethod.Set(string(requirements.MethodLLM))
	return nil
}

// RegexRequirementExtractor extracts requirements without an oracle. It
// runs when the LLM extractor failed or is not registered.
type RegexRequirementExtractor struct {
	llmRegistered bool
	logger        *zap.Logger
}

func (s *RegexRequirementExtractor) Name() string { return KindRegexRequirementExtractor.String() }
func (s *RegexRequirementExtractor) Kind() Kind   { return KindRegexRequirementExtractor }

func (s *RegexRequirementExtractor) CanContribute(b *Board) bool {
	if !b.CleanText.IsSet() || b.Requirements.IsSet() {
		return false
	}
	return b.LLMError.IsSet() || !s.llmRegistered
}

func (s *RegexRequirementExtractor) Contribute(_ context.Context, b *Board) error {
	text := b.CleanText.Value()
	reqs, method := requirements.Extract(text)
	if len(reqs) == 0 {
		reqs = requirements.Uniquify(requirements.ExtractLines(text))
		method = requirements.MethodLines
		if len(reqs) == 0 {
			method = requirements.MethodNone
		}
	}
	s.logger.Debug("regex extraction finished",
		zap.String("method", string(method)),
		zap.Int("requirements", len(reqs)))

	if reqs == nil {
		reqs = []requirements.Requirement{}
	}
	b.Requirements.Set(reqs)
	b.RequirementsMethod.Set(string(method))
	return nil
}

// ConsistencyChecker runs the consistency analyzer over the requirements.
type ConsistencyChecker struct {
	analyzer *consistency.Analyzer
}

func (s *ConsistencyChecker) Name() string { return KindConsistencyChecker.String() }
func (s *ConsistencyChecker) Kind() Kind   { return KindConsistencyChecker }

func (s *ConsistencyChecker) CanContribute(b *Board) bool {
	return b.Requirements.IsSet() && !b.Consistency.IsSet()
}

func (s *ConsistencyChecker) Contribute(ctx context.Context, b *Board) error {
	res, err := s.analyzer.Analyze(ctx, b.Requirements.Value())
	if err != nil {
		return err
	}
	b.Consistency.Set(res)
	return nil
}

// ScenarioGenerator produces test scenarios per requirement.
type ScenarioGenerator struct {
	generator *scenario.Generator
}

func (s *ScenarioGenerator) Name() string { return KindScenarioGenerator.String() }
func (s *ScenarioGenerator) Kind() Kind   { return KindScenarioGenerator }

func (s *ScenarioGenerator) CanContribute(b *Board) bool {
	return b.Requirements.IsSet() && !b.Scenarios.IsSet()
}

func (s *ScenarioGenerator) Contribute(ctx context.Context, b *Board) error {
	out, err := s.generator.Generate(ctx, b.Requirements.Value())
	if err != nil {
		return err
	}
	if out == nil {
		out = map[string]scenario.TestScenario{}
	}
	b.Scenarios.Set(out)
	return nil
}

// ResultFormatter assembles the processing result once every registered
// upstream source has written its slot.
type ResultFormatter struct {
	awaitConsistency bool
	awaitScenarios   bool
}

func (s *ResultFormatter) Name() string { return KindResultFormatter.String() }
func (s *ResultFormatter) Kind() Kind   { return KindResultFormatter }

func (s *ResultFormatter) CanContribute(b *Board) bool {
	if !b.Requirements.IsSet() || b.Result.IsSet() {
		return false
	}
	if s.awaitConsistency && !b.Consistency.IsSet() {
		return false
	}
	if s.awaitScenarios && !b.Scenarios.IsSet() {
		return false
	}
	return true
}

func (s *ResultFormatter) Contribute(_ context.Context, b *Board) error {
	reqs := b.Requirements.Value()
	res := scenario.ProcessingResult{
		SourceFile:         b.FilePath.Value(),
		Requirements:       reqs,
		RequirementsMethod: b.RequirementsMethod.Value(),
		TestScenarios:      b.Scenarios.Value(),
	}
	if c, ok := b.Consistency.Get(); ok {
		res.Consistency = &c
	}
	if len(reqs) == 0 {
		res.Error = consistency.EmptyResult().Error
	}
	b.Result.Set(res)
	return nil
}

