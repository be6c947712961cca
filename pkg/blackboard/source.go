package blackboard

import (
	"context"
	"fmt"
)

// Kind identifies one of the fixed knowledge source types.
type Kind int

const (
	KindDocumentParser Kind = iota + 1
	KindTextCleaner
	KindLLMRequirementExtractor
	KindRegexRequirementExtractor
	KindConsistencyChecker
	KindScenarioGenerator
	KindResultFormatter
)

var kindNames = map[Kind]string{
	KindDocumentParser:            "DocumentParser",
	KindTextCleaner:               "TextCleaner",
	KindLLMRequirementExtractor:   "LLMRequirementExtractor",
	KindRegexRequirementExtractor: "RegexRequirementExtractor",
	KindConsistencyChecker:        "ConsistencyChecker",
	KindScenarioGenerator:         "ScenarioGenerator",
	KindResultFormatter:           "ResultFormatter",
}

// Kinds returns every kind in canonical pipeline order.
func Kinds() []Kind {
	return []Kind{
		KindDocumentParser,
		KindTextCleaner,
		KindLLMRequirementExtractor,
		KindRegexRequirementExtractor,
		KindConsistencyChecker,
		KindScenarioGenerator,
		KindResultFormatter,
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a source name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown knowledge source %q", name)
}

// KnowledgeSource is one unit of work the controller may schedule.
// After Contribute returns nil, CanContribute on the same board must be
// false. Contribute returns an error only for faults that should abort the
// run; recoverable failures are written to the board.
type KnowledgeSource interface {
	Name() string
	Kind() Kind
	CanContribute(b *Board) bool
	Contribute(ctx context.Context, b *Board) error
}
