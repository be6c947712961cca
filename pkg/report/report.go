// Package report renders analysis and scenario results for people and
// for downstream tools.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zen-systems/reqlens/pkg/consistency"
	"github.com/zen-systems/reqlens/pkg/scenario"
)

// DegradedNotice is prepended to reports built from synthetic answers.
const DegradedNotice = "> **Degraded:** no language model answered some prompts; the verdicts below may be placeholders.\n\n"

// Markdown renders a consistency analysis.
func Markdown(res consistency.AnalysisResult) string {
	var b strings.Builder
	b.WriteString("# Requirements Consistency Analysis Report\n\n")
	if res.Degraded {
		b.WriteString(DegradedNotice)
	}

	switch {
	case res.Error != "":
		fmt.Fprintf(&b, "## Error\n\n%s\n", res.Error)
	case res.IsConsistent:
		b.WriteString("No inconsistencies found.\n")
	default:
		fmt.Fprintf(&b, "Found %d inconsistencies.\n", len(res.Inconsistencies))
		for i, inc := range res.Inconsistencies {
			fmt.Fprintf(&b, "### Inconsistency %d\n", i+1)
			fmt.Fprintf(&b, "Conflicting: %s\n", strings.Join(inc.ConflictingReqs, ", "))
			fmt.Fprintf(&b, "Description: %s\n", inc.Description)
			fmt.Fprintf(&b, "Resolution: %s\n", inc.Resolution)
			if inc.Confidence != "" {
				fmt.Fprintf(&b, "Confidence: %s\n", inc.Confidence)
			}
			if inc.AnalysisError {
				b.WriteString("Note: the analysis of these requirements failed; review them manually.\n")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ScenariosMarkdown renders the test scenarios of a processing result in
// requirement order.
func ScenariosMarkdown(res scenario.ProcessingResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Test Scenarios: %s\n\n", res.SourceFile)
	if res.Degraded() {
		b.WriteString(DegradedNotice)
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "## Error\n\n%s\n", res.Error)
		return b.String()
	}

	for _, r := range res.Requirements {
		fmt.Fprintf(&b, "## %s\n\n> %s\n\n", r.ID, r.Text)
		s, ok := res.TestScenarios[r.ID]
		if !ok {
			b.WriteString("_No scenarios generated._\n\n")
			continue
		}
		b.WriteString(strings.TrimSpace(s.Scenarios))
		b.WriteString("\n\n")
	}
	return b.String()
}

// ScenarioDocument is the JSON layout of exported scenarios.
type ScenarioDocument struct {
	SourceFile        string                   `json:"source_file"`
	RequirementsCount int                      `json:"requirements_count"`
	Results           map[string]ScenarioEntry `json:"results"`
}

// ScenarioEntry is one requirement with its scenarios.
type ScenarioEntry struct {
	Requirement RequirementRef `json:"requirement"`
	Scenarios   string         `json:"scenarios"`
}

// RequirementRef identifies a requirement in exported JSON.
type RequirementRef struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ScenarioJSON converts a processing result to the export layout.
func ScenarioJSON(res scenario.ProcessingResult) ScenarioDocument {
	doc := ScenarioDocument{
		SourceFile:        res.SourceFile,
		RequirementsCount: len(res.Requirements),
		Results:           make(map[string]ScenarioEntry, len(res.TestScenarios)),
	}
	for id, s := range res.TestScenarios {
		doc.Results[id] = ScenarioEntry{
			Requirement: RequirementRef{ID: s.Requirement.ID, Text: s.Requirement.Text},
			Scenarios:   s.Scenarios,
		}
	}
	return doc
}

// JSON encodes v with two-space indentation.
func JSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
