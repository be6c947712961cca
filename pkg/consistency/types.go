// Package consistency finds contradictions within a requirement set by
// asking an oracle about chunks and about keyword-related pairs, then
// merging the verdicts.
package consistency

import (
	"errors"
	"sort"
	"strings"
)

// ErrMalformedResponse marks an oracle verdict that could not be parsed.
var ErrMalformedResponse = errors.New("malformed oracle response")

// Confidence is the oracle's certainty about an inconsistency.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Rank orders confidences for sorting: high=0, medium=1, everything else 2.
func (c Confidence) Rank() int {
	switch Confidence(strings.ToLower(string(c))) {
	case ConfidenceHigh:
		return 0
	case ConfidenceMedium:
		return 1
	default:
		return 2
	}
}

// Inconsistency is one reported conflict between requirements.
type Inconsistency struct {
	ConflictingReqs []string   `json:"conflicting_reqs"`
	Description     string     `json:"description"`
	Resolution      string     `json:"resolution"`
	Confidence      Confidence `json:"confidence,omitempty"`
	// AnalysisError marks a finding raised because the oracle could not
	// judge these requirements, not because they conflict.
	AnalysisError bool `json:"analysis_error,omitempty"`
}

// Key returns the sorted conflicting ids joined by commas. Empty means the
// finding cannot be attributed.
func (i Inconsistency) Key() string {
	ids := make([]string, 0, len(i.ConflictingReqs))
	for _, id := range i.ConflictingReqs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// AnalysisResult is a consistency verdict for a chunk, a pair set, or a
// whole document.
type AnalysisResult struct {
	IsConsistent              bool            `json:"is_consistent"`
	Inconsistencies           []Inconsistency `json:"inconsistencies"`
	TotalInconsistenciesFound int             `json:"total_inconsistencies_found"`
	Error                     string          `json:"error,omitempty"`
	// Degraded is set when any verdict behind this result was synthetic.
	Degraded    bool   `json:"degraded,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
}

// EmptyResult is the explicit result for a document with no requirements.
func EmptyResult() AnalysisResult {
	return AnalysisResult{
		IsConsistent:    false,
		Inconsistencies: []Inconsistency{},
		Error:           "No valid requirements found in the document",
	}
}
