// Package requirements extracts discrete requirement statements from
// free-form document text.
package requirements

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrExtractionEmpty reports that a document contained no recognizable
// requirements. It is not fatal; callers surface it as an error-tagged result.
var ErrExtractionEmpty = errors.New("no valid requirements found in the document")

// Requirement is a single requirement statement. ID is its identity;
// Keywords are a derived annotation and not part of identity.
type Requirement struct {
	ID       string          `json:"id"`
	Text     string          `json:"text"`
	Keywords map[string]bool `json:"-"`
}

// New creates a requirement without derived annotations.
func New(id, text string) Requirement {
	return Requirement{ID: id, Text: text}
}

// String renders the requirement the way prompts enumerate it.
func (r Requirement) String() string {
	return fmt.Sprintf("%s: %s", r.ID, r.Text)
}

// WithKeywords returns a copy carrying its keyword set.
func (r Requirement) WithKeywords() Requirement {
	r.Keywords = Keywords(r.Text)
	return r
}

// IDs returns the ids of reqs in order.
func IDs(reqs []Requirement) []string {
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return ids
}

// Uniquify makes ids globally unique. Later occurrences of an id already
// seen get a "-2", "-3", ... suffix; order is preserved.
func Uniquify(reqs []Requirement) []Requirement {
	seen := make(map[string]int, len(reqs))
	taken := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		taken[r.ID] = true
	}

	out := make([]Requirement, len(reqs))
	for i, r := range reqs {
		seen[r.ID]++
		if n := seen[r.ID]; n > 1 {
			id := fmt.Sprintf("%s-%d", r.ID, n)
			for taken[id] {
				n++
				id = fmt.Sprintf("%s-%d", r.ID, n)
			}
			seen[r.ID] = n
			taken[id] = true
			r.ID = id
		}
		out[i] = r
	}
	return out
}

// defaultStopWords never count as relatedness keywords.
var defaultStopWords = map[string]bool{
	"shall": true, "should": true, "must": true, "will": true, "the": true,
	"and": true, "that": true, "with": true, "from": true, "this": true,
}

// Keywords returns the lower-cased whitespace-separated words of text that
// are longer than three characters and not stop words.
func Keywords(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	keywords := make(map[string]bool, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) > 3 && !defaultStopWords[w] {
			keywords[w] = true
		}
	}
	return keywords
}
