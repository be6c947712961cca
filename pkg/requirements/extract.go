package requirements

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// Method names the strategy that produced a requirement list.
type Method string

const (
	MethodStructural Method = "structural"
	MethodHeuristic  Method = "heuristic"
	MethodLines      Method = "lines"
	MethodLLM        Method = "llm"
	MethodNone       Method = "none"
)

// MinSentenceLength is the shortest sentence the heuristic fallback keeps.
const MinSentenceLength = 15

// markerPattern matches an explicit requirement marker such as "REQ-1:",
// "FR-2:", "NFR-3", "R 2.1" or "Requirement 3:". The text of a requirement runs from the end
// of its marker to the start of the next one.
var markerPattern = regexp.MustCompile(`(?i)\b(?:Requirement|REQ|N?FR|R)[-\s]?(\d+(?:\.\d+)*)[:\s]+`)

// obligationKeywords select sentences in the heuristic fallback.
var obligationKeywords = []string{"shall", "must", "should", "will", "requires", "needs to", "has to"}

// modalLinePattern selects lines in the line-oriented extractor.
var modalLinePattern = regexp.MustCompile(`(?i)\b(shall|must|should|may|require)\b`)

// Extract returns the requirements in text. Explicit markers are
// authoritative; sentence heuristics only run when no marker matches.
// Ids are unique in the returned list.
func Extract(text string) ([]Requirement, Method) {
	if reqs := ExtractStructural(text); len(reqs) > 0 {
		return Uniquify(reqs), MethodStructural
	}
	if reqs := ExtractHeuristic(text); len(reqs) > 0 {
		return reqs, MethodHeuristic
	}
	return nil, MethodNone
}

// ExtractStructural scans text for explicit requirement markers.
func ExtractStructural(text string) []Requirement {
	matches := markerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var reqs []Requirement
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		content := strings.TrimSpace(text[m[1]:end])
		if content == "" {
			continue
		}
		reqs = append(reqs, New("R"+text[m[2]:m[3]], content))
	}
	return reqs
}

// ExtractHeuristic keeps sentences that are long enough and contain an
// obligation keyword, numbering them R1..Rn in document order.
func ExtractHeuristic(text string) []Requirement {
	var reqs []Requirement
	for _, sentence := range splitSentences(text) {
		s := strings.TrimSpace(sentence)
		if utf8.RuneCountInString(s) < MinSentenceLength || !hasObligation(s) {
			continue
		}
		reqs = append(reqs, New(nextID(len(reqs)), s))
	}
	return reqs
}

// ExtractLines treats every line carrying a modal verb as one requirement.
func ExtractLines(text string) []Requirement {
	var reqs []Requirement
	for _, line := range strings.Split(text, "\n") {
		if !modalLinePattern.MatchString(line) {
			continue
		}
		reqs = append(reqs, New(nextID(len(reqs)), strings.TrimSpace(line)))
	}
	return reqs
}

func hasObligation(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, k := range obligationKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func nextID(n int) string {
	return "R" + strconv.Itoa(n+1)
}

var (
	tokenizerOnce sync.Once
	tokenizer     *sentences.DefaultSentenceTokenizer
)

func splitSentences(text string) []string {
	tokenizerOnce.Do(func() {
		t, err := english.NewSentenceTokenizer(nil)
		if err == nil {
			tokenizer = t
		}
	})
	if tokenizer == nil {
		return splitOnTerminators(text)
	}

	var out []string
	for _, paragraph := range strings.Split(text, "\n\n") {
		for _, s := range tokenizer.Tokenize(paragraph) {
			out = append(out, s.Text)
		}
	}
	return out
}

// splitOnTerminators is used when the punkt model cannot be loaded.
func splitOnTerminators(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t' {
				out = append(out, text[start:i+1])
				start = i + 1
			}
		case '\n':
			if i+1 < len(text) && text[i+1] == '\n' {
				out = append(out, text[start:i])
				start = i + 1
			}
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
