package consistency

import (
	"sort"

	"github.com/zen-systems/reqlens/pkg/requirements"
)

const (
	DefaultRelatednessThreshold = 3
	DefaultMaxRelatedPairs      = 20
)

// RelatedPair is two requirements sharing enough keywords to be compared.
type RelatedPair struct {
	A, B   requirements.Requirement
	Shared []string
}

// FindRelated returns pairs (i<j) sharing at least threshold keywords, in
// discovery order, truncated to maxPairs. maxPairs <= 0 means no cap.
func FindRelated(reqs []requirements.Requirement, threshold, maxPairs int) []RelatedPair {
	if threshold <= 0 {
		threshold = DefaultRelatednessThreshold
	}

	keywords := make([]map[string]bool, len(reqs))
	for i, r := range reqs {
		keywords[i] = r.Keywords
		if keywords[i] == nil {
			keywords[i] = requirements.Keywords(r.Text)
		}
	}

	var pairs []RelatedPair
	for i := range reqs {
		for j := i + 1; j < len(reqs); j++ {
			shared := SharedKeywords(keywords[i], keywords[j])
			if len(shared) < threshold {
				continue
			}
			pairs = append(pairs, RelatedPair{A: reqs[i], B: reqs[j], Shared: shared})
			if maxPairs > 0 && len(pairs) == maxPairs {
				return pairs
			}
		}
	}
	return pairs
}

// SharedKeywords returns the sorted intersection of two keyword sets.
func SharedKeywords(a, b map[string]bool) []string {
	if len(b) < len(a) {
		a, b = b, a
	}
	var shared []string
	for w := range a {
		if b[w] {
			shared = append(shared, w)
		}
	}
	sort.Strings(shared)
	return shared
}
