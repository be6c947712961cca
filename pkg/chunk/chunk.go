// Package chunk groups requirements into size-bounded batches for oracle calls.
package chunk

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/zen-systems/reqlens/pkg/requirements"
)

// ErrChunkOverflow reports a single requirement larger than the chunk budget.
var ErrChunkOverflow = errors.New("requirement exceeds chunk budget")

// OverflowError carries the requirement that could not be placed.
type OverflowError struct {
	ID     string
	Size   int
	Budget int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("requirement %s has size %d, budget is %d", e.ID, e.Size, e.Budget)
}

func (e *OverflowError) Unwrap() error {
	return ErrChunkOverflow
}

// SizeFunc measures one requirement.
type SizeFunc func(requirements.Requirement) int

// CharCount measures the rendered "ID: text" line in runes.
func CharCount(r requirements.Requirement) int {
	return utf8.RuneCountInString(r.String())
}

// TokenEstimate approximates tokens at four characters per token.
func TokenEstimate(r requirements.Requirement) int {
	n := CharCount(r)
	return (n + 3) / 4
}

// Unit counts every requirement as one, so budget becomes a count limit.
func Unit(requirements.Requirement) int {
	return 1
}

// SizeFuncByName resolves a configured size function name.
func SizeFuncByName(name string) (SizeFunc, error) {
	switch name {
	case "", "chars":
		return CharCount, nil
	case "tokens":
		return TokenEstimate, nil
	case "count":
		return Unit, nil
	default:
		return nil, fmt.Errorf("unknown size function %q", name)
	}
}

// Chunk packs reqs greedily, in order, into chunks whose total size stays
// within budget. A requirement that alone exceeds budget fails the whole call.
func Chunk(reqs []requirements.Requirement, size SizeFunc, budget int) ([][]requirements.Requirement, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("chunk budget must be positive, got %d", budget)
	}
	if size == nil {
		size = CharCount
	}

	var chunks [][]requirements.Requirement
	var current []requirements.Requirement
	used := 0

	for _, r := range reqs {
		n := size(r)
		if n > budget {
			return nil, &OverflowError{ID: r.ID, Size: n, Budget: budget}
		}
		if len(current) > 0 && used+n > budget {
			chunks = append(chunks, current)
			current = nil
			used = 0
		}
		current = append(current, r)
		used += n
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks, nil
}
