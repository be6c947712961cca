package chunk

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/reqlens/pkg/requirements"
)

func reqsOfSizes(sizes ...int) []requirements.Requirement {
	out := make([]requirements.Requirement, len(sizes))
	for i, n := range sizes {
		out[i] = requirements.New(fmt.Sprintf("R%d", i+1), fmt.Sprintf("%d", n))
	}
	return out
}

// sizeFromText reads the size stored in the requirement text.
func sizeFromText(r requirements.Requirement) int {
	var n int
	fmt.Sscanf(r.Text, "%d", &n)
	return n
}

func TestChunkGreedy(t *testing.T) {
	chunks, err := Chunk(reqsOfSizes(4, 3, 3, 10, 1), sizeFromText, 10)
	require.NoError(t, err)

	var got [][]string
	for _, c := range chunks {
		got = append(got, requirements.IDs(c))
	}
	want := [][]string{{"R1", "R2", "R3"}, {"R4"}, {"R5"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestChunkOverflow(t *testing.T) {
	_, err := Chunk(reqsOfSizes(2, 11, 1), sizeFromText, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChunkOverflow))

	var overflow *OverflowError
	require.True(t, errors.As(err, &overflow))
	assert.Equal(t, "R2", overflow.ID)
	assert.Equal(t, 11, overflow.Size)
	assert.Equal(t, 10, overflow.Budget)
}

func TestChunkEmptyAndInvalidBudget(t *testing.T) {
	chunks, err := Chunk(nil, CharCount, 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	_, err = Chunk(reqsOfSizes(1), CharCount, 0)
	assert.Error(t, err)
}

func TestChunkCountBudget(t *testing.T) {
	chunks, err := Chunk(reqsOfSizes(1, 1, 1, 1, 1, 1, 1), Unit, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 5)
	assert.Len(t, chunks[1], 2)
}

func TestChunkPreservesOrderAndBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		budget := 1 + rng.Intn(20)
		sizes := make([]int, rng.Intn(30))
		for i := range sizes {
			sizes[i] = 1 + rng.Intn(budget)
		}
		reqs := reqsOfSizes(sizes...)

		chunks, err := Chunk(reqs, sizeFromText, budget)
		require.NoError(t, err)

		var flat []requirements.Requirement
		for _, c := range chunks {
			require.NotEmpty(t, c)
			total := 0
			for _, r := range c {
				total += sizeFromText(r)
			}
			assert.LessOrEqual(t, total, budget)
			flat = append(flat, c...)
		}
		if diff := cmp.Diff(requirements.IDs(reqs), requirements.IDs(flat)); diff != "" {
			t.Fatalf("trial %d: order changed (-want +got):\n%s", trial, diff)
		}
	}
}

func TestSizeFuncs(t *testing.T) {
	r := requirements.New("R1", "héllo")
	assert.Equal(t, 9, CharCount(r))
	assert.Equal(t, 3, TokenEstimate(r))
	assert.Equal(t, 1, Unit(r))

	for _, name := range []string{"", "chars", "tokens", "count"} {
		fn, err := SizeFuncByName(name)
		require.NoError(t, err)
		assert.NotNil(t, fn)
	}
	_, err := SizeFuncByName("bytes")
	assert.Error(t, err)
}
