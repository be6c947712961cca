package consistency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict(t *testing.T) {
	raw := "```json\n" + `{
  "is_consistent": false,
  "inconsistencies": [
    {"conflicting_reqs": ["R2", "R1"], "description": "login conflict", "resolution": "clarify", "confidence": "HIGH"},
    {"conflicting_reqs": "R3", "description": "single"}
  ]
}` + "\n```"

	res, err := ParseVerdict(raw)
	require.NoError(t, err)
	assert.False(t, res.IsConsistent)
	require.Len(t, res.Inconsistencies, 2)
	assert.Equal(t, 2, res.TotalInconsistenciesFound)

	first := res.Inconsistencies[0]
	assert.Equal(t, []string{"R2", "R1"}, first.ConflictingReqs)
	assert.Equal(t, ConfidenceHigh, first.Confidence)
	assert.Equal(t, "R1,R2", first.Key())
	assert.Equal(t, []string{"R3"}, res.Inconsistencies[1].ConflictingReqs)
}

func TestParseVerdictDefaults(t *testing.T) {
	res, err := ParseVerdict(`{}`)
	require.NoError(t, err)
	assert.True(t, res.IsConsistent)
	assert.NotNil(t, res.Inconsistencies)
	assert.Empty(t, res.Inconsistencies)
}

func TestParseVerdictMalformed(t *testing.T) {
	for _, raw := range []string{"", "not json", `[1, 2]`, `{"inconsistencies": "none"}`, `{"is_consistent": tru}`} {
		_, err := ParseVerdict(raw)
		assert.ErrorIs(t, err, ErrMalformedResponse, "input %q", raw)
	}
}

func TestConfidenceRank(t *testing.T) {
	assert.Equal(t, 0, ConfidenceHigh.Rank())
	assert.Equal(t, 1, Confidence("Medium").Rank())
	assert.Equal(t, 2, ConfidenceLow.Rank())
	assert.Equal(t, 2, Confidence("").Rank())
	assert.Equal(t, 2, Confidence("certain").Rank())
}
