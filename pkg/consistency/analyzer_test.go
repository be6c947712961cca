package consistency

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/zen-systems/reqlens/pkg/chunk"
	"github.com/zen-systems/reqlens/pkg/oracle"
	"github.com/zen-systems/reqlens/pkg/requirements"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose stats worker starts at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func constant(text string) oracle.Func {
	return func(context.Context, string) (string, error) { return text, nil }
}

const consistentVerdict = `{"is_consistent": true, "inconsistencies": []}`

func TestProcessDocumentEndToEnd(t *testing.T) {
	var prompts []string
	o := oracle.Func(func(_ context.Context, p string) (string, error) {
		prompts = append(prompts, p)
		return consistentVerdict, nil
	})
	a := NewAnalyzer(o, WithLogger(zaptest.NewLogger(t)))

	doc := "REQ-1: The system shall allow login.\nREQ-2: The system must not allow login without credentials."
	res, err := a.ProcessDocument(context.Background(), "reqs.txt", []byte(doc))
	require.NoError(t, err)
	assert.True(t, res.IsConsistent)
	assert.Equal(t, 0, res.TotalInconsistenciesFound)
	assert.False(t, res.Degraded)

	require.Len(t, prompts, 1, "one chunk and no related pairs")
	assert.Contains(t, prompts[0], "R1: The system shall allow login.\nR2: The system must not allow login without credentials.")
}

func TestAnalyzeEmptyRequirements(t *testing.T) {
	a := NewAnalyzer(constant(consistentVerdict))
	res, err := a.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.IsConsistent)
	assert.Equal(t, "No valid requirements found in the document", res.Error)

	res, err = a.ProcessDocument(context.Background(), "empty.txt", []byte("nothing useful here"))
	require.NoError(t, err)
	assert.False(t, res.IsConsistent)
	assert.NotEmpty(t, res.Error)
}

func TestAnalyzeChunkOverflowIsFatal(t *testing.T) {
	a := NewAnalyzer(constant(consistentVerdict), WithChunking(chunk.CharCount, 10))
	_, err := a.Analyze(context.Background(), []requirements.Requirement{requirements.New("R1", "far too long for the budget")})
	assert.ErrorIs(t, err, chunk.ErrChunkOverflow)
}

func TestAnalyzeCollectsFindingsFromChunksAndPairs(t *testing.T) {
	o := oracle.Func(func(_ context.Context, p string) (string, error) {
		if strings.HasPrefix(p, "Analyze these two requirements") {
			return "```json\n" + `{"is_consistent": false, "inconsistencies": [{"conflicting_reqs": ["R3", "R1"], "description": "pair", "confidence": "medium"}]}` + "\n```", nil
		}
		return `{"is_consistent": false, "inconsistencies": [{"conflicting_reqs": ["R1", "R2"], "description": "chunk", "confidence": "high"}]}`, nil
	})
	reqs := []requirements.Requirement{
		requirements.New("R1", "session token refresh rotation policy"),
		requirements.New("R2", "audit logging retained"),
		requirements.New("R3", "session token refresh rotation disabled"),
	}

	a := NewAnalyzer(o, WithChunking(chunk.Unit, 2))
	res, err := a.Analyze(context.Background(), reqs)
	require.NoError(t, err)

	require.Len(t, res.Inconsistencies, 2)
	assert.Equal(t, "R1,R2", res.Inconsistencies[0].Key())
	assert.Equal(t, "R1,R3", res.Inconsistencies[1].Key())
	assert.False(t, res.IsConsistent)
	assert.Equal(t, 2, res.TotalInconsistenciesFound)
}

func TestAnalyzeMalformedVerdictIsNotDropped(t *testing.T) {
	a := NewAnalyzer(constant("I think they are fine."), WithLogger(zaptest.NewLogger(t)))
	res, err := a.Analyze(context.Background(), []requirements.Requirement{
		requirements.New("R1", "alpha"),
		requirements.New("R2", "beta"),
	})
	require.NoError(t, err)
	assert.False(t, res.IsConsistent)
	require.Len(t, res.Inconsistencies, 1)
	finding := res.Inconsistencies[0]
	assert.True(t, finding.AnalysisError)
	assert.Equal(t, "R1,R2", finding.Key())
	assert.Equal(t, ConfidenceLow, finding.Confidence)
	assert.Contains(t, finding.Description, ErrMalformedResponse.Error())
}

func TestAnalyzeOracleFailureIsLocalized(t *testing.T) {
	var calls atomic.Int32
	o := oracle.Func(func(_ context.Context, p string) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("connection refused")
		}
		return consistentVerdict, nil
	})
	a := NewAnalyzer(o, WithChunking(chunk.Unit, 1))
	res, err := a.Analyze(context.Background(), []requirements.Requirement{
		requirements.New("R1", "alpha"),
		requirements.New("R2", "beta"),
	})
	require.NoError(t, err)
	require.Len(t, res.Inconsistencies, 1)
	assert.Equal(t, "R1", res.Inconsistencies[0].Key())
	assert.True(t, res.Inconsistencies[0].AnalysisError)
}

func TestAnalyzeDegradedOracleTagsResult(t *testing.T) {
	failing := oracle.Func(func(context.Context, string) (string, error) {
		return "", oracle.ErrUnavailable
	})
	a := NewAnalyzer(oracle.NewDegraded(failing, zaptest.NewLogger(t)))
	res, err := a.Analyze(context.Background(), []requirements.Requirement{requirements.New("R1", "alpha")})
	require.NoError(t, err)
	assert.True(t, res.IsConsistent)
	assert.True(t, res.Degraded)
}

func TestAnalyzeConcurrentMatchesSequential(t *testing.T) {
	var reqs []requirements.Requirement
	for i, text := range []string{
		"payment invoice refund ledger",
		"payment invoice refund approval",
		"report export format csv",
		"payment invoice refund reversal",
		"report export format pdf",
	} {
		reqs = append(reqs, requirements.New("R"+string(rune('1'+i)), text))
	}
	o := oracle.Func(func(_ context.Context, p string) (string, error) {
		if strings.Contains(p, "R1:") && strings.Contains(p, "R4:") {
			return `{"is_consistent": false, "inconsistencies": [{"conflicting_reqs": ["R1", "R4"], "description": "refund", "confidence": "high"}]}`, nil
		}
		return consistentVerdict, nil
	})

	seq, err := NewAnalyzer(o, WithChunking(chunk.Unit, 2)).Analyze(context.Background(), reqs)
	require.NoError(t, err)
	par, err := NewAnalyzer(o, WithChunking(chunk.Unit, 2), WithConcurrency(4)).Analyze(context.Background(), reqs)
	require.NoError(t, err)
	assert.Equal(t, seq, par)
	assert.Equal(t, 1, par.TotalInconsistenciesFound)
}

func TestAnalyzeCancellationFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	o := oracle.Func(func(ctx context.Context, _ string) (string, error) {
		once.Do(cancel)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
			return consistentVerdict, nil
		}
	})

	reqs := []requirements.Requirement{requirements.New("R1", "a"), requirements.New("R2", "b"), requirements.New("R3", "c")}
	for _, n := range []int{1, 3} {
		_, err := NewAnalyzer(o, WithChunking(chunk.Unit, 1), WithConcurrency(n)).Analyze(ctx, reqs)
		assert.ErrorIs(t, err, context.Canceled, "concurrency %d", n)
	}
}

func TestPairOracleReceivesPairPrompts(t *testing.T) {
	var pairCalls atomic.Int32
	pair := oracle.Func(func(_ context.Context, p string) (string, error) {
		pairCalls.Add(1)
		assert.True(t, strings.HasPrefix(p, "Analyze these two requirements"))
		return consistentVerdict, nil
	})
	reqs := []requirements.Requirement{
		requirements.New("R1", "payment invoice refund ledger"),
		requirements.New("R2", "payment invoice refund approval"),
	}
	_, err := NewAnalyzer(constant(consistentVerdict), WithPairOracle(pair)).Analyze(context.Background(), reqs)
	require.NoError(t, err)
	assert.Equal(t, int32(1), pairCalls.Load())
}
