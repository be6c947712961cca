package consistency

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/reqlens/pkg/chunk"
	"github.com/zen-systems/reqlens/pkg/document"
	"github.com/zen-systems/reqlens/pkg/oracle"
	"github.com/zen-systems/reqlens/pkg/requirements"
)

// DefaultChunkBudget is the default chunk budget in CharCount units.
const DefaultChunkBudget = 4000

// Analyzer runs the intra-chunk and cross-chunk consistency passes.
type Analyzer struct {
	oracle      oracle.Oracle
	pairOracle  oracle.Oracle
	size        chunk.SizeFunc
	budget      int
	threshold   int
	maxPairs    int
	concurrency int
	parsers     *document.Registry
	logger      *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithChunking sets the size function and budget used to chunk requirements.
func WithChunking(size chunk.SizeFunc, budget int) Option {
	return func(a *Analyzer) {
		if size != nil {
			a.size = size
		}
		if budget > 0 {
			a.budget = budget
		}
	}
}

// WithRelatedness sets the shared-keyword threshold and the pair cap.
func WithRelatedness(threshold, maxPairs int) Option {
	return func(a *Analyzer) {
		if threshold > 0 {
			a.threshold = threshold
		}
		if maxPairs > 0 {
			a.maxPairs = maxPairs
		}
	}
}

// WithConcurrency allows up to n oracle calls in flight. n <= 1 is sequential.
func WithConcurrency(n int) Option {
	return func(a *Analyzer) { a.concurrency = n }
}

// WithPairOracle routes pairwise prompts to a different oracle.
func WithPairOracle(o oracle.Oracle) Option {
	return func(a *Analyzer) { a.pairOracle = o }
}

// WithParsers sets the document parsers used by ProcessDocument.
func WithParsers(r *document.Registry) Option {
	return func(a *Analyzer) { a.parsers = r }
}

// NewAnalyzer creates an analyzer that asks o for verdicts.
func NewAnalyzer(o oracle.Oracle, opts ...Option) *Analyzer {
	a := &Analyzer{
		oracle:      o,
		size:        chunk.CharCount,
		budget:      DefaultChunkBudget,
		threshold:   DefaultRelatednessThreshold,
		maxPairs:    DefaultMaxRelatedPairs,
		concurrency: 1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.pairOracle == nil {
		a.pairOracle = a.oracle
	}
	if a.parsers == nil {
		a.parsers = document.NewRegistry(document.WithLogger(a.logger))
	}
	return a
}

// ProcessDocument parses data, extracts requirements and analyzes them.
func (a *Analyzer) ProcessDocument(ctx context.Context, name string, data []byte) (AnalysisResult, error) {
	parsed, err := a.parsers.Parse(ctx, name, data)
	if err != nil {
		return AnalysisResult{}, err
	}
	reqs, method := requirements.Extract(document.Clean(parsed.Text))
	a.logger.Info("requirements extracted",
		zap.String("file", name),
		zap.String("parser", parsed.ParserUsed),
		zap.String("method", string(method)),
		zap.Int("count", len(reqs)))
	return a.Analyze(ctx, reqs)
}

// Analyze checks reqs for inconsistencies. An empty list yields the
// explicit no-requirements result. Chunk overflow and cancellation are
// returned as errors; oracle faults are confined to the chunk or pair they
// hit.
func (a *Analyzer) Analyze(ctx context.Context, reqs []requirements.Requirement) (AnalysisResult, error) {
	if len(reqs) == 0 {
		return EmptyResult(), nil
	}

	chunks, err := chunk.Chunk(reqs, a.size, a.budget)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("chunking requirements: %w", err)
	}

	chunkResults, err := a.AnalyzeChunks(ctx, chunks)
	if err != nil {
		return AnalysisResult{}, err
	}
	cross, err := a.AnalyzeCrossChunk(ctx, reqs)
	if err != nil {
		return AnalysisResult{}, err
	}

	result := Consolidate(chunkResults, cross)
	a.logger.Info("consistency analysis complete",
		zap.Int("requirements", len(reqs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("inconsistencies", result.TotalInconsistenciesFound),
		zap.Bool("degraded", result.Degraded))
	return result, nil
}

// AnalyzeChunks returns one verdict per chunk, in chunk order.
func (a *Analyzer) AnalyzeChunks(ctx context.Context, chunks [][]requirements.Requirement) ([]AnalysisResult, error) {
	results := make([]AnalysisResult, len(chunks))
	err := a.each(ctx, len(chunks), func(ctx context.Context, i int) error {
		res, err := a.judge(ctx, a.oracle, ChunkPrompt(chunks[i]), requirements.IDs(chunks[i]))
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// AnalyzeCrossChunk compares keyword-related pairs and keeps findings from
// pairs judged inconsistent.
func (a *Analyzer) AnalyzeCrossChunk(ctx context.Context, reqs []requirements.Requirement) (AnalysisResult, error) {
	pairs := FindRelated(reqs, a.threshold, a.maxPairs)
	a.logger.Debug("related pairs", zap.Int("count", len(pairs)))
	if len(pairs) == 0 {
		return AnalysisResult{IsConsistent: true, Inconsistencies: []Inconsistency{}}, nil
	}

	results := make([]AnalysisResult, len(pairs))
	err := a.each(ctx, len(pairs), func(ctx context.Context, i int) error {
		p := pairs[i]
		res, err := a.judge(ctx, a.pairOracle, PairPrompt(p.A, p.B), []string{p.A.ID, p.B.ID})
		if err != nil {
			return err
		}
		results[i] = res
		return nil
	})
	if err != nil {
		return AnalysisResult{}, err
	}

	out := AnalysisResult{Inconsistencies: []Inconsistency{}}
	for _, r := range results {
		out.Degraded = out.Degraded || r.Degraded
		if !r.IsConsistent {
			out.Inconsistencies = append(out.Inconsistencies, r.Inconsistencies...)
		}
	}
	out.IsConsistent = len(out.Inconsistencies) == 0
	out.TotalInconsistenciesFound = len(out.Inconsistencies)
	return out, nil
}

// judge asks o for one verdict. Only cancellation is returned as an error.
func (a *Analyzer) judge(ctx context.Context, o oracle.Oracle, prompt string, ids []string) (AnalysisResult, error) {
	c, err := o.Complete(ctx, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return AnalysisResult{}, ctxErr
		}
		a.logger.Warn("oracle call failed", zap.Strings("requirements", ids), zap.Error(err))
		return failedResult(ids, err, ""), nil
	}

	res, err := ParseVerdict(c.Text)
	if err != nil {
		a.logger.Warn("unparsable verdict", zap.Strings("requirements", ids), zap.Error(err))
		res = failedResult(ids, err, c.Text)
	}
	res.Degraded = c.Synthetic
	return res, nil
}

// failedResult records an oracle fault as an inconsistent verdict whose one
// finding names the requirements that went unjudged.
func failedResult(ids []string, err error, raw string) AnalysisResult {
	inc := Inconsistency{
		ConflictingReqs: append([]string(nil), ids...),
		Description:     fmt.Sprintf("Consistency could not be determined: %v", err),
		Resolution:      "Re-run the analysis for these requirements or review them manually.",
		Confidence:      ConfidenceLow,
		AnalysisError:   true,
	}
	return AnalysisResult{
		IsConsistent:              false,
		Inconsistencies:           []Inconsistency{inc},
		TotalInconsistenciesFound: 1,
		Error:                     err.Error(),
		RawResponse:               raw,
	}
}

// each runs fn for 0..n-1, sequentially or bounded by a.concurrency. Each
// call writes only its own index; callers merge after it returns.
func (a *Analyzer) each(ctx context.Context, n int, fn func(context.Context, int) error) error {
	if a.concurrency <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
