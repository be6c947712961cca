// Package scenario asks an oracle for QA test scenarios per requirement and
// assembles the processing result for a document.
package scenario

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/reqlens/pkg/consistency"
	"github.com/zen-systems/reqlens/pkg/oracle"
	"github.com/zen-systems/reqlens/pkg/requirements"
)

// OfflineText replaces scenarios when the oracle answered synthetically.
const OfflineText = "Scenario generation unavailable: no language model was reachable."

// TestScenario holds the generated scenarios for one requirement.
type TestScenario struct {
	Requirement requirements.Requirement `json:"requirement"`
	Scenarios   string                   `json:"scenarios"`
	Degraded    bool                     `json:"degraded,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// ProcessingResult is everything produced for one document.
type ProcessingResult struct {
	SourceFile         string                      `json:"source_file"`
	Requirements       []requirements.Requirement  `json:"requirements"`
	RequirementsMethod string                      `json:"requirements_method,omitempty"`
	TestScenarios      map[string]TestScenario     `json:"test_scenarios,omitempty"`
	Consistency        *consistency.AnalysisResult `json:"consistency,omitempty"`
	Error              string                      `json:"error,omitempty"`
}

// Degraded reports whether any part of the result came from a synthetic answer.
func (r ProcessingResult) Degraded() bool {
	if r.Consistency != nil && r.Consistency.Degraded {
		return true
	}
	for _, s := range r.TestScenarios {
		if s.Degraded {
			return true
		}
	}
	return false
}

// Prompt asks for scenarios for one requirement.
func Prompt(r requirements.Requirement) string {
	return "You are a QA engineer. For the following requirement, list all possible test scenarios grouped by:\n" +
		"1. Positive / Happy Path\n" +
		"2. Negative / Edge Cases\n" +
		"3. Error & Exception Handling\n" +
		"4. Security & Performance Considerations\n\n" +
		fmt.Sprintf("Requirement: %q", r.Text)
}

// Generator produces test scenarios.
type Generator struct {
	oracle      oracle.Oracle
	concurrency int
	logger      *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithConcurrency allows up to n oracle calls in flight.
func WithConcurrency(n int) Option {
	return func(g *Generator) { g.concurrency = n }
}

// NewGenerator creates a generator backed by o.
func NewGenerator(o oracle.Oracle, opts ...Option) *Generator {
	g := &Generator{oracle: o, concurrency: 1, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns scenarios keyed by requirement id. An oracle failure is
// recorded on that requirement's entry; only cancellation is returned.
func (g *Generator) Generate(ctx context.Context, reqs []requirements.Requirement) (map[string]TestScenario, error) {
	out := make([]TestScenario, len(reqs))

	run := func(ctx context.Context, i int) error {
		s, err := g.one(ctx, reqs[i])
		if err != nil {
			return err
		}
		out[i] = s
		return nil
	}

	if g.concurrency <= 1 {
		for i := range reqs {
			if err := run(ctx, i); err != nil {
				return nil, err
			}
		}
	} else {
		eg, ectx := errgroup.WithContext(ctx)
		eg.SetLimit(g.concurrency)
		for i := range reqs {
			eg.Go(func() error { return run(ectx, i) })
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	scenarios := make(map[string]TestScenario, len(out))
	for _, s := range out {
		scenarios[s.Requirement.ID] = s
	}
	return scenarios, nil
}

func (g *Generator) one(ctx context.Context, r requirements.Requirement) (TestScenario, error) {
	if err := ctx.Err(); err != nil {
		return TestScenario{}, err
	}
	c, err := g.oracle.Complete(ctx, Prompt(r))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return TestScenario{}, ctxErr
		}
		g.logger.Warn("scenario generation failed", zap.String("requirement", r.ID), zap.Error(err))
		return TestScenario{
			Requirement: r,
			Scenarios:   fmt.Sprintf("Scenario generation failed: %v", err),
			Error:       err.Error(),
		}, nil
	}
	if c.Synthetic {
		return TestScenario{Requirement: r, Scenarios: OfflineText, Degraded: true}, nil
	}
	return TestScenario{Requirement: r, Scenarios: c.Text}, nil
}
