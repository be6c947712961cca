package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zen-systems/reqlens/pkg/adapter"
	"github.com/zen-systems/reqlens/pkg/artifact"
	"github.com/zen-systems/reqlens/pkg/config"
)

type budgetAdapter struct {
	calls int
	usage adapter.Usage
}

func (a *budgetAdapter) Generate(_ context.Context, model string, prompt string) (*adapter.Response, error) {
	a.calls++
	art := artifact.New("ok", "budget", model, prompt)
	return &adapter.Response{Artifact: art, Usage: &a.usage}, nil
}

func (a *budgetAdapter) Name() string { return "budget" }

func (a *budgetAdapter) Models() []string { return []string{"budget-1"} }

type transientAdapter struct {
	failures int
	calls    int
}

func (a *transientAdapter) Generate(_ context.Context, model string, prompt string) (*adapter.Response, error) {
	a.calls++
	if a.calls <= a.failures {
		return nil, &adapter.ProviderError{Provider: "flaky", Status: 429, Err: fmt.Errorf("rate limit")}
	}
	art := artifact.New("ok", "transient", model, prompt)
	return &adapter.Response{Artifact: art, Usage: &adapter.Usage{PromptTokens: 10}}, nil
}

func (a *transientAdapter) Name() string { return "transient" }

func (a *transientAdapter) Models() []string { return []string{"mock-1"} }

type failingAdapter struct{}

func (a *failingAdapter) Generate(_ context.Context, model string, prompt string) (*adapter.Response, error) {
	return nil, fmt.Errorf("hard failure")
}

func (a *failingAdapter) Name() string { return "primary" }

func (a *failingAdapter) Models() []string { return []string{"mock-1"} }

type fallbackAdapter struct{}

func (a *fallbackAdapter) Generate(_ context.Context, model string, prompt string) (*adapter.Response, error) {
	art := artifact.New("ok", "secondary", model, prompt)
	return &adapter.Response{Artifact: art, Usage: &adapter.Usage{PromptTokens: 5}}, nil
}

func (a *fallbackAdapter) Name() string { return "secondary" }

func (a *fallbackAdapter) Models() []string { return []string{"mock-1"} }

func fastRetry() *config.RoutingConfig {
	return &config.RoutingConfig{
		Retry: config.RetryConfig{MaxRetries: 2, BaseBackoffMs: 1, MaxBackoffMs: 2},
	}
}

func TestEstimateCostAndTotals(t *testing.T) {
	pricing := config.PricingConfig{
		"openai": {"gpt-1": {PromptPer1K: 0.15, CompletionPer1K: 0.60}},
	}

	usage := adapter.Usage{PromptTokens: 1000, CompletionTokens: 500}
	cost, ok := estimateCost(pricing, "openai", "gpt-1", usage)
	require.True(t, ok)
	want := 0.15 + 0.30
	assert.InDelta(t, want, cost.Amount, 1e-6)

	tracker := NewCostTracker(&config.RoutingConfig{Pricing: pricing}, 0)
	tracker.record([]adapter.CallReport{{Adapter: "openai", Model: "gpt-1", Usage: usage, Cost: cost}})
	tracker.record([]adapter.CallReport{{Adapter: "openai", Model: "gpt-1", Usage: usage, Cost: cost}})
	tracker.record([]adapter.CallReport{{Adapter: "openai", Model: "gpt-1", Error: "boom"}})

	report := tracker.Report()
	assert.Equal(t, 2000, report.TotalUsage.PromptTokens)
	assert.True(t, math.Abs(report.TotalAmount-want*2) < 1e-6)
	assert.Len(t, report.Calls, 3)
}

func TestBudgetEnforcementStopsSecondCall(t *testing.T) {
	cfg := &config.RoutingConfig{
		Pricing: config.PricingConfig{"budget": {"budget-1": {PromptPer1K: 1.0}}},
	}
	impl := &budgetAdapter{usage: adapter.Usage{PromptTokens: 1000}}
	tracker := NewCostTracker(cfg, 1.5)

	o, err := NewAdapterOracle(map[string]adapter.Adapter{"budget": impl},
		config.RouteTarget{Adapter: "budget", Model: "budget-1"},
		WithRouting(cfg), WithTracker(tracker))
	require.NoError(t, err)

	_, err = o.Complete(context.Background(), "one")
	require.NoError(t, err)
	_, err = o.Complete(context.Background(), "two")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, impl.calls)

	report := tracker.Report()
	require.NotNil(t, report.Budget)
	assert.True(t, report.Budget.Exceeded)
	assert.NotEmpty(t, report.Budget.Reason)
}

func TestRetryWithTransientErrors(t *testing.T) {
	impl := &transientAdapter{failures: 2}
	tracker := NewCostTracker(nil, 0)
	o, err := NewAdapterOracle(map[string]adapter.Adapter{"transient": impl},
		config.RouteTarget{Adapter: "transient", Model: "mock-1"},
		WithRouting(fastRetry()), WithTracker(tracker), WithTask(config.TaskPair))
	require.NoError(t, err)

	c, err := o.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", c.Text)
	assert.Equal(t, "transient", c.Adapter)
	assert.False(t, c.Synthetic)

	report := tracker.Report()
	require.Len(t, report.Calls, 1)
	assert.Equal(t, 2, report.Calls[0].Retries)
	assert.Equal(t, config.TaskPair, report.Calls[0].Task)
}

func TestRetryGivesUpAfterMaxRetries(t *testing.T) {
	impl := &transientAdapter{failures: 10}
	o, err := NewAdapterOracle(map[string]adapter.Adapter{"transient": impl},
		config.RouteTarget{Adapter: "transient", Model: "mock-1"},
		WithRouting(fastRetry()))
	require.NoError(t, err)

	_, err = o.Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 3, impl.calls)
}

func TestFallbackAdapterUsedOnFailure(t *testing.T) {
	cfg := &config.RoutingConfig{
		Retry: config.RetryConfig{MaxRetries: 0},
		Fallback: config.FallbackConfig{
			AllowFallback: true,
			FallbackChain: map[string][]config.RouteTarget{
				"primary/mock-1": {{Adapter: "secondary", Model: "mock-1"}},
			},
		},
	}
	tracker := NewCostTracker(cfg, 0)

	o, err := NewAdapterOracle(map[string]adapter.Adapter{
		"primary":   &failingAdapter{},
		"secondary": &fallbackAdapter{},
	}, config.RouteTarget{Adapter: "primary", Model: "mock-1"}, WithRouting(cfg), WithTracker(tracker))
	require.NoError(t, err)

	c, err := o.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "secondary", c.Adapter)

	calls := tracker.Report().Calls
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].Error)
	assert.True(t, calls[1].FallbackUsed)
}

type blockingAdapter struct {
	calls int
	onCall func()
}

func (a *blockingAdapter) Generate(ctx context.Context, _ string, _ string) (*adapter.Response, error) {
	a.calls++
	if a.onCall != nil {
		a.onCall()
	}
	<-ctx.Done()
	return nil, &adapter.ProviderError{Provider: "primary", Status: 503, Err: ctx.Err()}
}

func (a *blockingAdapter) Name() string { return "primary" }

func (a *blockingAdapter) Models() []string { return []string{"mock-1"} }

type countingAdapter struct{ calls int }

func (a *countingAdapter) Generate(_ context.Context, model string, prompt string) (*adapter.Response, error) {
	a.calls++
	return &adapter.Response{Artifact: artifact.New("ok", "secondary", model, prompt)}, nil
}

func (a *countingAdapter) Name() string { return "secondary" }

func (a *countingAdapter) Models() []string { return []string{"mock-1"} }

func withFallback() *config.RoutingConfig {
	cfg := fastRetry()
	cfg.Fallback = config.FallbackConfig{
		AllowFallback: true,
		FallbackChain: map[string][]config.RouteTarget{
			"primary": {{Adapter: "secondary", Model: "mock-1"}},
		},
	}
	return cfg
}

func TestCancellationSkipsRetriesAndFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	primary := &blockingAdapter{onCall: cancel}
	secondary := &countingAdapter{}

	o, err := NewAdapterOracle(map[string]adapter.Adapter{"primary": primary, "secondary": secondary},
		config.RouteTarget{Adapter: "primary", Model: "mock-1"}, WithRouting(withFallback()))
	require.NoError(t, err)

	_, err = o.Complete(ctx, "prompt")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestCallTimeoutIsNotRetried(t *testing.T) {
	primary := &blockingAdapter{}
	secondary := &countingAdapter{}

	o, err := NewAdapterOracle(map[string]adapter.Adapter{"primary": primary, "secondary": secondary},
		config.RouteTarget{Adapter: "primary", Model: "mock-1"},
		WithRouting(withFallback()), WithTimeout(5*time.Millisecond))
	require.NoError(t, err)

	_, err = o.Complete(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestNewAdapterOracleUnknownAdapter(t *testing.T) {
	_, err := NewAdapterOracle(map[string]adapter.Adapter{}, config.RouteTarget{Adapter: "nope"})
	assert.Error(t, err)
}

func TestComputeBackoff(t *testing.T) {
	assert.Equal(t, int64(200), computeBackoff(200, 2000, 0).Milliseconds())
	assert.Equal(t, int64(800), computeBackoff(200, 2000, 2).Milliseconds())
	assert.Equal(t, int64(2000), computeBackoff(200, 2000, 10).Milliseconds())
}

func TestDegradedSubstitutesSyntheticResponse(t *testing.T) {
	failing := Func(func(context.Context, string) (string, error) {
		return "", errors.New("down")
	})
	d := NewDegraded(failing, zaptest.NewLogger(t))

	c, err := d.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.True(t, c.Synthetic)
	assert.Equal(t, SyntheticResponse, c.Text)
	require.NotNil(t, c.Artifact)
	assert.True(t, c.Artifact.Synthetic)
}

func TestDegradedPassesThroughSuccess(t *testing.T) {
	ok := Func(func(context.Context, string) (string, error) { return "real", nil })
	c, err := NewDegraded(ok, nil).Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "real", c.Text)
	assert.False(t, c.Synthetic)
}

func TestDegradedReportsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Offline().Complete(ctx, "prompt")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouterOfflineAndObserver(t *testing.T) {
	var mu sync.Mutex
	var calls []Call
	r := NewRouter(nil, RouterConfig{
		Offline:  true,
		Observer: func(c Call) { mu.Lock(); calls = append(calls, c); mu.Unlock() },
	})

	o, err := r.For(config.TaskConsistency)
	require.NoError(t, err)
	c, err := o.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.True(t, c.Synthetic)

	require.Len(t, calls, 1)
	assert.Equal(t, config.TaskConsistency, calls[0].Task)
	assert.Equal(t, "p", calls[0].Prompt)
}

func TestRouterResolvesAliasesAndRoutes(t *testing.T) {
	mock := adapter.NewMockAdapterWithResponses(nil, `{"is_consistent": true}`)
	routing := config.DefaultRoutingConfig()
	routing.Tasks[config.TaskPair] = config.RouteTarget{Adapter: "mock", Model: "m"}

	r := NewRouter(map[string]adapter.Adapter{"mock": mock}, RouterConfig{
		Routing: routing,
		Catalog: &config.Catalog{Aliases: map[string]string{"m": "mock"}},
	})
	assert.Equal(t, "mock", r.Target(config.TaskPair).Model)

	o, err := r.For(config.TaskPair)
	require.NoError(t, err)
	c, err := o.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "mock", c.Adapter)
	assert.Equal(t, "mock", c.Model)

	_, err = r.For(config.TaskExtract)
	assert.Error(t, err, "groq adapter is not registered")
}

func TestRouterDegradesMissingAdapter(t *testing.T) {
	r := NewRouter(map[string]adapter.Adapter{}, RouterConfig{Degrade: true, Logger: zaptest.NewLogger(t)})
	o, err := r.For(config.TaskExtract)
	require.NoError(t, err)
	c, err := o.Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.True(t, c.Synthetic)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: ` {"a":1} `, want: `{"a":1}`},
		{name: "json fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", in: "```\n[1]\n```", want: `[1]`},
		{name: "single line", in: "```json{\"a\":1}```", want: `{"a":1}`},
		{name: "fence with json on first line", in: "```{\"a\":1}\n```", want: `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}
