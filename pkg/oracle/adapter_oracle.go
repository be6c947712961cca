package oracle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/reqlens/pkg/adapter"
	"github.com/zen-systems/reqlens/pkg/config"
)

// AdapterOracle calls one adapter/model, retrying transient errors with
// exponential backoff and walking the configured fallback chain.
type AdapterOracle struct {
	adapters map[string]adapter.Adapter
	target   config.RouteTarget
	task     string
	routing  *config.RoutingConfig
	tracker  *CostTracker
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures an AdapterOracle.
type Option func(*AdapterOracle)

// WithRouting supplies retry, fallback and pricing settings.
func WithRouting(cfg *config.RoutingConfig) Option {
	return func(o *AdapterOracle) { o.routing = cfg }
}

// WithTracker records every call into t.
func WithTracker(t *CostTracker) Option {
	return func(o *AdapterOracle) { o.tracker = t }
}

// WithTimeout bounds each Complete call.
func WithTimeout(d time.Duration) Option {
	return func(o *AdapterOracle) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *AdapterOracle) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTask labels call reports with a task kind.
func WithTask(task string) Option {
	return func(o *AdapterOracle) { o.task = task }
}

// NewAdapterOracle creates an oracle bound to target.
func NewAdapterOracle(adapters map[string]adapter.Adapter, target config.RouteTarget, opts ...Option) (*AdapterOracle, error) {
	if _, ok := adapters[target.Adapter]; !ok {
		return nil, fmt.Errorf("adapter %s not found", target.Adapter)
	}
	o := &AdapterOracle{
		adapters: adapters,
		target:   target,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Target returns the primary adapter/model.
func (o *AdapterOracle) Target() config.RouteTarget {
	return o.target
}

// Complete sends prompt through the adapter chain. Any failure wraps
// ErrUnavailable.
func (o *AdapterOracle) Complete(ctx context.Context, prompt string) (Completion, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, reports, err := o.callWithPolicy(ctx, prompt)
	o.tracker.record(reports)
	if err != nil {
		o.logger.Warn("oracle call failed",
			zap.String("task", o.task),
			zap.Stringer("target", o.target),
			zap.Int("attempts", len(reports)),
			zap.Error(err))
		return Completion{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	last := reports[len(reports)-1]
	o.logger.Debug("oracle call",
		zap.String("task", o.task),
		zap.String("adapter", last.Adapter),
		zap.String("model", last.Model),
		zap.Int("retries", last.Retries),
		zap.Bool("fallback", last.FallbackUsed),
		zap.Int("tokens", last.Usage.TotalTokens))

	return Completion{
		Text:     resp.Artifact.Content,
		Adapter:  last.Adapter,
		Model:    last.Model,
		Artifact: resp.Artifact,
	}, nil
}

func (o *AdapterOracle) callWithPolicy(ctx context.Context, prompt string) (*adapter.Response, []adapter.CallReport, error) {
	targets := buildTargets(o.target, o.routing)
	retryCfg := retrySettings(o.routing)
	var reports []adapter.CallReport
	var lastErr error

	for idx, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, reports, err
		}
		adapterImpl, ok := o.adapters[target.Adapter]
		if !ok {
			lastErr = fmt.Errorf("adapter %s not found", target.Adapter)
			continue
		}

		for attempt := 0; attempt <= retryCfg.MaxRetries; attempt++ {
			if err := o.tracker.checkBudget(target.Adapter, target.Model); err != nil {
				return nil, reports, err
			}

			resp, err := adapterImpl.Generate(ctx, target.Model, prompt)
			if err == nil && (resp == nil || resp.Artifact == nil) {
				err = fmt.Errorf("adapter %s returned no artifact", target.Adapter)
			}
			if err == nil {
				usage := normalizeUsage(resp.Usage)
				cost, _ := estimateCost(cfgPricing(o.routing), target.Adapter, target.Model, usage)
				reports = append(reports, adapter.CallReport{
					Task:         o.task,
					Adapter:      target.Adapter,
					Model:        target.Model,
					Usage:        usage,
					Cost:         cost,
					Retries:      attempt,
					FallbackUsed: idx > 0,
				})
				return resp, reports, nil
			}

			lastErr = err
			if !adapter.Retryable(ctx, err) || attempt == retryCfg.MaxRetries {
				reports = append(reports, adapter.CallReport{
					Task:         o.task,
					Adapter:      target.Adapter,
					Model:        target.Model,
					Cost:         adapter.Cost{Currency: "USD"},
					Retries:      attempt,
					FallbackUsed: idx > 0,
					Error:        err.Error(),
				})
				break
			}

			backoff := computeBackoff(retryCfg.BaseBackoffMs, retryCfg.MaxBackoffMs, attempt)
			if err := sleepWithContext(ctx, backoff); err != nil {
				return nil, reports, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, reports, err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("adapter call failed")
	}
	return nil, reports, lastErr
}

func buildTargets(primary config.RouteTarget, cfg *config.RoutingConfig) []config.RouteTarget {
	targets := []config.RouteTarget{primary}
	if cfg == nil || !cfg.Fallback.AllowFallback {
		return targets
	}
	return append(targets, resolveFallbackChain(cfg, primary)...)
}

func resolveFallbackChain(cfg *config.RoutingConfig, primary config.RouteTarget) []config.RouteTarget {
	if cfg == nil || cfg.Fallback.FallbackChain == nil {
		return nil
	}
	if chain, ok := cfg.Fallback.FallbackChain[primary.String()]; ok {
		return chain
	}
	if chain, ok := cfg.Fallback.FallbackChain[primary.Adapter]; ok {
		return chain
	}
	return nil
}

func retrySettings(cfg *config.RoutingConfig) config.RetryConfig {
	if cfg == nil {
		return config.RetryConfig{MaxRetries: 2, BaseBackoffMs: 200, MaxBackoffMs: 2000}
	}
	return cfg.Retry
}

func computeBackoff(baseMs, maxMs, attempt int) time.Duration {
	limit := time.Duration(maxMs) * time.Millisecond
	backoff := time.Duration(baseMs) * time.Millisecond
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	if backoff > limit {
		return limit
	}
	return backoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cfgPricing(cfg *config.RoutingConfig) config.PricingConfig {
	if cfg == nil {
		return nil
	}
	return cfg.Pricing
}
