package oracle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/reqlens/pkg/adapter"
	"github.com/zen-systems/reqlens/pkg/config"
)

// Call describes one completed oracle exchange, successful or not.
type Call struct {
	Task       string
	Prompt     string
	Completion Completion
	Err        error
	Duration   time.Duration
}

// Recorded reports every call made through inner to fn.
func Recorded(inner Oracle, task string, fn func(Call)) Oracle {
	if fn == nil {
		return inner
	}
	return recorded{inner: inner, task: task, fn: fn}
}

type recorded struct {
	inner Oracle
	task  string
	fn    func(Call)
}

func (r recorded) Complete(ctx context.Context, prompt string) (Completion, error) {
	start := time.Now()
	c, err := r.inner.Complete(ctx, prompt)
	r.fn(Call{Task: r.task, Prompt: prompt, Completion: c, Err: err, Duration: time.Since(start)})
	return c, err
}

// RouterConfig controls how a Router builds per-task oracles.
type RouterConfig struct {
	Routing *config.RoutingConfig
	Catalog *config.Catalog
	Tracker *CostTracker
	Timeout time.Duration
	// Offline answers every prompt synthetically without calling adapters.
	Offline bool
	// Degrade substitutes synthetic answers when a call fails.
	Degrade  bool
	Logger   *zap.Logger
	Observer func(Call)
}

// Router hands out an oracle per task kind according to routing config.
type Router struct {
	adapters map[string]adapter.Adapter
	cfg      RouterConfig
}

// NewRouter creates a router over the given adapters.
func NewRouter(adapters map[string]adapter.Adapter, cfg RouterConfig) *Router {
	if cfg.Routing == nil {
		cfg.Routing = config.DefaultRoutingConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Router{adapters: adapters, cfg: cfg}
}

// Target returns the resolved adapter/model for a task.
func (r *Router) Target(task string) config.RouteTarget {
	target := r.cfg.Routing.Target(task)
	target.Model = r.cfg.Catalog.Resolve(target.Model)
	return target
}

// For returns the oracle for task.
func (r *Router) For(task string) (Oracle, error) {
	logger := r.cfg.Logger.With(zap.String("task", task))

	if r.cfg.Offline {
		return Recorded(NewDegraded(nil, logger), task, r.cfg.Observer), nil
	}

	target := r.Target(task)
	o, err := NewAdapterOracle(r.adapters, target,
		WithRouting(r.cfg.Routing),
		WithTracker(r.cfg.Tracker),
		WithTimeout(r.cfg.Timeout),
		WithLogger(logger),
		WithTask(task),
	)
	if err != nil {
		if !r.cfg.Degrade {
			return nil, fmt.Errorf("task %s: %w", task, err)
		}
		logger.Warn("adapter not configured, task will run degraded",
			zap.Stringer("target", target), zap.Error(err))
		return Recorded(NewDegraded(nil, logger), task, r.cfg.Observer), nil
	}

	var out Oracle = o
	if r.cfg.Degrade {
		out = NewDegraded(o, logger)
	}
	return Recorded(out, task, r.cfg.Observer), nil
}
