package blackboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrSchedulerNonTermination is returned when the sources do not reach a
// fixpoint within the pass cap, or a source stays eligible after it
// contributed.
var ErrSchedulerNonTermination = errors.New("scheduler did not reach a fixpoint")

// Firing describes one source contribution, reported to the observer.
type Firing struct {
	Pass     int
	Index    int
	Source   string
	Kind     Kind
	Wrote    []Key
	Duration time.Duration
	Err      error
}

// Stats summarizes a controller run.
type Stats struct {
	// Passes counts the passes in which at least one source fired.
	Passes int
	Fired  []string
}

// Controller schedules knowledge sources against a board.
type Controller struct {
	sources   []KnowledgeSource
	maxPasses int
	logger    *zap.Logger
	observer  func(Firing)
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithMaxPasses overrides the pass cap. The default is twice the number
// of sources.
func WithMaxPasses(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.maxPasses = n
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers fn to be called after every firing.
func WithObserver(fn func(Firing)) ControllerOption {
	return func(c *Controller) {
		c.observer = fn
	}
}

// NewController returns a controller that evaluates sources in the given
// order on every pass.
func NewController(sources []KnowledgeSource, opts ...ControllerOption) *Controller {
	c := &Controller{
		sources:   sources,
		maxPasses: 2 * len(sources),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxPasses < 1 {
		c.maxPasses = 1
	}
	return c
}

// Sources returns the registered sources in evaluation order.
func (c *Controller) Sources() []KnowledgeSource {
	return append([]KnowledgeSource(nil), c.sources...)
}

// Run fires every eligible source, pass after pass, until a full pass
// fires nothing. A source error aborts the run and is returned wrapped
// with the source name.
func (c *Controller) Run(ctx context.Context, b *Board) (Stats, error) {
	var stats Stats
	for {
		fired := false
		for i, src := range c.sources {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if !src.CanContribute(b) {
				continue
			}
			if !fired {
				fired = true
				stats.Passes++
				if stats.Passes > c.maxPasses {
					return stats, fmt.Errorf("%w: %s still eligible after %d passes",
						ErrSchedulerNonTermination, src.Name(), c.maxPasses)
				}
			}

			if err := c.fire(ctx, b, stats.Passes, i, src); err != nil {
				return stats, err
			}
			stats.Fired = append(stats.Fired, src.Name())
		}
		if !fired {
			c.logger.Debug("blackboard reached fixpoint",
				zap.Int("passes", stats.Passes),
				zap.Strings("fired", stats.Fired))
			return stats, nil
		}
	}
}

func (c *Controller) fire(ctx context.Context, b *Board, pass, index int, src KnowledgeSource) error {
	before := b.Keys()
	start := time.Now()
	c.logger.Debug("firing knowledge source", zap.String("source", src.Name()), zap.Int("pass", pass))

	err := src.Contribute(ctx, b)
	if err == nil && src.CanContribute(b) {
		err = fmt.Errorf("%w: %s still eligible after contributing", ErrSchedulerNonTermination, src.Name())
	} else if err != nil {
		err = fmt.Errorf("%s: %w", src.Name(), err)
	}

	if c.observer != nil {
		c.observer(Firing{
			Pass:     pass,
			Index:    index,
			Source:   src.Name(),
			Kind:     src.Kind(),
			Wrote:    newKeys(before, b.Keys()),
			Duration: time.Since(start),
			Err:      err,
		})
	}
	if err != nil {
		c.logger.Warn("knowledge source failed", zap.String("source", src.Name()), zap.Error(err))
	}
	return err
}

func newKeys(before, after []Key) []Key {
	seen := make(map[Key]bool, len(before))
	for _, k := range before {
		seen[k] = true
	}
	var out []Key
	for _, k := range after {
		if !seen[k] {
			out = append(out, k)
		}
	}
	return out
}
