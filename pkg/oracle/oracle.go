// Package oracle is the single seam between analysis code and language
// models. Everything above it sees prompt in, text out.
package oracle

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/zen-systems/reqlens/pkg/artifact"
)

// ErrUnavailable marks an oracle call that produced no usable text.
var ErrUnavailable = errors.New("oracle unavailable")

// SyntheticResponse is the deterministic text returned by a degraded oracle.
const SyntheticResponse = `{"is_consistent": true, "inconsistencies": []}`

// Completion is the text an oracle returned plus where it came from.
type Completion struct {
	Text      string
	Synthetic bool
	Adapter   string
	Model     string
	Artifact  *artifact.Artifact
}

// Oracle completes prompts.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// Func adapts a plain function to Oracle.
type Func func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, prompt string) (Completion, error) {
	text, err := f(ctx, prompt)
	if err != nil {
		return Completion{}, err
	}
	return Completion{Text: text, Adapter: "func"}, nil
}

// Degraded wraps an oracle and substitutes SyntheticResponse for any failure.
// A nil inner oracle always answers synthetically.
type Degraded struct {
	inner  Oracle
	logger *zap.Logger
}

// NewDegraded wraps inner.
func NewDegraded(inner Oracle, logger *zap.Logger) *Degraded {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Degraded{inner: inner, logger: logger}
}

// Offline returns an oracle that never calls a model.
func Offline() *Degraded {
	return NewDegraded(nil, nil)
}

// Complete returns the inner completion, or a synthetic one on failure.
// Cancellation is still reported as an error.
func (d *Degraded) Complete(ctx context.Context, prompt string) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	if d.inner != nil {
		c, err := d.inner.Complete(ctx, prompt)
		if err == nil {
			return c, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Completion{}, ctxErr
		}
		d.logger.Warn("oracle failed, using synthetic response", zap.Error(err))
	}
	return Completion{
		Text:      SyntheticResponse,
		Synthetic: true,
		Adapter:   "synthetic",
		Artifact:  artifact.NewSynthetic(SyntheticResponse, prompt),
	}, nil
}

// StripFences removes a surrounding Markdown code fence, with or without a
// language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "{[") {
			s = s[nl+1:]
		}
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
