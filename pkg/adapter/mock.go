package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/zen-systems/reqlens/pkg/artifact"
)

// MockAdapter returns deterministic responses for local runs and tests.
type MockAdapter struct {
	responses       map[string]string
	defaultResponse string
	Usage           *Usage

	mu     sync.Mutex
	errs   []error
	prompt []string
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined responses.
// A default response containing "{" is returned verbatim; otherwise the prompt
// is echoed after it.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	if responses == nil {
		responses = make(map[string]string)
	}
	return &MockAdapter{responses: responses, defaultResponse: defaultResponse}
}

// FailNext queues errors returned by the next calls, in order.
func (a *MockAdapter) FailNext(errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, errs...)
}

// Prompts returns the prompts received so far.
func (a *MockAdapter) Prompts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.prompt...)
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock"}
}

// Generate returns a deterministic artifact for the prompt.
func (a *MockAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.prompt = append(a.prompt, prompt)
	var err error
	if len(a.errs) > 0 {
		err, a.errs = a.errs[0], a.errs[1:]
	}
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = "mock"
	}
	if response, ok := a.responses[prompt]; ok {
		art := artifact.New(response, a.Name(), model, prompt)
		return &Response{Artifact: art, Usage: a.Usage}, nil
	}
	content := a.defaultResponse
	if !strings.ContainsAny(content, "{[") {
		content = fmt.Sprintf("%s\n%s", a.defaultResponse, prompt)
	}
	art := artifact.New(content, a.Name(), model, prompt)
	return &Response{Artifact: art, Usage: a.Usage}, nil
}
