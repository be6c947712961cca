package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zen-systems/reqlens/pkg/artifact"
	"google.golang.org/genai"
)

// GoogleAdapter implements the Adapter interface for Gemini models.
type GoogleAdapter struct {
	client *genai.Client
}

// NewGoogleAdapter creates a new Google Gemini adapter.
func NewGoogleAdapter(ctx context.Context, apiKey string) (*GoogleAdapter, error) {
	if apiKey == "" {
		return nil, emptyKeyError("google")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleAdapter{
		client: client,
	}, nil
}

// Name returns the adapter identifier.
func (a *GoogleAdapter) Name() string {
	return "google"
}

// Models returns the list of supported Gemini models.
func (a *GoogleAdapter) Models() []string {
	return []string{
		"gemini-2.0-flash",
		"gemini-2.0-pro",
	}
}

// Generate sends a prompt to Gemini.
func (a *GoogleAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	resp, err := a.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return nil, &ProviderError{Provider: a.Name(), Err: err}
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &ProviderError{Provider: a.Name(), Temporary: true, Err: errors.New("no candidates returned")}
	}

	var content strings.Builder
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content.WriteString(part.Text)
			}
		}
	}

	var usage *Usage
	if md := resp.UsageMetadata; md != nil {
		usage = newUsage(int64(md.PromptTokenCount), int64(md.CandidatesTokenCount), int64(md.TotalTokenCount))
	}

	return &Response{
		Artifact: artifact.New(content.String(), a.Name(), model, prompt),
		Usage:    usage,
	}, nil
}
