package adapter

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// NewGroqAdapter creates an adapter for Groq-hosted models.
// Groq serves an OpenAI-compatible API, so the OpenAI client is reused.
func NewGroqAdapter(apiKey string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, emptyKeyError("groq")
	}

	return &OpenAIAdapter{
		name:   "groq",
		models: []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(groqBaseURL),
		),
	}, nil
}
