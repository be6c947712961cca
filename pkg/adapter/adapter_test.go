package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestMockAdapterResponses(t *testing.T) {
	m := NewMockAdapterWithResponses(map[string]string{"hi": "hello"}, "")

	resp, err := m.Generate(context.Background(), "", "hi")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Artifact.Content != "hello" || resp.Artifact.Model != "mock" {
		t.Fatalf("unexpected artifact: %+v", resp.Artifact)
	}

	resp, err = m.Generate(context.Background(), "m", "other")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Artifact.Content != "mock response:\nother" {
		t.Fatalf("unexpected default content: %q", resp.Artifact.Content)
	}
}

func TestMockAdapterJSONDefaultIsVerbatim(t *testing.T) {
	m := NewMockAdapterWithResponses(nil, `{"is_consistent": true}`)
	resp, err := m.Generate(context.Background(), "", "anything")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Artifact.Content != `{"is_consistent": true}` {
		t.Fatalf("unexpected content: %q", resp.Artifact.Content)
	}
}

func TestMockAdapterFailNext(t *testing.T) {
	m := NewMockAdapter()
	boom := errors.New("boom")
	m.FailNext(boom)

	if _, err := m.Generate(context.Background(), "", "a"); !errors.Is(err, boom) {
		t.Fatalf("expected queued error, got %v", err)
	}
	if _, err := m.Generate(context.Background(), "", "b"); err != nil {
		t.Fatalf("second call should succeed: %v", err)
	}
	if got := m.Prompts(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected prompts: %v", got)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "client deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "net timeout", err: fmt.Errorf("wrap: %w", timeoutErr{}), want: true},
		{name: "rate limited", err: &ProviderError{Provider: "groq", Status: 429}, want: true},
		{name: "request timeout", err: &ProviderError{Provider: "groq", Status: 408}, want: true},
		{name: "server error", err: &ProviderError{Provider: "openai", Status: 503}, want: true},
		{name: "bad request", err: &ProviderError{Provider: "openai", Status: 400}, want: false},
		{name: "unauthorized", err: &ProviderError{Provider: "anthropic", Status: 401}, want: false},
		{name: "temporary", err: &ProviderError{Provider: "google", Temporary: true}, want: true},
		{name: "plain", err: errors.New("nope"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(context.Background(), tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryableWithExpiredContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	for _, err := range []error{
		ctx.Err(),
		&ProviderError{Provider: "groq", Status: 503, Err: ctx.Err()},
		&ProviderError{Provider: "groq", Status: 429},
	} {
		if Retryable(ctx, err) {
			t.Errorf("Retryable(%v) under an expired context = true, want false", err)
		}
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Provider: "groq", Status: 429, Err: errors.New("slow down")}
	if got, want := err.Error(), "groq: status 429: slow down"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, err.Err) {
		t.Fatalf("ProviderError should unwrap to its cause")
	}
}

func TestRegistryWithoutKeysHasMockOnly(t *testing.T) {
	adapters, errs := Registry(context.Background(), Keys{})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if names := Names(adapters); len(names) != 1 || names[0] != "mock" {
		t.Fatalf("unexpected adapters: %v", names)
	}
}

func TestRegistryBuildsKeyedAdapters(t *testing.T) {
	adapters, errs := Registry(context.Background(), Keys{Anthropic: "a", OpenAI: "o", Groq: "g"})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	names := Names(adapters)
	want := []string{"anthropic", "groq", "mock", "openai"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("adapters = %v, want %v", names, want)
	}
	if adapters["groq"].Name() != "groq" {
		t.Fatalf("groq adapter misnamed: %s", adapters["groq"].Name())
	}
}

func TestConstructorsRequireKeys(t *testing.T) {
	if _, err := NewAnthropicAdapter(""); err == nil {
		t.Error("anthropic without key should fail")
	}
	if _, err := NewOpenAIAdapter(""); err == nil {
		t.Error("openai without key should fail")
	}
	if _, err := NewGroqAdapter(""); err == nil {
		t.Error("groq without key should fail")
	}
	if _, err := NewGoogleAdapter(context.Background(), ""); err == nil {
		t.Error("google without key should fail")
	}
}
