// Package artifact records oracle exchanges: the prompt sent, the text
// returned, and where it came from.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Artifact is one immutable oracle exchange.
type Artifact struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Adapter    string            `json:"adapter"`
	Model      string            `json:"model"`
	Prompt     string            `json:"prompt"`
	PromptHash string            `json:"prompt_hash"`
	Synthetic  bool              `json:"synthetic,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Hash       string            `json:"hash"`
}

// New creates an artifact for a real model response.
func New(content, adapter, model, prompt string) *Artifact {
	a := &Artifact{
		ID:         uuid.NewString(),
		Content:    content,
		Adapter:    adapter,
		Model:      model,
		Prompt:     prompt,
		PromptHash: shortHash(prompt),
		Metadata:   make(map[string]string),
		CreatedAt:  time.Now().UTC(),
	}
	a.Hash = a.computeHash()
	return a
}

// NewSynthetic creates an artifact for a response that no model produced.
func NewSynthetic(content, prompt string) *Artifact {
	a := New(content, "synthetic", "", prompt)
	a.Synthetic = true
	a.Hash = a.computeHash()
	return a
}

// WithMetadata returns a copy of the artifact with one extra metadata entry.
func (a *Artifact) WithMetadata(key, value string) *Artifact {
	cp := *a
	cp.Metadata = make(map[string]string, len(a.Metadata)+1)
	for k, v := range a.Metadata {
		cp.Metadata[k] = v
	}
	cp.Metadata[key] = value
	return &cp
}

func (a *Artifact) computeHash() string {
	h := sha256.New()
	h.Write([]byte(a.Content))
	h.Write([]byte(a.Adapter))
	h.Write([]byte(a.Model))
	h.Write([]byte(a.PromptHash))
	if a.Synthetic {
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
