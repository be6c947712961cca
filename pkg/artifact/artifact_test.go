package artifact

import (
	"testing"
)

func TestNewComputesHashes(t *testing.T) {
	a := New("{}", "groq", "llama", "prompt")
	b := New("{}", "groq", "llama", "prompt")

	if a.ID == b.ID {
		t.Fatalf("expected distinct ids")
	}
	if a.Hash != b.Hash {
		t.Fatalf("identical exchanges should hash equally: %s vs %s", a.Hash, b.Hash)
	}
	if a.PromptHash == "" || len(a.Hash) != 16 {
		t.Fatalf("unexpected hashes: %+v", a)
	}
	if a.Synthetic {
		t.Fatalf("real response marked synthetic")
	}
}

func TestNewSynthetic(t *testing.T) {
	real := New("{}", "synthetic", "", "prompt")
	syn := NewSynthetic("{}", "prompt")

	if !syn.Synthetic || syn.Adapter != "synthetic" {
		t.Fatalf("unexpected synthetic artifact: %+v", syn)
	}
	if syn.Hash == real.Hash {
		t.Fatalf("synthetic flag should change the hash")
	}
}

func TestWithMetadataCopies(t *testing.T) {
	a := New("x", "mock", "mock", "p")
	b := a.WithMetadata("task", "pair")

	if b.Metadata["task"] != "pair" {
		t.Fatalf("metadata not set")
	}
	if _, ok := a.Metadata["task"]; ok {
		t.Fatalf("original artifact was mutated")
	}
}
