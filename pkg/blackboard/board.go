// Package blackboard runs document processing as a set of knowledge
// sources that read and write a shared board until none can contribute.
package blackboard

import (
	"fmt"

	"github.com/zen-systems/reqlens/pkg/consistency"
	"github.com/zen-systems/reqlens/pkg/requirements"
	"github.com/zen-systems/reqlens/pkg/scenario"
)

// Key names a board slot.
type Key string

const (
	KeyFilePath           Key = "file_path"
	KeyContent            Key = "content"
	KeyFileType           Key = "file_type"
	KeyRawText            Key = "raw_text"
	KeyCleanText          Key = "clean_text"
	KeyLLMError           Key = "llm_client_error"
	KeyRequirements       Key = "requirements"
	KeyRequirementsMethod Key = "requirements_method"
	KeyConsistency        Key = "consistency"
	KeyScenarios          Key = "test_scenarios"
	KeyResult             Key = "result"
)

// Slot is an optional value. The zero Slot is unset.
type Slot[T any] struct {
	value T
	set   bool
}

// Get returns the value and whether it was set.
func (s *Slot[T]) Get() (T, bool) {
	return s.value, s.set
}

// Value returns the value, or the zero value when unset.
func (s *Slot[T]) Value() T {
	return s.value
}

// Set stores v.
func (s *Slot[T]) Set(v T) {
	s.value = v
	s.set = true
}

// IsSet reports whether the slot holds a value.
func (s *Slot[T]) IsSet() bool {
	return s.set
}

func (s *Slot[T]) getAny() (any, bool) {
	return s.value, s.set
}

func (s *Slot[T]) setAny(v any) error {
	typed, ok := v.(T)
	if !ok {
		var zero T
		return fmt.Errorf("want %T, got %T", zero, v)
	}
	s.Set(typed)
	return nil
}

type anySlot interface {
	getAny() (any, bool)
	setAny(any) error
	IsSet() bool
}

// Board holds the state of one document run. It is not safe for concurrent
// use; the controller is its only writer.
type Board struct {
	FilePath           Slot[string]
	Content            Slot[[]byte]
	FileType           Slot[string]
	RawText            Slot[string]
	CleanText          Slot[string]
	LLMError           Slot[string]
	Requirements       Slot[[]requirements.Requirement]
	RequirementsMethod Slot[string]
	Consistency        Slot[consistency.AnalysisResult]
	Scenarios          Slot[map[string]scenario.TestScenario]
	Result             Slot[scenario.ProcessingResult]
}

// New returns an empty board.
func New() *Board {
	return &Board{}
}

// ForFile returns a board that will read its input from path.
func ForFile(path string) *Board {
	b := New()
	b.FilePath.Set(path)
	return b
}

// ForContent returns a board over in-memory data. name is used for the
// file type and the result's source file.
func ForContent(name string, data []byte) *Board {
	b := New()
	b.FilePath.Set(name)
	b.Content.Set(data)
	return b
}

// slotOrder lists every key in pipeline order.
var slotOrder = []Key{
	KeyFilePath, KeyContent, KeyFileType, KeyRawText, KeyCleanText, KeyLLMError,
	KeyRequirements, KeyRequirementsMethod, KeyConsistency, KeyScenarios, KeyResult,
}

// AllKeys returns every slot key in pipeline order.
func AllKeys() []Key {
	return append([]Key(nil), slotOrder...)
}

func (b *Board) slot(k Key) (anySlot, bool) {
	switch k {
	case KeyFilePath:
		return &b.FilePath, true
	case KeyContent:
		return &b.Content, true
	case KeyFileType:
		return &b.FileType, true
	case KeyRawText:
		return &b.RawText, true
	case KeyCleanText:
		return &b.CleanText, true
	case KeyLLMError:
		return &b.LLMError, true
	case KeyRequirements:
		return &b.Requirements, true
	case KeyRequirementsMethod:
		return &b.RequirementsMethod, true
	case KeyConsistency:
		return &b.Consistency, true
	case KeyScenarios:
		return &b.Scenarios, true
	case KeyResult:
		return &b.Result, true
	default:
		return nil, false
	}
}

// Get returns the value at k and whether it is set.
func (b *Board) Get(k Key) (any, bool) {
	s, ok := b.slot(k)
	if !ok {
		return nil, false
	}
	return s.getAny()
}

// Set stores v at k. Unknown keys and mistyped values are errors.
func (b *Board) Set(k Key, v any) error {
	s, ok := b.slot(k)
	if !ok {
		return fmt.Errorf("unknown board key %q", k)
	}
	if err := s.setAny(v); err != nil {
		return fmt.Errorf("board key %q: %w", k, err)
	}
	return nil
}

// Has reports whether k is set.
func (b *Board) Has(k Key) bool {
	s, ok := b.slot(k)
	return ok && s.IsSet()
}

// Keys returns the set keys in pipeline order.
func (b *Board) Keys() []Key {
	var keys []Key
	for _, k := range slotOrder {
		if b.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Snapshot returns the set slots keyed by name.
func (b *Board) Snapshot() map[string]any {
	out := make(map[string]any)
	for _, k := range b.Keys() {
		v, _ := b.Get(k)
		out[string(k)] = v
	}
	return out
}
