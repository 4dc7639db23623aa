package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates a requested document or entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfiguration indicates chunking or retrieval parameters that cannot be honored.
	// Parameters are never silently corrected.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEmbeddingUnavailable indicates the embedder could not produce a vector.
	// Affected chunks are stored without an embedding and scored lexically.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrModelCallFailed indicates the language model call failed.
	ErrModelCallFailed = errors.New("model call failed")

	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an upload that is not UTF-8 text.
	ErrUnsupportedType = errors.New("unsupported type")
)

// DocumentNotFoundError reports a scope that names a document which is not stored.
type DocumentNotFoundError struct {
	Filename  string
	Available []string
}

func (e *DocumentNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("document %q not found (no documents available)", e.Filename)
	}
	return fmt.Sprintf("document %q not found (available: %s)", e.Filename, strings.Join(e.Available, ", "))
}

func (e *DocumentNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ModelError wraps a failed language model call.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model call failed: %v", e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

func (e *ModelError) Is(target error) bool {
	return target == ErrModelCallFailed
}
