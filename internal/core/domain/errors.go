package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDocumentNotFound indicates a binding names a document that does not exist.
	ErrDocumentNotFound = fmt.Errorf("document %w", ErrNotFound)

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Ingestion Errors.
	// These are user-caused and never retried. They end up as the
	// reason on a document in the ERROR state.

	// ErrUnsupportedFormat indicates a file type outside the supported set.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrCorruptFile indicates the file could not be decoded as its declared type.
	ErrCorruptFile = errors.New("corrupt file")

	// ErrEmptyContent indicates the file decoded but yielded no readable text.
	ErrEmptyContent = errors.New("empty content")

	// ErrFileTooLarge indicates the upload exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// Infrastructure Errors.

	// ErrEmbeddingBackend indicates the embedding backend failed or is unreachable.
	ErrEmbeddingBackend = errors.New("embedding backend error")

	// ErrProviderUnavailable indicates a generation provider failed, timed out
	// or is not configured.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// Caller Errors.

	// ErrDocumentNotReady indicates a document is not INDEXED and cannot be bound.
	ErrDocumentNotReady = errors.New("document not ready")

	// ErrSessionNotFound indicates an unknown chat session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidTransition indicates a document state change that is not
	// allowed from the document's current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrClosed indicates the service has been shut down.
	ErrClosed = errors.New("service closed")

	// ErrProcessingLocked indicates a running process is writing documents
	// in the same data directory, so interrupted work cannot be told apart.
	ErrProcessingLocked = errors.New("documents are being processed by a running studybuddy process")
)
