package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// FileType is the detected format of an uploaded document.
type FileType string

// Supported file types.
const (
	// FileTypePDF is a PDF document.
	FileTypePDF FileType = "pdf"

	// FileTypeText is a UTF-8 plain text file.
	FileTypeText FileType = "text"

	// FileTypeSlides is a PowerPoint (OOXML) slide deck.
	FileTypeSlides FileType = "slides"

	// FileTypeNotebook is a Jupyter notebook.
	FileTypeNotebook FileType = "notebook"
)

var extensionTypes = map[string]FileType{
	".pdf":   FileTypePDF,
	".txt":   FileTypeText,
	".pptx":  FileTypeSlides,
	".ipynb": FileTypeNotebook,
}

// DetectFileType maps a filename to its file type by extension.
// Unknown extensions return ErrUnsupportedFormat.
func DetectFileType(filename string) (FileType, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := extensionTypes[ext]; ok {
		return t, nil
	}
	return "", ErrUnsupportedFormat
}

// IsValid returns true if the file type is recognised.
func (t FileType) IsValid() bool {
	switch t {
	case FileTypePDF, FileTypeText, FileTypeSlides, FileTypeNotebook:
		return true
	default:
		return false
	}
}

// Extension returns the canonical file extension including the dot.
func (t FileType) Extension() string {
	for ext, ft := range extensionTypes {
		if ft == t {
			return ext
		}
	}
	return ""
}

// String returns the string representation.
func (t FileType) String() string {
	return string(t)
}

// AllFileTypes returns every supported file type.
func AllFileTypes() []FileType {
	return []FileType{FileTypePDF, FileTypeText, FileTypeSlides, FileTypeNotebook}
}

// DocumentState is the position of a document in its processing lifecycle.
type DocumentState string

// Document states.
const (
	// StatePending means the document is uploaded and queued or being extracted.
	StatePending DocumentState = "PENDING"

	// StateProcessing means passages are being written to the vector index.
	StateProcessing DocumentState = "PROCESSING"

	// StateIndexed means every passage is durably written and retrievable.
	StateIndexed DocumentState = "INDEXED"

	// StateError means processing failed. See Document.ErrorReason.
	StateError DocumentState = "ERROR"
)

// IsValid returns true if the state is recognised.
func (s DocumentState) IsValid() bool {
	switch s {
	case StatePending, StateProcessing, StateIndexed, StateError:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states with no outgoing transitions.
func (s DocumentState) IsTerminal() bool {
	return s == StateIndexed || s == StateError
}

// CanTransitionTo reports whether moving from s to next is a forward step.
//
//	PENDING    -> PROCESSING | ERROR
//	PROCESSING -> INDEXED | ERROR
func (s DocumentState) CanTransitionTo(next DocumentState) bool {
	switch s {
	case StatePending:
		return next == StateProcessing || next == StateError
	case StateProcessing:
		return next == StateIndexed || next == StateError
	default:
		return false
	}
}

// String returns the string representation.
func (s DocumentState) String() string {
	return string(s)
}

// Document is an uploaded study file and its processing state.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// OriginalFilename is the filename supplied at upload.
	OriginalFilename string

	// FileType is the detected format.
	FileType FileType

	// Size is the file size in bytes.
	Size int64

	// BlobRef locates the raw bytes in the blob store.
	BlobRef string

	// State is the processing state.
	State DocumentState

	// ErrorReason explains why the document is in the ERROR state.
	ErrorReason string

	// ChunkCount is the number of passages written once INDEXED.
	ChunkCount int

	// Metadata contains values found during extraction (e.g. page count).
	Metadata map[string]string

	// CreatedAt is when the document was uploaded.
	CreatedAt time.Time

	// UpdatedAt is when the document state last changed.
	UpdatedAt time.Time
}

// IsReady returns true if the document may be bound to a session.
func (d *Document) IsReady() bool {
	return d.State == StateIndexed
}

// StateChange describes a compare-and-set transition of a document's state.
type StateChange struct {
	// DocumentID is the document to update.
	DocumentID string

	// From is the state the document must currently be in.
	From DocumentState

	// To is the new state.
	To DocumentState

	// Reason is recorded when To is StateError.
	Reason string

	// ChunkCount is recorded when To is StateIndexed.
	ChunkCount int

	// Metadata is merged into the document's metadata when non-nil.
	Metadata map[string]string
}

// DocumentEvent is published whenever a document changes state.
type DocumentEvent struct {
	// DocumentID is the document that changed.
	DocumentID string

	// State is the new state.
	State DocumentState

	// Reason is set for StateError.
	Reason string

	// At is when the change happened.
	At time.Time
}
