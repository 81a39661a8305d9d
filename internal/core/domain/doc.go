// Package domain defines the core business entities for Study Buddy.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An uploaded study file and its processing state
//   - Segment: A unit of extracted text with its source locator
//   - Passage: A retrievable, embedded slice of a document
//   - ChatSession: A conversation bound to a set of documents
//   - ChatMessage: One completed question/answer turn
//   - StreamEvent: An event in a streamed answer
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
