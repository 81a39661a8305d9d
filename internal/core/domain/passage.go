package domain

// Segment is a unit of extracted text with the place it came from.
// Normalisers produce segments in document order.
type Segment struct {
	// Text is the extracted text.
	Text string

	// Locator names the source position, e.g. "page 2" or "slide 3".
	Locator string
}

// Passage is a bounded slice of a document's text, the unit of retrieval.
// A passage is identified by (DocumentID, Sequence) and never mutated.
type Passage struct {
	// DocumentID links to the owning Document.
	DocumentID string

	// Sequence is the ordinal position within the document.
	Sequence int

	// Content is the passage text.
	Content string

	// Embedding is the vector representation for similarity search.
	Embedding []float32

	// Start is the character offset of the passage in the extracted text.
	Start int

	// End is the character offset one past the passage end.
	End int

	// Locator is copied from the segment the passage was cut from.
	Locator string
}

// ScoredPassage is a passage returned from a similarity search.
type ScoredPassage struct {
	Passage

	// Similarity is the cosine similarity to the query vector.
	Similarity float64
}
