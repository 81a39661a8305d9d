package driven

import "context"

// BlobStore persists raw upload bytes.
// The core does not care whether this is local disk or remote storage.
type BlobStore interface {
	// Store saves the bytes and returns a locator. ext is a hint such as ".pdf".
	Store(ctx context.Context, data []byte, ext string) (string, error)

	// Retrieve returns the bytes for a locator.
	// Returns domain.ErrNotFound for unknown locators.
	Retrieve(ctx context.Context, ref string) ([]byte, error)

	// Delete removes the bytes. Deleting an unknown locator is not an error.
	Delete(ctx context.Context, ref string) error
}
