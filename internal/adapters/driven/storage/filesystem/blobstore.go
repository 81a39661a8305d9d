// Package filesystem keeps uploaded file bytes and the processing lock on local disk.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure BlobStore implements the interface.
var _ driven.BlobStore = (*BlobStore)(nil)

// validRef matches locators this store hands out: a UUID and an optional extension.
var validRef = regexp.MustCompile(`^[0-9a-f-]{36}(\.[a-z0-9]{1,8})?$`)

// BlobStore keeps each upload as one file named <uuid><ext> under a directory.
type BlobStore struct {
	dir string
}

// NewBlobStore creates a blob store rooted at dir.
// If dir is empty, defaults to ~/.studybuddy/data/uploads.
func NewBlobStore(dir string) (*BlobStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".studybuddy", "data", "uploads")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &BlobStore{dir: dir}, nil
}

// Dir returns the upload directory.
func (b *BlobStore) Dir() string {
	return b.dir
}

// Store writes data to a new file and returns its locator.
// The file is written under a temporary name and renamed into place.
func (b *BlobStore) Store(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := uuid.NewString() + strings.ToLower(ext)
	if !validRef.MatchString(ref) {
		return "", fmt.Errorf("%w: bad extension %q", domain.ErrInvalidInput, ext)
	}

	tmp, err := os.CreateTemp(b.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing upload: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(b.dir, ref)); err != nil {
		return "", fmt.Errorf("storing upload: %w", err)
	}

	return ref, nil
}

// Retrieve returns the bytes for a locator.
func (b *BlobStore) Retrieve(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := b.path(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	return data, nil
}

// Delete removes the file for a locator.
func (b *BlobStore) Delete(_ context.Context, ref string) error {
	path, err := b.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting upload: %w", err)
	}
	return nil
}

// path resolves a locator, refusing anything that could escape the directory.
func (b *BlobStore) path(ref string) (string, error) {
	if !validRef.MatchString(ref) {
		return "", fmt.Errorf("%w: blob ref %q", domain.ErrNotFound, ref)
	}
	return filepath.Join(b.dir, ref), nil
}
