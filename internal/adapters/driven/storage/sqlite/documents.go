package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, original_filename, file_type, size, blob_ref, state,
	error_reason, chunk_count, metadata, created_at, updated_at`

// Save inserts a new document.
func (s *documentStore) Save(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id required", domain.ErrInvalidInput)
	}

	metadataJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	state := doc.State
	if state == "" {
		state = domain.StatePending
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.OriginalFilename, string(doc.FileType), doc.Size, doc.BlobRef,
		string(state), doc.ErrorReason, doc.ChunkCount, metadataJSON, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// Get retrieves a document by ID.
func (s *documentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// List returns all documents, newest first.
func (s *documentStore) List(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// ListByState returns documents in the given state, oldest first.
func (s *documentStore) ListByState(ctx context.Context, state domain.DocumentState) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE state = ? ORDER BY created_at, rowid`,
		string(state))
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// UpdateState applies a compare-and-set state change.
func (s *documentStore) UpdateState(ctx context.Context, change domain.StateChange) (*domain.Document, error) {
	if !change.From.CanTransitionTo(change.To) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, change.From, change.To)
	}

	var updated *domain.Document
	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE id = ?`, change.DocumentID)
		doc, err := scanDocument(row)
		if err != nil {
			return err
		}
		if doc.State != change.From {
			return fmt.Errorf("%w: document %s is %s, not %s",
				domain.ErrInvalidTransition, doc.ID, doc.State, change.From)
		}

		applyChange(doc, change, time.Now())

		metadataJSON, err := marshalMetadata(doc.Metadata)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE documents
			SET state = ?, error_reason = ?, chunk_count = ?, metadata = ?, updated_at = ?
			WHERE id = ? AND state = ?
		`, string(doc.State), doc.ErrorReason, doc.ChunkCount, metadataJSON, doc.UpdatedAt,
			doc.ID, string(change.From))
		if err != nil {
			return fmt.Errorf("updating document state: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: document %s changed concurrently", domain.ErrInvalidTransition, doc.ID)
		}

		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a document record. Bindings are removed by cascade.
func (s *documentStore) Delete(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// applyChange copies the fields a state change carries onto doc.
func applyChange(doc *domain.Document, change domain.StateChange, now time.Time) {
	doc.State = change.To
	switch change.To {
	case domain.StateError:
		doc.ErrorReason = change.Reason
	case domain.StateIndexed:
		doc.ChunkCount = change.ChunkCount
		doc.ErrorReason = ""
	}
	if change.Metadata != nil {
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]string, len(change.Metadata))
		}
		maps.Copy(doc.Metadata, change.Metadata)
	}
	doc.UpdatedAt = now
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDocument scans a single document row.
func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var fileType, state, metadataJSON string

	if err := row.Scan(&doc.ID, &doc.OriginalFilename, &fileType, &doc.Size, &doc.BlobRef,
		&state, &doc.ErrorReason, &doc.ChunkCount, &metadataJSON,
		&doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.FileType = domain.FileType(fileType)
	doc.State = domain.DocumentState(state)

	if metadataJSON != "" && metadataJSON != jsonNull {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return &doc, nil
}

// scanDocuments scans every row of a document query.
func scanDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// jsonNull is the JSON representation of null.
const jsonNull = "null"

func marshalMetadata(m map[string]string) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshalling metadata: %w", err)
	}
	return string(b), nil
}
