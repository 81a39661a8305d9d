package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/custodia-labs/studybuddy/internal/adapters/driven/storage/similarity"
	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// ==================== Vector Index ====================

// vectorIndex implements driven.VectorIndex with brute-force cosine
// search over the passages table.
type vectorIndex struct {
	store *Store
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// Upsert replaces all passages of a document in one transaction.
func (v *vectorIndex) Upsert(ctx context.Context, documentID string, passages []domain.Passage) error {
	if err := similarity.Validate(documentID, passages); err != nil {
		return err
	}

	return v.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM passages WHERE document_id = ?", documentID); err != nil {
			return fmt.Errorf("clearing passages: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO passages (document_id, sequence, content, embedding, start_offset, end_offset, locator)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range passages {
			if _, err := stmt.ExecContext(ctx, documentID, p.Sequence, p.Content,
				float32SliceToBytes(p.Embedding), p.Start, p.End, p.Locator); err != nil {
				return fmt.Errorf("saving passage: %w", err)
			}
		}
		return nil
	})
}

// Delete removes all passages of a document.
func (v *vectorIndex) Delete(ctx context.Context, documentID string) error {
	_, err := v.store.db.ExecContext(ctx, "DELETE FROM passages WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("deleting passages: %w", err)
	}
	return nil
}

// Search returns up to k passages of the allowed documents closest to query.
func (v *vectorIndex) Search(
	ctx context.Context, query []float32, allowedDocumentIDs []string, k int,
) ([]domain.ScoredPassage, error) {
	if len(allowedDocumentIDs) == 0 || k <= 0 {
		return nil, nil
	}

	rows, err := v.store.db.QueryContext(ctx, `
		SELECT document_id, sequence, content, embedding, start_offset, end_offset, locator
		FROM passages
		WHERE document_id IN (`+placeholders(len(allowedDocumentIDs))+`)
		ORDER BY id
	`, stringArgs(allowedDocumentIDs)...)
	if err != nil {
		return nil, fmt.Errorf("querying passages: %w", err)
	}
	defer rows.Close()

	var candidates []domain.Passage //nolint:prealloc // size unknown from query
	for rows.Next() {
		var p domain.Passage
		var blob []byte
		if err := rows.Scan(&p.DocumentID, &p.Sequence, &p.Content, &blob,
			&p.Start, &p.End, &p.Locator); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		p.Embedding = bytesToFloat32Slice(blob)
		candidates = append(candidates, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passages: %w", err)
	}

	return similarity.TopK(query, candidates, k)
}

// Count returns the number of passages stored for a document.
func (v *vectorIndex) Count(ctx context.Context, documentID string) (int, error) {
	var n int
	err := v.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM passages WHERE document_id = ?", documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting passages: %w", err)
	}
	return n, nil
}

// Close is a no-op; the owning Store holds the connection.
func (v *vectorIndex) Close() error {
	return nil
}
