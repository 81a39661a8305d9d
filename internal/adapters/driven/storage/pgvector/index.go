// Package pgvector implements driven.VectorIndex on PostgreSQL with the
// pgvector extension, for deployments that already run Postgres.
package pgvector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/studybuddy/internal/adapters/driven/storage/similarity"
	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
	"github.com/custodia-labs/studybuddy/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// DefaultMaxConns is the connection pool size.
const DefaultMaxConns = 10

// DefaultTable is the passages table name.
const DefaultTable = "studybuddy_passages"

// Config holds connection settings.
type Config struct {
	// DSN is a libpq connection string or URL.
	DSN string

	// MaxConns caps the pool size. Zero uses DefaultMaxConns.
	MaxConns int32
}

// Index is a pgvector-backed vector index.
type Index struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and creates the schema if needed.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres dsn required", domain.ErrInvalidInput)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	poolCfg.MaxConns = DefaultMaxConns
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	idx := &Index{pool: pool}
	if err := idx.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Debug("pgvector index ready (max conns %d)", poolCfg.MaxConns)
	return idx, nil
}

func (i *Index) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS ` + DefaultTable + ` (
			id           BIGSERIAL PRIMARY KEY,
			document_id  TEXT NOT NULL,
			sequence     INTEGER NOT NULL,
			content      TEXT NOT NULL,
			embedding    vector NOT NULL,
			start_offset INTEGER NOT NULL DEFAULT 0,
			end_offset   INTEGER NOT NULL DEFAULT 0,
			locator      TEXT NOT NULL DEFAULT '',
			UNIQUE (document_id, sequence)
		)`,
		`CREATE INDEX IF NOT EXISTS ` + DefaultTable + `_document_idx ON ` + DefaultTable + ` (document_id)`,
	}
	for _, stmt := range statements {
		if _, err := i.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating pgvector schema: %w", err)
		}
	}
	return nil
}

// Upsert replaces all passages of a document in one transaction.
func (i *Index) Upsert(ctx context.Context, documentID string, passages []domain.Passage) error {
	if err := similarity.Validate(documentID, passages); err != nil {
		return err
	}

	tx, err := i.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `DELETE FROM `+DefaultTable+` WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clearing passages: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range passages {
		batch.Queue(`
			INSERT INTO `+DefaultTable+` (document_id, sequence, content, embedding, start_offset, end_offset, locator)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			documentID, p.Sequence, p.Content, pgv.NewVector(p.Embedding), p.Start, p.End, p.Locator,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for n := range passages {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("inserting passage %d: %w", n, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Delete removes all passages of a document.
func (i *Index) Delete(ctx context.Context, documentID string) error {
	if _, err := i.pool.Exec(ctx, `DELETE FROM `+DefaultTable+` WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("deleting passages: %w", err)
	}
	return nil
}

// Search returns up to k passages of the allowed documents closest to query.
// Equal distances are ordered by insertion.
func (i *Index) Search(
	ctx context.Context, query []float32, allowedDocumentIDs []string, k int,
) ([]domain.ScoredPassage, error) {
	if len(allowedDocumentIDs) == 0 || k <= 0 {
		return nil, nil
	}

	rows, err := i.pool.Query(ctx, `
		SELECT document_id, sequence, content, embedding, start_offset, end_offset, locator,
		       1 - (embedding <=> $1) AS similarity
		FROM `+DefaultTable+`
		WHERE document_id = ANY($2)
		ORDER BY embedding <=> $1, id
		LIMIT $3`,
		pgv.NewVector(query), allowedDocumentIDs, k,
	)
	if err != nil {
		return nil, fmt.Errorf("searching passages: %w", err)
	}
	defer rows.Close()

	var results []domain.ScoredPassage
	for rows.Next() {
		var r domain.ScoredPassage
		var embedding pgv.Vector
		if err := rows.Scan(&r.DocumentID, &r.Sequence, &r.Content, &embedding,
			&r.Start, &r.End, &r.Locator, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning passage: %w", err)
		}
		r.Embedding = embedding.Slice()
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		if isDimensionMismatch(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("iterating passages: %w", err)
	}
	return results, nil
}

// Count returns the number of passages stored for a document.
func (i *Index) Count(ctx context.Context, documentID string) (int, error) {
	var n int
	err := i.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM `+DefaultTable+` WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting passages: %w", err)
	}
	return n, nil
}

// Close releases the connection pool.
func (i *Index) Close() error {
	i.pool.Close()
	return nil
}

func isDimensionMismatch(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		// data_exception raised by pgvector for "different vector dimensions"
		return pgErr.SQLState() == "22000"
	}
	return false
}
