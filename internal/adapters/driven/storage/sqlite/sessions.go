package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// ==================== Session Store ====================

// sessionStore implements driven.SessionStore.
type sessionStore struct {
	store *Store
}

var _ driven.SessionStore = (*sessionStore)(nil)

const sessionColumns = `id, title, kind, provider, total_messages, created_at, last_activity`

// Create inserts a session together with its initial bindings.
func (s *sessionStore) Create(ctx context.Context, session *domain.ChatSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session id required", domain.ErrInvalidInput)
	}

	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chat_sessions (`+sessionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, session.ID, session.Title, string(session.Kind), string(session.Provider),
			session.TotalMessages, session.CreatedAt, session.LastActivity)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAlreadyExists
			}
			return fmt.Errorf("creating session: %w", err)
		}
		return insertBindings(ctx, tx, session.ID, session.DocumentIDs, session.CreatedAt)
	})
}

// Get retrieves a session with its bound document IDs.
func (s *sessionStore) Get(ctx context.Context, id string) (*domain.ChatSession, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if err != nil {
		return nil, err
	}

	session.DocumentIDs, err = queryBindings(ctx, s.store.db, id)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// List returns sessions ordered by last activity, most recent first.
func (s *sessionStore) List(ctx context.Context, limit, offset int) ([]domain.ChatSession, error) {
	limit, offset = limitOffset(limit, offset)
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM chat_sessions
		ORDER BY last_activity DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}

	var sessions []domain.ChatSession //nolint:prealloc // size unknown from query
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	rows.Close()

	for i := range sessions {
		ids, err := queryBindings(ctx, s.store.db, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].DocumentIDs = ids
	}

	return sessions, nil
}

// Update stores title, kind, provider and last activity.
func (s *sessionStore) Update(ctx context.Context, session *domain.ChatSession) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE chat_sessions SET title = ?, kind = ?, provider = ?, last_activity = ?
		WHERE id = ?
	`, session.Title, string(session.Kind), string(session.Provider), session.LastActivity, session.ID)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a session. Messages and bindings are removed by cascade.
func (s *sessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM chat_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return requireAffected(res)
}

// Bindings returns the bound document IDs, sorted.
func (s *sessionStore) Bindings(ctx context.Context, sessionID string) ([]string, error) {
	if err := sessionExists(ctx, s.store.db, sessionID); err != nil {
		return nil, err
	}
	return queryBindings(ctx, s.store.db, sessionID)
}

// SetBindings replaces the bound document set.
func (s *sessionStore) SetBindings(ctx context.Context, sessionID string, documentIDs []string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, sessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM chat_session_documents WHERE session_id = ?", sessionID); err != nil {
			return fmt.Errorf("clearing bindings: %w", err)
		}
		return insertBindings(ctx, tx, sessionID, documentIDs, time.Now())
	})
}

// AddBindings adds documents to the bound set.
func (s *sessionStore) AddBindings(ctx context.Context, sessionID string, documentIDs []string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, sessionID); err != nil {
			return err
		}
		return insertBindings(ctx, tx, sessionID, documentIDs, time.Now())
	})
}

// RemoveBindings removes documents from the bound set.
func (s *sessionStore) RemoveBindings(ctx context.Context, sessionID string, documentIDs []string) error {
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, sessionID); err != nil {
			return err
		}
		if len(documentIDs) == 0 {
			return nil
		}
		args := append([]any{sessionID}, stringArgs(documentIDs)...)
		_, err := tx.ExecContext(ctx, `
			DELETE FROM chat_session_documents
			WHERE session_id = ? AND document_id IN (`+placeholders(len(documentIDs))+`)
		`, args...)
		if err != nil {
			return fmt.Errorf("removing bindings: %w", err)
		}
		return nil
	})
}

// UnbindDocument removes a document from every session.
func (s *sessionStore) UnbindDocument(ctx context.Context, documentID string) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM chat_session_documents WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("unbinding document: %w", err)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sessionExists(ctx context.Context, q querier, sessionID string) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM chat_sessions WHERE id = ?", sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking session: %w", err)
	}
	return nil
}

func queryBindings(ctx context.Context, q querier, sessionID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT document_id FROM chat_session_documents
		WHERE session_id = ? ORDER BY document_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying bindings: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning binding: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bindings: %w", err)
	}
	return ids, nil
}

func insertBindings(ctx context.Context, tx *sql.Tx, sessionID string, documentIDs []string, at time.Time) error {
	for _, docID := range documentIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chat_session_documents (session_id, document_id, added_at)
			VALUES (?, ?, ?)
			ON CONFLICT(session_id, document_id) DO NOTHING
		`, sessionID, docID, at)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, docID)
			}
			return fmt.Errorf("binding document: %w", err)
		}
	}
	return nil
}

func scanSession(row rowScanner) (*domain.ChatSession, error) {
	var session domain.ChatSession
	var kind, provider string

	if err := row.Scan(&session.ID, &session.Title, &kind, &provider,
		&session.TotalMessages, &session.CreatedAt, &session.LastActivity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	session.Kind = domain.SessionKind(kind)
	session.Provider = domain.AIProvider(provider)
	return &session, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
