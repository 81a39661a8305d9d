package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// ==================== Message Store ====================

// messageStore implements driven.MessageStore.
type messageStore struct {
	store *Store
}

var _ driven.MessageStore = (*messageStore)(nil)

const messageColumns = `id, session_id, question, answer, provider, model, token_count,
	processing_time_ms, sources, created_at`

// Append stores a turn once and bumps the session counters.
func (s *messageStore) Append(ctx context.Context, msg *domain.ChatMessage) (bool, error) {
	if msg == nil || msg.ID == "" {
		return false, fmt.Errorf("%w: message id required", domain.ErrInvalidInput)
	}

	sources := msg.Sources
	if sources == nil {
		sources = []domain.SourceRef{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return false, fmt.Errorf("marshalling sources: %w", err)
	}

	var inserted bool
	err = s.store.withTx(ctx, func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, msg.SessionID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO chat_messages (`+messageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, msg.ID, msg.SessionID, msg.Question, msg.Answer, string(msg.Provider), msg.Model,
			msg.TokenCount, msg.ProcessingTime.Milliseconds(), string(sourcesJSON), msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE chat_sessions
			SET total_messages = total_messages + 1, last_activity = ?
			WHERE id = ?
		`, msg.CreatedAt, msg.SessionID); err != nil {
			return fmt.Errorf("updating session activity: %w", err)
		}
		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// List returns a session's turns, oldest first.
func (s *messageStore) List(ctx context.Context, sessionID string, limit, offset int) ([]domain.ChatMessage, error) {
	limit, offset = limitOffset(limit, offset)
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at, rowid
		LIMIT ? OFFSET ?
	`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.ChatMessage //nolint:prealloc // size unknown from query
	for rows.Next() {
		var msg domain.ChatMessage
		var provider, sourcesJSON string
		var processingMS int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Question, &msg.Answer, &provider,
			&msg.Model, &msg.TokenCount, &processingMS, &sourcesJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Provider = domain.AIProvider(provider)
		msg.ProcessingTime = time.Duration(processingMS) * time.Millisecond
		if sourcesJSON != "" && sourcesJSON != jsonNull {
			if err := json.Unmarshal([]byte(sourcesJSON), &msg.Sources); err != nil {
				return nil, fmt.Errorf("unmarshaling sources: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

// Count returns the number of turns stored for a session.
func (s *messageStore) Count(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chat_messages WHERE session_id = ?", sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}
