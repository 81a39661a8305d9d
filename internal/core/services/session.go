package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driving"
	"github.com/custodia-labs/studybuddy/internal/logger"
)

// Ensure SessionService implements the interface.
var _ driving.SessionService = (*SessionService)(nil)

// SessionService manages chat sessions and their bound documents.
// It is the only component that answers "what may this session retrieve".
type SessionService struct {
	sessions  driven.SessionStore
	messages  driven.MessageStore
	documents driven.DocumentStore
}

// NewSessionService creates a new session service.
func NewSessionService(
	sessions driven.SessionStore,
	messages driven.MessageStore,
	documents driven.DocumentStore,
) *SessionService {
	return &SessionService{
		sessions:  sessions,
		messages:  messages,
		documents: documents,
	}
}

// Create creates a session bound to an initial set of INDEXED documents.
func (s *SessionService) Create(ctx context.Context, req driving.CreateSessionRequest) (*domain.ChatSession, error) {
	kind := req.Kind
	if kind == "" {
		kind = domain.SessionKindText
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown session kind %q", domain.ErrInvalidInput, kind)
	}
	if req.Provider != "" && !req.Provider.SupportsGeneration() {
		return nil, fmt.Errorf("%w: %q cannot answer questions", domain.ErrInvalidInput, req.Provider)
	}

	ids := normaliseIDs(req.DocumentIDs)
	if err := s.requireReady(ctx, ids); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = domain.DefaultSessionTitle
	}

	now := time.Now()
	session := &domain.ChatSession{
		ID:           uuid.New().String(),
		Title:        title,
		Kind:         kind,
		Provider:     req.Provider,
		DocumentIDs:  ids,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	logger.Info("created session %s with %d documents", session.ID, len(ids))
	return session, nil
}

// Get retrieves a session with its bound documents.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, sessionErr(sessionID, err)
	}
	return session, nil
}

// List returns sessions, most recently active first.
func (s *SessionService) List(ctx context.Context, limit, offset int) ([]domain.ChatSession, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", domain.ErrInvalidInput)
	}
	return s.sessions.List(ctx, limit, offset)
}

// Rename changes a session's title.
func (s *SessionService) Rename(ctx context.Context, sessionID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	return s.update(ctx, sessionID, func(session *domain.ChatSession) {
		session.Title = title
	})
}

// SetProvider changes a session's default provider. Empty clears it.
func (s *SessionService) SetProvider(ctx context.Context, sessionID string, provider domain.AIProvider) error {
	if provider != "" && !provider.SupportsGeneration() {
		return fmt.Errorf("%w: %q cannot answer questions", domain.ErrInvalidInput, provider)
	}
	return s.update(ctx, sessionID, func(session *domain.ChatSession) {
		session.Provider = provider
	})
}

// Delete removes a session with its messages and bindings.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return sessionErr(sessionID, err)
	}
	logger.Info("deleted session %s", sessionID)
	return nil
}

// ResolveScope returns the session's current bound document set.
// The result is read from the store on every call.
func (s *SessionService) ResolveScope(ctx context.Context, sessionID string) ([]string, error) {
	ids, err := s.sessions.Bindings(ctx, sessionID)
	if err != nil {
		return nil, sessionErr(sessionID, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// BindDocuments changes the bound set. Nothing changes unless every
// document being bound exists and is INDEXED.
func (s *SessionService) BindDocuments(
	ctx context.Context,
	sessionID string,
	documentIDs []string,
	mode driving.BindMode,
) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: unknown bind mode %q", domain.ErrInvalidInput, mode)
	}
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return sessionErr(sessionID, err)
	}

	ids := normaliseIDs(documentIDs)
	if mode != driving.BindRemove {
		if err := s.requireReady(ctx, ids); err != nil {
			return err
		}
	}

	var err error
	switch mode {
	case driving.BindReplace:
		err = s.sessions.SetBindings(ctx, sessionID, ids)
	case driving.BindAdd:
		err = s.sessions.AddBindings(ctx, sessionID, ids)
	case driving.BindRemove:
		err = s.sessions.RemoveBindings(ctx, sessionID, ids)
	}
	if err != nil {
		return sessionErr(sessionID, err)
	}

	logger.Debug("session %s: %s %d documents", sessionID, mode, len(ids))
	return nil
}

// Messages returns a session's completed turns, oldest first.
func (s *SessionService) Messages(ctx context.Context, sessionID string, limit, offset int) ([]domain.ChatMessage, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, sessionErr(sessionID, err)
	}
	return s.messages.List(ctx, sessionID, limit, offset)
}

func (s *SessionService) update(ctx context.Context, sessionID string, apply func(*domain.ChatSession)) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return sessionErr(sessionID, err)
	}
	apply(session)
	session.LastActivity = time.Now()
	if err := s.sessions.Update(ctx, session); err != nil {
		return sessionErr(sessionID, err)
	}
	return nil
}

// requireReady checks that every document exists and is INDEXED.
func (s *SessionService) requireReady(ctx context.Context, ids []string) error {
	for _, id := range ids {
		doc, err := s.documents.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("document %s: %w", id, err)
		}
		if !doc.IsReady() {
			return fmt.Errorf("%w: %s (%s) is %s", domain.ErrDocumentNotReady, doc.OriginalFilename, doc.ID, doc.State)
		}
	}
	return nil
}

// sessionErr maps a store's ErrNotFound to ErrSessionNotFound.
// A missing bound document is passed through.
func sessionErr(sessionID string, err error) error {
	if errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrDocumentNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return err
}

// normaliseIDs trims, deduplicates and sorts document IDs.
func normaliseIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
