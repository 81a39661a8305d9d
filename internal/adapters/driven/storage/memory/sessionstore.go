package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

// Ensure SessionStore and MessageStore implement the interfaces.
var (
	_ driven.SessionStore = (*SessionStore)(nil)
	_ driven.MessageStore = (*MessageStore)(nil)
)

// SessionStore is an in-memory implementation of driven.SessionStore.
// Pair it with NewMessageStore to share session counters.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]domain.ChatSession
	bindings  map[string]map[string]struct{}
	messages  map[string][]domain.ChatMessage
	order     map[string]int
	next      int
	documents *DocumentStore
}

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithDocuments ties bindings to the documents in docs, as foreign keys
// would: binding an unknown document fails and deleting a document
// unbinds it from every session.
func WithDocuments(docs *DocumentStore) SessionStoreOption {
	return func(s *SessionStore) {
		s.documents = docs
		docs.cascadeTo(s)
	}
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore(opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		sessions: make(map[string]domain.ChatSession),
		bindings: make(map[string]map[string]struct{}),
		messages: make(map[string][]domain.ChatMessage),
		order:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a session together with its initial bindings.
func (s *SessionStore) Create(_ context.Context, session *domain.ChatSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session id required", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if err := s.requireDocuments(session.DocumentIDs); err != nil {
		return err
	}
	stored := *session
	stored.DocumentIDs = nil
	s.sessions[session.ID] = stored
	s.order[session.ID] = s.next
	s.next++
	set := make(map[string]struct{}, len(session.DocumentIDs))
	for _, id := range session.DocumentIDs {
		set[id] = struct{}{}
	}
	s.bindings[session.ID] = set
	return nil
}

// Get retrieves a session with its bound document IDs.
func (s *SessionStore) Get(_ context.Context, id string) (*domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	session.DocumentIDs = s.bindingsLocked(id)
	return &session, nil
}

// List returns sessions ordered by last activity, most recent first.
func (s *SessionStore) List(_ context.Context, limit, offset int) ([]domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ChatSession, 0, len(s.sessions))
	for id, session := range s.sessions {
		session.DocumentIDs = s.bindingsLocked(id)
		result = append(result, session)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		return s.order[a.ID] > s.order[b.ID]
	})

	return page(result, limit, offset), nil
}

// Update stores title, kind, provider and last activity.
func (s *SessionStore) Update(_ context.Context, session *domain.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrNotFound
	}
	stored.Title = session.Title
	stored.Kind = session.Kind
	stored.Provider = session.Provider
	stored.LastActivity = session.LastActivity
	s.sessions[session.ID] = stored
	return nil
}

// Delete removes a session, its messages and its bindings.
func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.bindings, id)
	delete(s.messages, id)
	delete(s.order, id)
	return nil
}

// Bindings returns the bound document IDs, sorted.
func (s *SessionStore) Bindings(_ context.Context, sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, domain.ErrNotFound
	}
	return s.bindingsLocked(sessionID), nil
}

// SetBindings replaces the bound document set.
func (s *SessionStore) SetBindings(_ context.Context, sessionID string, documentIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return domain.ErrNotFound
	}
	if err := s.requireDocuments(documentIDs); err != nil {
		return err
	}
	set := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		set[id] = struct{}{}
	}
	s.bindings[sessionID] = set
	return nil
}

// AddBindings adds documents to the bound set.
func (s *SessionStore) AddBindings(_ context.Context, sessionID string, documentIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.bindings[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := s.requireDocuments(documentIDs); err != nil {
		return err
	}
	for _, id := range documentIDs {
		set[id] = struct{}{}
	}
	return nil
}

// RemoveBindings removes documents from the bound set.
func (s *SessionStore) RemoveBindings(_ context.Context, sessionID string, documentIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.bindings[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, id := range documentIDs {
		delete(set, id)
	}
	return nil
}

// UnbindDocument removes a document from every session.
func (s *SessionStore) UnbindDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range s.bindings {
		delete(set, documentID)
	}
	return nil
}

// requireDocuments checks every id against the linked document store.
// Callers hold s.mu; a document deleted after the check is unbound by its cascade.
func (s *SessionStore) requireDocuments(ids []string) error {
	if s.documents == nil {
		return nil
	}
	for _, id := range ids {
		if !s.documents.has(id) {
			return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
		}
	}
	return nil
}

func (s *SessionStore) bindingsLocked(sessionID string) []string {
	ids := make([]string, 0, len(s.bindings[sessionID]))
	for id := range s.bindings[sessionID] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// MessageStore is an in-memory implementation of driven.MessageStore.
// It keeps turns inside the SessionStore it was created from.
type MessageStore struct {
	sessions *SessionStore
}

// NewMessageStore creates a message store sharing state with sessions.
func NewMessageStore(sessions *SessionStore) *MessageStore {
	return &MessageStore{sessions: sessions}
}

// Append stores a turn once and bumps the session counters.
func (m *MessageStore) Append(_ context.Context, msg *domain.ChatMessage) (bool, error) {
	if msg == nil || msg.ID == "" {
		return false, fmt.Errorf("%w: message id required", domain.ErrInvalidInput)
	}
	s := m.sessions
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[msg.SessionID]
	if !ok {
		return false, domain.ErrNotFound
	}
	for _, existing := range s.messages[msg.SessionID] {
		if existing.ID == msg.ID {
			return false, nil
		}
	}

	stored := *msg
	stored.Sources = slices.Clone(msg.Sources)
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], stored)
	session.TotalMessages++
	session.LastActivity = msg.CreatedAt
	s.sessions[msg.SessionID] = session
	return true, nil
}

// List returns a session's turns, oldest first.
func (m *MessageStore) List(_ context.Context, sessionID string, limit, offset int) ([]domain.ChatMessage, error) {
	s := m.sessions
	s.mu.RLock()
	defer s.mu.RUnlock()
	return page(slices.Clone(s.messages[sessionID]), limit, offset), nil
}

// Count returns the number of turns stored for a session.
func (m *MessageStore) Count(_ context.Context, sessionID string) (int, error) {
	s := m.sessions
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[sessionID]), nil
}

// page applies limit/offset. A non-positive limit means no limit.
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
