package mcp

import (
	"context"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driving"
)

// mockChatService is a mock implementation of driving.ChatService.
type mockChatService struct {
	events []domain.StreamEvent
	err    error
	last   driving.AnswerRequest
}

func (m *mockChatService) Answer(_ context.Context, req driving.AnswerRequest) (<-chan domain.StreamEvent, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan domain.StreamEvent, len(m.events))
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// mockSessionService is a mock implementation of driving.SessionService.
type mockSessionService struct {
	session  *domain.ChatSession
	sessions []domain.ChatSession
	messages []domain.ChatMessage
	err      error

	lastCreate driving.CreateSessionRequest
	lastMode   driving.BindMode
	lastLimit  int
}

func (m *mockSessionService) Create(_ context.Context, req driving.CreateSessionRequest) (*domain.ChatSession, error) {
	m.lastCreate = req
	return m.session, m.err
}

func (m *mockSessionService) Get(_ context.Context, _ string) (*domain.ChatSession, error) {
	return m.session, m.err
}

func (m *mockSessionService) List(_ context.Context, limit, _ int) ([]domain.ChatSession, error) {
	m.lastLimit = limit
	return m.sessions, m.err
}

func (m *mockSessionService) Rename(_ context.Context, _, _ string) error {
	return m.err
}

func (m *mockSessionService) SetProvider(_ context.Context, _ string, _ domain.AIProvider) error {
	return m.err
}

func (m *mockSessionService) Delete(_ context.Context, _ string) error {
	return m.err
}

func (m *mockSessionService) ResolveScope(_ context.Context, _ string) ([]string, error) {
	if m.session == nil {
		return nil, m.err
	}
	return m.session.DocumentIDs, m.err
}

func (m *mockSessionService) BindDocuments(_ context.Context, _ string, _ []string, mode driving.BindMode) error {
	m.lastMode = mode
	return m.err
}

func (m *mockSessionService) Messages(_ context.Context, _ string, _, _ int) ([]domain.ChatMessage, error) {
	return m.messages, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents []domain.Document
	document  *domain.Document
	err       error

	uploaded string
	data     []byte
	waited   bool
}

func (m *mockDocumentService) Upload(_ context.Context, filename string, data []byte) (*domain.Document, error) {
	m.uploaded = filename
	m.data = data
	return m.document, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, _ string) error {
	return m.err
}

func (m *mockDocumentService) Subscribe(_ string) (<-chan domain.DocumentEvent, func()) {
	ch := make(chan domain.DocumentEvent)
	close(ch)
	return ch, func() {}
}

func (m *mockDocumentService) WaitForState(_ context.Context, _ string) (*domain.Document, error) {
	m.waited = true
	done := *m.document
	done.State = domain.StateIndexed
	return &done, m.err
}

func (m *mockDocumentService) Recover(_ context.Context) (*driving.RecoveryReport, error) {
	return &driving.RecoveryReport{}, m.err
}
