package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driving"
)

const physicsNotes = `Newton's second law states that force equals mass times acceleration.
Momentum is conserved in a closed system with no external forces.
Kinetic energy is one half of mass times velocity squared.`

// lectureNotes is long enough to be cut into many passages.
func lectureNotes() string {
	topics := []string{
		"Mitochondria produce ATP through cellular respiration.",
		"Ribosomes translate messenger RNA into protein chains.",
		"The nucleus stores genetic material as chromatin.",
		"Lysosomes digest worn out organelles and debris.",
		"The Golgi apparatus packages proteins for secretion.",
		"Chloroplasts capture light for photosynthesis in plant cells.",
		"The cell membrane is a selectively permeable lipid bilayer.",
		"Vacuoles store water and nutrients inside plant cells.",
	}
	sections := make([]string, len(topics))
	for i, topic := range topics {
		sections[i] = fmt.Sprintf("Section %d. %s %s", i+1, topic, topic)
	}
	return strings.Join(sections, "\n\n")
}

// wordCounter counts whitespace separated words.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

// stubPrompts serves fixed prompts.
type stubPrompts map[string]string

func (s stubPrompts) Load(name string) (string, error) {
	if p, ok := s[name]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: prompt %s", domain.ErrNotFound, name)
}

func (stubPrompts) Reload() {}

func (h *harness) session(t *testing.T, req driving.CreateSessionRequest) *domain.ChatSession {
	t.Helper()
	session, err := h.gate.Create(context.Background(), req)
	require.NoError(t, err)
	return session
}

func (h *harness) turns(t *testing.T, sessionID string) []domain.ChatMessage {
	t.Helper()
	msgs, err := h.messages.List(context.Background(), sessionID, 0, 0)
	require.NoError(t, err)
	return msgs
}

func ask(t *testing.T, chat *ChatService, sessionID, question string) []domain.StreamEvent {
	t.Helper()
	stream, err := chat.Answer(context.Background(), driving.AnswerRequest{SessionID: sessionID, Question: question})
	require.NoError(t, err)
	return collect(t, stream)
}

// sourcesOf returns the source list of a stream.
func sourcesOf(events []domain.StreamEvent) []domain.SourceRef {
	for _, ev := range events {
		if ev.Type == domain.EventSourceList {
			return ev.Sources
		}
	}
	return nil
}

func lastEvent(t *testing.T, events []domain.StreamEvent) domain.StreamEvent {
	t.Helper()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

// ==================== Synchronous validation ====================

func TestChatService_Answer_RejectsMisuse(t *testing.T) {
	h := newHarness(t)
	chat := h.chat(ChatConfig{})
	session := h.session(t, driving.CreateSessionRequest{})

	tests := []struct {
		name    string
		req     driving.AnswerRequest
		wantErr error
	}{
		{"empty question", driving.AnswerRequest{SessionID: session.ID, Question: "   "}, domain.ErrInvalidInput},
		{"unknown provider", driving.AnswerRequest{SessionID: session.ID, Question: "hi", Provider: "gpt"}, domain.ErrInvalidInput},
		{"embedding only provider", driving.AnswerRequest{SessionID: session.ID, Question: "hi", Provider: domain.AIProviderHashing}, domain.ErrInvalidInput},
		{"unknown session", driving.AnswerRequest{SessionID: "nope", Question: "hi"}, domain.ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, err := chat.Answer(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, stream)
		})
	}

	h.ollama.AssertNotCalled(t, "GenerateStream", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.turns(t, session.ID))
}

// ==================== Grounded answers ====================

func TestChatService_Answer_StreamsGroundedAnswer(t *testing.T) {
	h := newHarness(t)
	h.ollama.streams("Photosynthesis ", "happens in ", "chloroplasts [1].")
	doc := h.indexed(t, "biology.txt", biologyNotes)
	session := h.session(t, driving.CreateSessionRequest{DocumentIDs: []string{doc.ID}})

	events := ask(t, h.chat(ChatConfig{}), session.ID, "Where does photosynthesis happen?")

	assert.Equal(t, []domain.StreamEventType{
		domain.EventContentDelta,
		domain.EventContentDelta,
		domain.EventContentDelta,
		domain.EventSourceList,
		domain.EventDone,
	}, eventTypes(events))
	assert.Equal(t, "Photosynthesis happens in chloroplasts [1].", answerText(events))

	sources := events[3].Sources
	require.NotEmpty(t, sources)
	for _, src := range sources {
		assert.Equal(t, doc.ID, src.DocumentID)
		assert.Equal(t, "biology.txt", src.Filename)
	}

	req := h.ollama.lastRequest(t)
	assert.Equal(t, fallbackPrompts[driven.PromptGroundedSystem], req.System)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "[1] biology.txt")
	assert.True(t, strings.HasSuffix(req.Messages[0].Content, "Question: Where does photosynthesis happen?"))

	turns := h.turns(t, session.ID)
	require.Len(t, turns, 1)
	assert.Equal(t, events[4].MessageID, turns[0].ID)
	assert.Equal(t, "Photosynthesis happens in chloroplasts [1].", turns[0].Answer)
	assert.Equal(t, domain.AIProviderOllama, turns[0].Provider)
	assert.Equal(t, "ollama-model", turns[0].Model)
	assert.Equal(t, sources, turns[0].Sources)
}

func TestChatService_Answer_NotesPDFScenario(t *testing.T) {
	h := newHarness(t)
	h.ollama.streams("Light reactions occur in the thylakoids.")
	doc := h.upload(t, "notes.pdf", pdfBytes(
		"Photosynthesis has light dependent reactions in the thylakoid membranes.",
		"The Calvin cycle fixes carbon dioxide in the stroma.",
	))
	require.Equal(t, domain.StateIndexed, doc.State, doc.ErrorReason)
	session := h.session(t, driving.CreateSessionRequest{DocumentIDs: []string{doc.ID}})

	events := ask(t, h.chat(ChatConfig{}), session.ID, "Where do the light reactions happen?")

	assert.Equal(t, domain.EventDone, lastEvent(t, events).Type)
	prompt := h.ollama.lastRequest(t).Messages[0].Content
	assert.Contains(t, prompt, "[1] notes.pdf (page ")
	assert.Contains(t, prompt, "thylakoid")

	for _, ev := range events {
		if ev.Type == domain.EventSourceList {
			for _, src := range ev.Sources {
				assert.Equal(t, "notes.pdf", src.Filename)
				assert.True(t, strings.HasPrefix(src.Locator, "page "), src.Locator)
			}
		}
	}

	require.Len(t, h.turns(t, session.ID), 1)
	got, err := h.gate.Get(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalMessages)
}

func TestChatService_Answer_RetrievesOnlyBoundDocuments(t *testing.T) {
	h := newHarness(t)
	h.ollama.streams("ok")
	biology := h.indexed(t, "biology.txt", biologyNotes)
	physics := h.indexed(t, "physics.txt", physicsNotes)
	session := h.session(t, driving.CreateSessionRequest{DocumentIDs: []string{biology.ID}})

	// The question matches the unbound physics document best.
	events := ask(t, h.chat(ChatConfig{TopK: 10}), session.ID, "What does Newton's second law say about force and mass?")

	require.Equal(t, domain.EventDone, lastEvent(t, events).Type)
	for _, ev := range events {
		for _, src := range ev.Sources {
			assert.Equal(t, biology.ID, src.DocumentID)
			assert.NotEqual(t, physics.ID, src.DocumentID)
		}
	}
	assert.NotContains(t, h.ollama.lastRequest(t).Messages[0].Content, "physics.txt")
}

func TestChatService_Answer_DefaultTopK(t *testing.T) {
	h := newHarness(t)
	h.ollama.streams("ok")
	doc := h.indexed(t, "cells.txt", lectureNotes())
	require.Greater(t, doc.ChunkCount, domain.DefaultTopK)
	session := h.session(t, driving.CreateSessionRequest{DocumentIDs: []string{doc.ID}})

	events := ask(t, h.chat(ChatConfig{}), session.ID, "What do mitochondria produce?")

	var sources []domain.SourceRef
	for _, ev := range events {
		if ev.Type == domain.EventSourceList {
			sources = ev.Sources
		}
	}
	assert.Len(t, sources, domain.DefaultTopK)
	assert.Contains(t, h.ollama.lastRequest(t).Messages[0].Content, "[3] cells.txt")
	assert.NotContains(t, h.ollama.lastRequest(t).Messages[0].Content, "[4] cells.txt")
}

func TestChatService_Answer_PerQuestionTopK(t *testing.T) {
	h := newHarness(t)
	h.ollama.streams("ok")
	doc := h.indexed(t, "cells.txt", lectureNotes())
	require.GreaterOrEqual(t, doc.ChunkCount, 5)
	session := h.session(t, driving.CreateSessionRequest{DocumentIDs: []string{doc.ID}})
	chat := h.chat(ChatConfig{})

	tests := []struct {
		name string
		topK int
		want int
	}{
		{"configured default", 0, domain.DefaultTopK},
		{"one passage", 1, 1},
		{"five passages", 5, 5},
		{"negative clamps to one", -4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, err := chat.Answer(context.Background(), driving.AnswerRequest{
				SessionID: session.ID,
				Question:  "What do mitochondria produce?",
				TopK:      tt.topK,
			})
			require.NoError(t, err)

			assert.Len(t, sourcesOf(collect(t, stream)), tt.want)
		})
	}
}

func TestChatService_PickTopK(t *testing.T) {
	chat := NewChatService(ChatDeps{}, ChatConfig{TopK: 4})

	assert.Equal(t, 4, chat.pickTopK(0))
	assert.Equal(t, 1, chat.pickTopK(-1))
	assert.Equal(t, 7, chat.pickTopK(7))
	assert.Equal(t, domain.MaxTopK, chat.pickTopK(domain.MaxTopK+5))
}

func TestChatService_Answer_SessionsAreIsolated(t *testing.T) {
	h := newHarness(t)
	h.ollama.streams("ok")
	biology := h.indexed(t, "biology.txt", biologyNotes)
	physics := h.indexed(t, "physics.txt", physicsNotes)
	first := h.session(t, driving.CreateSessionRequest{DocumentIDs: []string{biology.ID}})
	second := h.session(t, driving.CreateSessionRequest{DocumentIDs: []string{physics.ID}})
	chat := h.chat(ChatConfig{TopK: domain.MaxTopK})

	const question = "What does this material explain about energy?"
	firstSources := sourcesOf(ask(t, chat, first.ID, question))
	secondSources := sourcesOf(ask(t, chat, second.ID, question))

	require.NotEmpty(t, firstSources)
	require.NotEmpty(t, secondSources)
	for _, src := range firstSources {
		assert.Equal(t, biology.ID, src.DocumentID)
	}
	for _, src := range secondSources {
		assert.Equal(t, physics.ID, src.DocumentID)
	}
	assert.Len(t, h.turns(t, first.ID), 1)
	assert.Len(t, h.turns(t, second.ID), 1)
}

func TestChatService_Answer_ScopeResolvedEveryTurn(t *testing.T) {
	h := newHarness(t)
	h.ollama.streams("ok")
	doc := h.indexed(t, "biology.txt", biologyNotes)
	session := h.session(t, driving.CreateSessionRequest{DocumentIDs: []string{doc.ID}})
	chat := h.chat(ChatConfig{})

	ask(t, chat, session.ID, "What is photosynthesis?")
	assert.Contains(t, h.ollama.lastRequest(t).Messages[0].Content, "biology.txt")

	require.NoError(t, h.gate.BindDocuments(context.Background(), session.ID, []string{doc.ID}, driving.BindRemove))
	events := ask(t, chat, session.ID, "What is photosynthesis?")

	assert.Equal(t, domain.EventDone, lastEvent(t, events).Type)
	assert.Equal(t, ungroundedPrompt("What is photosynthesis?"), h.ollama.lastRequest(t).Messages[0].Content)
	assert.Len(t, h.turns(t, session.ID), 2)
}

// ==================== Empty scope ====================

func TestChatService_Answer_EmptyScopeUngrounded(t *testing.T) {
	h := newHarness(t)
	h.ollama.streams("From general knowledge, ", "mitosis is cell division.")
	session := h.session(t, driving.CreateSessionRequest{})

	events := ask(t, h.chat(ChatConfig{EmptyScopePolicy: domain.EmptyScopeUngrounded}), session.ID, "What is mitosis?")

	assert.Equal(t, []domain.StreamEventType{
		domain.EventContentDelta,
		domain.EventContentDelta,
		domain.EventSourceList,
		domain.EventDone,
	}, eventTypes(events))
	assert.Empty(t, events[2].Sources)

	req := h.ollama.lastRequest(t)
	assert.Equal(t, fallbackPrompts[driven.PromptUngroundedSystem], req.System)
	assert.Contains(t, req.Messages[0].Content, "No grounding documents")

	turns := h.turns(t, session.ID)
	require.Len(t, turns, 1)
	assert.Empty(t, turns[0].Sources)
	assert.Equal(t, "From general knowledge, mitosis is cell division.", turns[0].Answer)
}

func TestChatService_Answer_EmptyScopeRefuse(t *testing.T) {
	h := newHarness(t)
	session := h.session(t, driving.CreateSessionRequest{})

	events := ask(t, h.chat(ChatConfig{EmptyScopePolicy: domain.EmptyScopeRefuse}), session.ID, "What is mitosis?")

	assert.Equal(t, []domain.StreamEventType{
		domain.EventContentDelta,
		domain.EventSourceList,
		domain.EventDone,
	}, eventTypes(events))
	assert.Equal(t, fallbackPrompts[driven.PromptRefusal], answerText(events))
	h.ollama.AssertNotCalled(t, "GenerateStream", mock.Anything, mock.Anything, mock.Anything)

	turns := h.turns(t, session.ID)
	require.Len(t, turns, 1)
	assert.Empty(t, turns[0].Provider)
}

func TestChatService_Answer_PromptStore(t *testing.T) {
	h := newHarness(t)
	session := h.session(t, driving.CreateSessionRequest{})
	chat := h.chat(ChatConfig{EmptyScopePolicy: domain.EmptyScopeRefuse})
	chat.SetPromptStore(stubPrompts{driven.PromptRefusal: "Attach your notes first."})

	events := ask(t, chat, session.ID, "What is mitosis?")

	assert.Equal(t, "Attach your notes first.", answerText(events))
}

// ==================== Provider selection ====================

func TestChatService_Answer_ProviderPrecedence(t *testing.T) {
	h := newHarness(t)
	openai := newMockProvider(domain.AIProviderOpenAI)
	anthropic := newMockProvider(domain.AIProviderAnthropic)
	h.providers.Register(openai)
	h.providers.Register(anthropic)
	h.ollama.streams("from ollama")
	openai.streams("from openai")
	anthropic.streams("from anthropic")
	ctx := context.Background()

	plain := h.session(t, driving.CreateSessionRequest{})
	pinned := h.session(t, driving.CreateSessionRequest{Provider: domain.AIProviderAnthropic})
	chat := h.chat(ChatConfig{DefaultProvider: domain.AIProviderOllama})

	tests := []struct {
		name      string
		sessionID string
		provider  domain.AIProvider
		want      string
	}{
		{"configured default", plain.ID, "", "from ollama"},
		{"session default", pinned.ID, "", "from anthropic"},
		{"request override", pinned.ID, domain.AIProviderOpenAI, "from openai"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, err := chat.Answer(ctx, driving.AnswerRequest{
				SessionID: tt.sessionID,
				Question:  "hello?",
				Provider:  tt.provider,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, answerText(collect(t, stream)))
		})
	}

	turns := h.turns(t, pinned.ID)
	require.Len(t, turns, 2)
	assert.Equal(t, domain.AIProviderAnthropic, turns[0].Provider)
	assert.Equal(t, domain.AIProviderOpenAI, turns[1].Provider)
}

func TestChatService_Answer_UnconfiguredProviderIsNotReplaced(t *testing.T) {
	h := newHarness(t)
	h.ollama.streams("should not be used")
	session := h.session(t, driving.CreateSessionRequest{Provider: domain.AIProviderOpenAI})

	events := ask(t, h.chat(ChatConfig{}), session.ID, "hello?")

	require.Len(t, events, 1)
	assert.Equal(t, domain.EventError, events[0].Type)
	assert.ErrorIs(t, events[0].Err, domain.ErrProviderUnavailable)
	assert.Contains(t, events[0].Error, "openai")
	h.ollama.AssertNotCalled(t, "GenerateStream", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.turns(t, session.ID))
}

// ==================== Failures ====================

func TestChatService_Answer_ProviderError(t *testing.T) {
	h := newHarness(t)
	h.ollama.On("GenerateStream", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			onDelta := args.Get(2).(func(string) error)
			_ = onDelta("partial ")
		}).
		Return(errors.New("connection reset by peer"))
	session := h.session(t, driving.CreateSessionRequest{})

	events := ask(t, h.chat(ChatConfig{}), session.ID, "hello?")

	assert.Equal(t, []domain.StreamEventType{domain.EventContentDelta, domain.EventError}, eventTypes(events))
	last := lastEvent(t, events)
	assert.ErrorIs(t, last.Err, domain.ErrProviderUnavailable)
	assert.ErrorContains(t, last.Err, "connection reset by peer")
	assert.Equal(t, "provider unavailable: ollama", last.Error)
	assert.Empty(t, h.turns(t, session.ID))
}

func TestChatService_Answer_ProviderTimeout(t *testing.T) {
	h := newHarness(t)
	h.ollama.On("GenerateStream", mock.Anything, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, _ driven.GenerateRequest, _ func(string) error) error {
			<-ctx.Done()
			return ctx.Err()
		})
	session := h.session(t, driving.CreateSessionRequest{})

	events := ask(t, h.chat(ChatConfig{Timeout: 20 * time.Millisecond}), session.ID, "hello?")

	require.Len(t, events, 1)
	assert.Equal(t, domain.EventError, events[0].Type)
	assert.ErrorIs(t, events[0].Err, domain.ErrProviderUnavailable)
	assert.Equal(t, "provider unavailable: ollama: request timed out", events[0].Error)
	assert.Empty(t, h.turns(t, session.ID))
}

func TestChatService_Answer_EmbeddingFailure(t *testing.T) {
	h := newHarness(t)
	doc := h.indexed(t, "biology.txt", biologyNotes)
	session := h.session(t, driving.CreateSessionRequest{DocumentIDs: []string{doc.ID}})

	chat := NewChatService(ChatDeps{
		Gate:      h.gate,
		Documents: h.docs,
		Messages:  h.messages,
		Embedder:  &flakyEmbedder{EmbeddingService: h.embedder, failures: 100},
		Index:     h.index,
		Providers: h.providers,
	}, ChatConfig{})

	events := ask(t, chat, session.ID, "What is photosynthesis?")

	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, domain.ErrEmbeddingBackend)
	assert.Equal(t, userMessage(events[0].Err, ""), events[0].Error)
	h.ollama.AssertNotCalled(t, "GenerateStream", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.turns(t, session.ID))
}

func TestChatService_Answer_CancelMidStream(t *testing.T) {
	h := newHarness(t)
	h.ollama.On("GenerateStream", mock.Anything, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, _ driven.GenerateRequest, onDelta func(string) error) error {
			if err := onDelta("first "); err != nil {
				return err
			}
			<-ctx.Done()
			return ctx.Err()
		})
	session := h.session(t, driving.CreateSessionRequest{})

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := h.chat(ChatConfig{}).Answer(ctx, driving.AnswerRequest{SessionID: session.ID, Question: "hello?"})
	require.NoError(t, err)

	first := <-stream
	assert.Equal(t, domain.EventContentDelta, first.Type)
	cancel()

	for _, ev := range collect(t, stream) {
		assert.NotEqual(t, domain.EventDone, ev.Type)
		assert.NotEqual(t, domain.EventSourceList, ev.Type)
	}
	assert.Empty(t, h.turns(t, session.ID))
}

func TestChatService_Answer_PersistsOncePerTurn(t *testing.T) {
	h := newHarness(t)
	h.ollama.streams("answer")
	session := h.session(t, driving.CreateSessionRequest{})
	chat := NewChatService(ChatDeps{
		Gate:      h.gate,
		Documents: h.docs,
		Messages:  h.messages,
		Embedder:  h.embedder,
		Index:     h.index,
		Providers: h.providers,
		Counter:   wordCounter{},
	}, ChatConfig{})

	var ids []string
	for i := range 3 {
		events := ask(t, chat, session.ID, fmt.Sprintf("question %d?", i))
		ids = append(ids, lastEvent(t, events).MessageID)
	}

	turns := h.turns(t, session.ID)
	require.Len(t, turns, 3)
	for i, turn := range turns {
		assert.Equal(t, ids[i], turn.ID)
		assert.Equal(t, fmt.Sprintf("question %d?", i), turn.Question)
		assert.Positive(t, turn.TokenCount)
	}
	assert.Len(t, map[string]bool{ids[0]: true, ids[1]: true, ids[2]: true}, 3)
}

// ==================== Helpers ====================

func TestNewChatService_Defaults(t *testing.T) {
	chat := NewChatService(ChatDeps{}, ChatConfig{TopK: 50, EmptyScopePolicy: "search_all"})

	assert.Equal(t, domain.MaxTopK, chat.cfg.TopK)
	assert.Equal(t, domain.EmptyScopeUngrounded, chat.cfg.EmptyScopePolicy)
	assert.Equal(t, domain.AIProviderOllama, chat.cfg.DefaultProvider)

	chat = NewChatService(ChatDeps{}, ChatConfig{})
	assert.Equal(t, domain.DefaultTopK, chat.cfg.TopK)
}

func TestPassageLabel(t *testing.T) {
	assert.Equal(t, "[1] notes.pdf (page 1)", passageLabel(1, "notes.pdf", "page 1"))
	assert.Equal(t, "[2] notes.txt", passageLabel(2, "notes.txt", ""))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "request cancelled", userMessage(context.Canceled, ""))
	assert.Equal(t, "internal error: boom", userMessage(errors.New("boom"), ""))
	assert.Equal(t, domain.ErrSessionNotFound.Error(), userMessage(fmt.Errorf("x: %w", domain.ErrSessionNotFound), ""))
}

func TestUserMessage_ProviderDetailStaysInLog(t *testing.T) {
	body := errors.New(`401 {"error":{"message":"Incorrect API key provided: sk-abc123"}}`)
	err := fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, domain.AIProviderOpenAI, body)

	msg := userMessage(err, domain.AIProviderOpenAI)

	assert.Equal(t, "provider unavailable: openai", msg)
	assert.NotContains(t, msg, "sk-abc123")
}

// slowMessages delays every append.
type slowMessages struct {
	driven.MessageStore
	delay time.Duration
}

func (m *slowMessages) Append(ctx context.Context, msg *domain.ChatMessage) (bool, error) {
	time.Sleep(m.delay)
	return m.MessageStore.Append(ctx, msg)
}

func TestChatService_Close_WaitsForStoredTurn(t *testing.T) {
	h := newHarness(t)
	h.ollama.streams("ok")
	session := h.session(t, driving.CreateSessionRequest{})
	chat := NewChatService(ChatDeps{
		Gate:      h.gate,
		Documents: h.docs,
		Messages:  &slowMessages{MessageStore: h.messages, delay: 50 * time.Millisecond},
		Embedder:  h.embedder,
		Index:     h.index,
		Providers: h.providers,
	}, ChatConfig{})

	stream, err := chat.Answer(context.Background(), driving.AnswerRequest{SessionID: session.ID, Question: "hello?"})
	require.NoError(t, err)
	for ev := range stream {
		if ev.Type == domain.EventDone {
			break
		}
	}

	require.NoError(t, chat.Close())
	assert.Len(t, h.turns(t, session.ID), 1)
}
