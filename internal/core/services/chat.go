package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driving"
	"github.com/custodia-labs/studybuddy/internal/logger"
)

// Ensure ChatService implements the interfaces.
var (
	_ driving.ChatService     = (*ChatService)(nil)
	_ driven.PromptStoreAware = (*ChatService)(nil)
)

// streamBuffer is the capacity of an answer stream.
const streamBuffer = 32

// GenerationProviders resolves a provider name to a provider.
type GenerationProviders interface {
	Get(name domain.AIProvider) (driven.GenerationProvider, error)
}

// ChatConfig holds the answer settings.
type ChatConfig struct {
	// TopK is the number of passages retrieved per question.
	TopK int

	// EmptyScopePolicy decides how sessions without documents are answered.
	EmptyScopePolicy domain.EmptyScopePolicy

	// DefaultProvider is used when neither the request nor the session names one.
	DefaultProvider domain.AIProvider

	// Temperature and MaxTokens are passed to the provider.
	Temperature float64
	MaxTokens   int

	// Timeout bounds one generation call. Zero means no bound.
	Timeout time.Duration
}

// ChatConfigFrom builds a ChatConfig from application settings.
func ChatConfigFrom(settings *domain.AppSettings) ChatConfig {
	return ChatConfig{
		TopK:             settings.Retrieval.TopK,
		EmptyScopePolicy: settings.Retrieval.EmptyScopePolicy,
		DefaultProvider:  settings.Generation.Default,
		Temperature:      settings.Generation.Temperature,
		MaxTokens:        settings.Generation.MaxTokens,
		Timeout:          settings.Generation.Timeout,
	}
}

// ChatDeps groups the ports the orchestrator drives.
type ChatDeps struct {
	// Gate resolves session scope. It is consulted on every turn.
	Gate      driving.SessionService
	Documents driven.DocumentStore
	Messages  driven.MessageStore
	Embedder  driven.EmbeddingService
	Index     driven.VectorIndex
	Providers GenerationProviders

	// Counter is optional. Without it turns are stored with a zero token count.
	Counter driven.TokenCounter
}

// ChatService answers questions from the documents bound to a session.
type ChatService struct {
	deps    ChatDeps
	cfg     ChatConfig
	prompts driven.PromptStore

	// turns tracks answers until they are persisted and their stream closed.
	turns sync.WaitGroup
}

// NewChatService creates the answer orchestrator.
func NewChatService(deps ChatDeps, cfg ChatConfig) *ChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = domain.DefaultTopK
	}
	cfg.TopK = min(cfg.TopK, domain.MaxTopK)
	if !cfg.EmptyScopePolicy.IsValid() {
		cfg.EmptyScopePolicy = domain.EmptyScopeUngrounded
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = domain.DefaultAppSettings().Generation.Default
	}
	return &ChatService{deps: deps, cfg: cfg}
}

// SetPromptStore sets the store for the system prompts and refusal text.
func (s *ChatService) SetPromptStore(store driven.PromptStore) {
	s.prompts = store
}

// turn is the state of one question while it is answered.
type turn struct {
	id        string
	session   *domain.ChatSession
	question  string
	provider  domain.AIProvider
	topK      int
	model     string
	system    string
	prompt    string
	answer    strings.Builder
	sources   []domain.SourceRef
	started   time.Time
	out       chan domain.StreamEvent
	callerCtx context.Context
}

// Answer validates the request and streams the answer on the returned channel.
func (s *ChatService) Answer(ctx context.Context, req driving.AnswerRequest) (<-chan domain.StreamEvent, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	if req.Provider != "" && !req.Provider.SupportsGeneration() {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, req.Provider)
	}

	session, err := s.deps.Gate.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	t := &turn{
		id:        uuid.New().String(),
		session:   session,
		question:  question,
		provider:  s.pickProvider(req.Provider, session.Provider),
		topK:      s.pickTopK(req.TopK),
		started:   time.Now(),
		out:       make(chan domain.StreamEvent, streamBuffer),
		callerCtx: ctx,
	}

	s.turns.Add(1)
	go func() {
		defer s.turns.Done()
		s.run(t)
	}()
	return t.out, nil
}

// Close waits for answers in flight, including storing turns whose done
// event has already been delivered. Callers must have stopped calling Answer.
func (s *ChatService) Close() error {
	s.turns.Wait()
	return nil
}

// pickProvider applies request, then session, then configured default.
func (s *ChatService) pickProvider(requested, session domain.AIProvider) domain.AIProvider {
	if requested != "" {
		return requested
	}
	if session != "" {
		return session
	}
	return s.cfg.DefaultProvider
}

// pickTopK clamps a per-question override, keeping the configured value for zero.
func (s *ChatService) pickTopK(requested int) int {
	if requested == 0 {
		return s.cfg.TopK
	}
	return min(max(requested, 1), domain.MaxTopK)
}

func (s *ChatService) run(t *turn) {
	defer close(t.out)
	ctx := t.callerCtx

	if err := s.answer(ctx, t); err != nil {
		s.emitError(t, err)
		return
	}

	if !s.emit(ctx, t, domain.StreamEvent{Type: domain.EventSourceList, Sources: t.sources}) {
		return
	}
	if ctx.Err() != nil {
		return
	}
	if !s.emit(ctx, t, domain.StreamEvent{Type: domain.EventDone, MessageID: t.id}) {
		return
	}

	// Delivered: the turn is complete even if the caller goes away now.
	s.persist(context.WithoutCancel(ctx), t)
}

// answer resolves scope, retrieves and generates. Deltas are emitted as
// they arrive; the source list and done are left to the caller.
func (s *ChatService) answer(ctx context.Context, t *turn) error {
	scope, err := s.deps.Gate.ResolveScope(ctx, t.session.ID)
	if err != nil {
		return err
	}

	if len(scope) == 0 {
		if s.cfg.EmptyScopePolicy == domain.EmptyScopeRefuse {
			return s.refuse(ctx, t)
		}
		t.system = loadPrompt(s.prompts, driven.PromptUngroundedSystem)
		t.prompt = ungroundedPrompt(t.question)
		t.sources = []domain.SourceRef{}
		return s.generate(ctx, t)
	}

	vector, err := s.deps.Embedder.Embed(ctx, t.question)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, domain.ErrEmbeddingBackend) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingBackend, err)
		}
		return err
	}

	hits, err := s.deps.Index.Search(ctx, vector, scope, t.topK)
	if err != nil {
		return fmt.Errorf("search passages: %w", err)
	}
	filenames := s.filenames(ctx, hits)

	t.system = loadPrompt(s.prompts, driven.PromptGroundedSystem)
	t.prompt = groundedPrompt(t.question, hits, filenames)
	t.sources = sourceRefs(hits, filenames)
	logger.Debug("session %s: %d passages from %d documents", t.session.ID, len(hits), len(scope))

	return s.generate(ctx, t)
}

// refuse answers with the fixed refusal text without calling a provider.
func (s *ChatService) refuse(ctx context.Context, t *turn) error {
	text := loadPrompt(s.prompts, driven.PromptRefusal)
	t.provider = ""
	t.sources = []domain.SourceRef{}
	t.answer.WriteString(text)
	if !s.emit(ctx, t, domain.StreamEvent{Type: domain.EventContentDelta, Delta: text}) {
		return ctx.Err()
	}
	return nil
}

// generate streams the provider's answer as content deltas.
func (s *ChatService) generate(ctx context.Context, t *turn) error {
	provider, err := s.deps.Providers.Get(t.provider)
	if err != nil {
		return err
	}
	t.model = provider.ModelName()

	genCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	req := driven.GenerateRequest{
		System:      t.system,
		Messages:    []driven.ChatMessage{{Role: "user", Content: t.prompt}},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}

	err = provider.GenerateStream(genCtx, req, func(delta string) error {
		if delta == "" {
			return nil
		}
		t.answer.WriteString(delta)
		if !s.emit(ctx, t, domain.StreamEvent{Type: domain.EventContentDelta, Delta: delta}) {
			return ctx.Err()
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, t.provider, errTimedOut)
		}
		return fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, t.provider, err)
	}
	return err
}

// filenames looks up the original filename of every document in hits.
func (s *ChatService) filenames(ctx context.Context, hits []domain.ScoredPassage) map[string]string {
	names := make(map[string]string)
	for _, hit := range hits {
		if _, ok := names[hit.DocumentID]; ok {
			continue
		}
		doc, err := s.deps.Documents.Get(ctx, hit.DocumentID)
		if err != nil {
			names[hit.DocumentID] = hit.DocumentID
			continue
		}
		names[hit.DocumentID] = doc.OriginalFilename
	}
	return names
}

// persist stores the completed turn. The turn id makes this idempotent.
func (s *ChatService) persist(ctx context.Context, t *turn) {
	msg := &domain.ChatMessage{
		ID:             t.id,
		SessionID:      t.session.ID,
		Question:       t.question,
		Answer:         t.answer.String(),
		Provider:       t.provider,
		Model:          t.model,
		ProcessingTime: time.Since(t.started),
		Sources:        t.sources,
		CreatedAt:      time.Now(),
	}
	if s.deps.Counter != nil {
		msg.TokenCount = s.deps.Counter.Count(t.system) +
			s.deps.Counter.Count(t.prompt) +
			s.deps.Counter.Count(msg.Answer)
	}

	inserted, err := s.deps.Messages.Append(ctx, msg)
	if err != nil {
		logger.Error("session %s: store turn %s: %v", t.session.ID, t.id, err)
		return
	}
	if inserted {
		logger.Info("session %s: answered in %s with %d sources",
			t.session.ID, msg.ProcessingTime.Round(time.Millisecond), len(msg.Sources))
	}
}

// emit sends an event unless the caller has gone away.
func (s *ChatService) emit(ctx context.Context, t *turn, ev domain.StreamEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case t.out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitError ends the stream with an error event. Once the caller's
// context is done the send is best effort, since nobody may be reading.
func (s *ChatService) emitError(t *turn, err error) {
	if errors.Is(err, context.Canceled) {
		logger.Debug("session %s: turn %s cancelled", t.session.ID, t.id)
	} else {
		logger.Warn("session %s: turn %s failed: %v", t.session.ID, t.id, err)
	}

	ev := domain.StreamEvent{Type: domain.EventError, Error: userMessage(err, t.provider), Err: err}
	if s.emit(t.callerCtx, t, ev) {
		return
	}
	select {
	case t.out <- ev:
	default:
	}
}

// errTimedOut marks a provider call cut off by the generation timeout.
var errTimedOut = errors.New("request timed out")

// userMessage turns an error into text that is safe to show the user.
// Provider failures name the provider only; their detail goes to the log.
func userMessage(err error, provider domain.AIProvider) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case errors.Is(err, errTimedOut):
		return fmt.Sprintf("%s: %s: %s", domain.ErrProviderUnavailable, provider, errTimedOut)
	case errors.Is(err, domain.ErrProviderUnavailable):
		return fmt.Sprintf("%s: %s", domain.ErrProviderUnavailable, provider)
	case errors.Is(err, domain.ErrEmbeddingBackend):
		return domain.ErrEmbeddingBackend.Error() + ": the question could not be embedded"
	case errors.Is(err, domain.ErrSessionNotFound):
		return domain.ErrSessionNotFound.Error()
	default:
		return "internal error: " + err.Error()
	}
}
