package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driving"
	"github.com/custodia-labs/studybuddy/internal/logger"
)

// Ensure LifecycleService implements the interface.
var _ driving.DocumentService = (*LifecycleService)(nil)

// embedBatchSize is the number of passages sent in one EmbedBatch call.
const embedBatchSize = 32

// reasonInterrupted is recorded on documents Recover finds mid-write.
const reasonInterrupted = "processing interrupted"

// LifecycleConfig controls upload limits and background processing.
type LifecycleConfig struct {
	// MaxFileSize is the upload limit in bytes. Zero uses the default.
	MaxFileSize int64

	// Workers is the number of documents processed concurrently.
	Workers int

	// EmbedRetries is how often a failed embedding batch is retried.
	EmbedRetries int

	// RetryDelay is the pause before an embedding retry.
	RetryDelay time.Duration

	// RecheckInterval is how often WaitForState re-reads the store, which
	// catches documents processed by another process sharing it.
	RecheckInterval time.Duration
}

// DefaultLifecycleConfig returns the configuration used when settings are absent.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		MaxFileSize:     domain.DefaultMaxFileSize,
		Workers:         domain.DefaultWorkers,
		EmbedRetries:    1,
		RetryDelay:      time.Second,
		RecheckInterval: 2 * time.Second,
	}
}

// LifecycleDeps groups the ports the lifecycle manager drives.
type LifecycleDeps struct {
	Documents  driven.DocumentStore
	Blobs      driven.BlobStore
	Sessions   driven.SessionStore
	Normaliser driven.NormaliserRegistry
	Pipeline   driven.PostProcessorPipeline
	Embedder   driven.EmbeddingService
	Index      driven.VectorIndex

	// Lock is optional. With it, the lock is held shared while documents
	// are mid-write, and the recovery sweep runs only when it can take the
	// lock exclusively, so no live process has a document swept.
	Lock driven.ProcessLock
}

// LifecycleService owns uploaded documents and moves them through
// PENDING -> PROCESSING -> INDEXED, or to ERROR, on a pool of workers.
type LifecycleService struct {
	deps   LifecycleDeps
	cfg    LifecycleConfig
	broker *Broker

	mu      sync.Mutex
	running bool
	closed  bool
	queue   []string
	queued  map[string]struct{}
	notify  chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// claimMu guards claims and serialises the sweep against new claims.
	claimMu sync.Mutex
	claims  int
}

// NewLifecycleService creates a lifecycle manager. Call Start to begin processing.
func NewLifecycleService(deps LifecycleDeps, cfg LifecycleConfig, broker *Broker) *LifecycleService {
	defaults := DefaultLifecycleConfig()
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaults.MaxFileSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.EmbedRetries < 0 {
		cfg.EmbedRetries = 0
	}
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = defaults.RecheckInterval
	}
	if broker == nil {
		broker = NewBroker()
	}

	return &LifecycleService{
		deps:   deps,
		cfg:    cfg,
		broker: broker,
		queued: make(map[string]struct{}),
		notify: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// Start launches the worker pool. Workers use ctx for processing; cancelling
// it interrupts in-flight documents, which Recover fails on next start-up.
func (s *LifecycleService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.closed {
		return
	}
	s.running = true

	for i := range s.cfg.Workers {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	logger.Debug("lifecycle: started %d workers", s.cfg.Workers)
}

// Close stops accepting uploads and waits for in-flight documents.
// Queued documents stay PENDING and are picked up by the next Recover.
func (s *LifecycleService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.broker.Close()
	return nil
}

// ==================== Upload ====================

// Upload stores a file and queues it for processing.
func (s *LifecycleService) Upload(ctx context.Context, filename string, data []byte) (*domain.Document, error) {
	if s.isClosed() {
		return nil, domain.ErrClosed
	}
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}

	fileType, err := domain.DetectFileType(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, filename)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrEmptyContent, filename)
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d",
			domain.ErrFileTooLarge, filename, len(data), s.cfg.MaxFileSize)
	}

	ref, err := s.deps.Blobs.Store(ctx, data, fileType.Extension())
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	now := time.Now()
	doc := &domain.Document{
		ID:               uuid.New().String(),
		OriginalFilename: filename,
		FileType:         fileType,
		Size:             int64(len(data)),
		BlobRef:          ref,
		State:            domain.StatePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.deps.Documents.Save(ctx, doc); err != nil {
		_ = s.deps.Blobs.Delete(context.WithoutCancel(ctx), ref)
		return nil, fmt.Errorf("save document: %w", err)
	}

	logger.Info("uploaded %s as %s (%d bytes)", filename, doc.ID, doc.Size)
	s.publish(doc)
	s.enqueue(doc.ID)
	return doc, nil
}

// ==================== Queries ====================

// Get retrieves a document by ID.
func (s *LifecycleService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := s.deps.Documents.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", documentID, err)
	}
	return doc, nil
}

// List returns all documents, newest first.
func (s *LifecycleService) List(ctx context.Context) ([]domain.Document, error) {
	return s.deps.Documents.List(ctx)
}

// ==================== Delete ====================

// Delete removes a document and everything derived from it.
// Sessions lose the binding first so no answer can retrieve the document
// while its passages are being removed.
func (s *LifecycleService) Delete(ctx context.Context, documentID string) error {
	doc, err := s.deps.Documents.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("get document %s: %w", documentID, err)
	}

	if err := s.deps.Sessions.UnbindDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("unbind document: %w", err)
	}
	if err := s.deps.Index.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete passages: %w", err)
	}
	if err := s.deps.Blobs.Delete(ctx, doc.BlobRef); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if err := s.deps.Documents.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.dequeue(doc.ID)
	logger.Info("deleted document %s (%s)", doc.ID, doc.OriginalFilename)
	return nil
}

// ==================== Subscriptions ====================

// Subscribe delivers state changes of a document, or of all documents
// when documentID is empty.
func (s *LifecycleService) Subscribe(documentID string) (<-chan domain.DocumentEvent, func()) {
	return s.broker.Subscribe(documentID)
}

// WaitForState blocks until the document is INDEXED or ERROR.
func (s *LifecycleService) WaitForState(ctx context.Context, documentID string) (*domain.Document, error) {
	events, cancel := s.broker.Subscribe(documentID)
	defer cancel()

	// Subscribe before reading so a transition in between is not missed.
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.State.IsTerminal() {
		return doc, nil
	}

	recheck := time.NewTicker(s.cfg.RecheckInterval)
	defer recheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-recheck.C:
			doc, err := s.Get(ctx, documentID)
			if err != nil {
				return nil, err
			}
			if doc.State.IsTerminal() {
				return doc, nil
			}
		case ev, ok := <-events:
			if !ok {
				return nil, domain.ErrClosed
			}
			if ev.State.IsTerminal() {
				return s.Get(ctx, documentID)
			}
		}
	}
}

// ==================== Recovery ====================

// Recover repairs state left behind by an interrupted run. Documents caught
// mid-write lose their partial passages and fail; pending documents had
// nothing written and are queued again.
//
// The sweep needs every document PROCESSING to be abandoned, so it returns
// ErrProcessingLocked while this service or, with a Lock, any other live
// process is writing one.
func (s *LifecycleService) Recover(ctx context.Context) (*driving.RecoveryReport, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	if s.claims > 0 {
		return nil, domain.ErrProcessingLocked
	}
	if s.deps.Lock != nil {
		owned, err := s.deps.Lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("take processing lock: %w", err)
		}
		if !owned {
			return nil, domain.ErrProcessingLocked
		}
		defer func() {
			if err := s.deps.Lock.Unlock(); err != nil {
				logger.Warn("release processing lock: %v", err)
			}
		}()
	}

	logger.Section("Recovery")
	report := &driving.RecoveryReport{}

	processing, err := s.deps.Documents.ListByState(ctx, domain.StateProcessing)
	if err != nil {
		return nil, fmt.Errorf("list processing documents: %w", err)
	}
	for i := range processing {
		doc := &processing[i]
		if err := s.deps.Index.Delete(ctx, doc.ID); err != nil {
			return report, fmt.Errorf("delete partial passages of %s: %w", doc.ID, err)
		}
		updated, err := s.deps.Documents.UpdateState(ctx, domain.StateChange{
			DocumentID: doc.ID,
			From:       domain.StateProcessing,
			To:         domain.StateError,
			Reason:     reasonInterrupted,
		})
		if errors.Is(err, domain.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return report, fmt.Errorf("fail interrupted document %s: %w", doc.ID, err)
		}
		s.publish(updated)
		report.Failed = append(report.Failed, doc.ID)
		logger.Warn("document %s (%s) was interrupted mid-write", doc.ID, doc.OriginalFilename)
	}

	pending, err := s.deps.Documents.ListByState(ctx, domain.StatePending)
	if err != nil {
		return report, fmt.Errorf("list pending documents: %w", err)
	}
	for _, doc := range pending {
		if s.enqueue(doc.ID) {
			report.Requeued = append(report.Requeued, doc.ID)
		}
	}

	logger.Info("recovery: %d failed, %d requeued", len(report.Failed), len(report.Requeued))
	return report, nil
}

// ==================== Work queue ====================

func (s *LifecycleService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// enqueue adds a document to the work queue unless it is already queued.
func (s *LifecycleService) enqueue(id string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if _, ok := s.queued[id]; ok {
		s.mu.Unlock()
		return false
	}
	s.queued[id] = struct{}{}
	s.queue = append(s.queue, id)
	s.mu.Unlock()

	s.signal()
	return true
}

func (s *LifecycleService) dequeue(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, queued := range s.queue {
		if queued == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			delete(s.queued, id)
			return
		}
	}
}

func (s *LifecycleService) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// next pops the oldest queued document.
func (s *LifecycleService) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	if len(s.queue) > 0 {
		s.signal()
	}
	return id, true
}

func (s *LifecycleService) done(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queued, id)
}

func (s *LifecycleService) worker(ctx context.Context, n int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		id, ok := s.next()
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}

		logger.Debug("lifecycle: worker %d processing %s", n, id)
		s.process(ctx, id)
		s.done(id)
	}
}

// ==================== Processing ====================

// process runs one document through extraction, chunking, embedding and
// indexing. Everything up to embedding happens while the document is
// PENDING; only the index write happens in PROCESSING.
func (s *LifecycleService) process(ctx context.Context, id string) {
	doc, err := s.deps.Documents.Get(ctx, id)
	if err != nil {
		logger.Debug("lifecycle: skip %s: %v", id, err)
		return
	}
	if doc.State != domain.StatePending {
		logger.Debug("lifecycle: skip %s in state %s", id, doc.State)
		return
	}

	start := time.Now()
	passages, metadata, err := s.prepare(ctx, doc)
	if err != nil {
		s.fail(ctx, doc, domain.StatePending, err)
		return
	}

	if err := s.claim(ctx); err != nil {
		s.fail(ctx, doc, domain.StatePending, err)
		return
	}
	defer s.unclaim()

	if _, err := s.transition(ctx, domain.StateChange{
		DocumentID: doc.ID,
		From:       domain.StatePending,
		To:         domain.StateProcessing,
	}); err != nil {
		logger.Warn("document %s: %v", doc.ID, err)
		return
	}

	if err := s.deps.Index.Upsert(ctx, doc.ID, passages); err != nil {
		s.discardPassages(ctx, doc.ID)
		s.fail(ctx, doc, domain.StateProcessing, fmt.Errorf("write passages: %w", err))
		return
	}

	indexed, err := s.transition(ctx, domain.StateChange{
		DocumentID: doc.ID,
		From:       domain.StateProcessing,
		To:         domain.StateIndexed,
		ChunkCount: len(passages),
		Metadata:   metadata,
	})
	if err != nil {
		// Deleted while we were writing.
		s.discardPassages(ctx, doc.ID)
		logger.Warn("document %s: %v", doc.ID, err)
		return
	}

	logger.Info("indexed %s (%s): %d passages in %s",
		indexed.ID, indexed.OriginalFilename, indexed.ChunkCount, time.Since(start).Round(time.Millisecond))
}

// claim registers a document about to go PROCESSING. The first claim takes
// the lock shared; it waits out a sweep running in another process.
func (s *LifecycleService) claim(ctx context.Context) error {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	if s.claims == 0 && s.deps.Lock != nil {
		if err := s.deps.Lock.Share(ctx); err != nil {
			return fmt.Errorf("share processing lock: %w", err)
		}
	}
	s.claims++
	return nil
}

// unclaim releases a claim once its document has left PROCESSING.
func (s *LifecycleService) unclaim() {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	s.claims--
	if s.claims == 0 && s.deps.Lock != nil {
		if err := s.deps.Lock.Unlock(); err != nil {
			logger.Warn("release processing lock: %v", err)
		}
	}
}

// prepare extracts, chunks and embeds a document.
func (s *LifecycleService) prepare(ctx context.Context, doc *domain.Document) ([]domain.Passage, map[string]string, error) {
	data, err := s.deps.Blobs.Retrieve(ctx, doc.BlobRef)
	if err != nil {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}

	result, err := s.deps.Normaliser.Normalise(ctx, doc.FileType, data)
	if err != nil {
		return nil, nil, err
	}

	passages, err := s.deps.Pipeline.Process(ctx, doc, result.Segments)
	if err != nil {
		return nil, nil, err
	}
	if len(passages) == 0 {
		return nil, nil, fmt.Errorf("%w: no extractable text", domain.ErrEmptyContent)
	}

	texts := make([]string, len(passages))
	for i := range passages {
		texts[i] = passages[i].Content
	}
	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return nil, nil, err
	}
	for i := range passages {
		passages[i].Embedding = vectors[i]
	}

	return passages, result.Metadata, nil
}

// embed embeds texts in batches, retrying each failed batch a bounded
// number of times.
func (s *LifecycleService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += embedBatchSize {
		batch := texts[start:min(start+embedBatchSize, len(texts))]

		var (
			out [][]float32
			err error
		)
		for attempt := 0; attempt <= s.cfg.EmbedRetries; attempt++ {
			if attempt > 0 {
				logger.Warn("embedding batch failed, retrying: %v", err)
				if werr := sleepCtx(ctx, s.cfg.RetryDelay); werr != nil {
					return nil, werr
				}
			}
			out, err = s.deps.Embedder.EmbedBatch(ctx, batch)
			if err == nil || ctx.Err() != nil {
				break
			}
		}
		if err != nil {
			if !errors.Is(err, domain.ErrEmbeddingBackend) && ctx.Err() == nil {
				err = fmt.Errorf("%w: %w", domain.ErrEmbeddingBackend, err)
			}
			return nil, err
		}
		if len(out) != len(batch) {
			return nil, fmt.Errorf("%w: got %d vectors for %d passages",
				domain.ErrEmbeddingBackend, len(out), len(batch))
		}
		vectors = append(vectors, out...)
	}

	return vectors, nil
}

// transition applies a state change and publishes it.
func (s *LifecycleService) transition(ctx context.Context, change domain.StateChange) (*domain.Document, error) {
	doc, err := s.deps.Documents.UpdateState(ctx, change)
	if err != nil {
		return nil, fmt.Errorf("%s -> %s: %w", change.From, change.To, err)
	}
	s.publish(doc)
	return doc, nil
}

// fail moves a document to ERROR. Interrupted work is left for Recover.
func (s *LifecycleService) fail(ctx context.Context, doc *domain.Document, from domain.DocumentState, cause error) {
	if ctx.Err() != nil {
		logger.Warn("document %s: processing interrupted: %v", doc.ID, cause)
		return
	}

	reason := cause.Error()
	if _, err := s.transition(ctx, domain.StateChange{
		DocumentID: doc.ID,
		From:       from,
		To:         domain.StateError,
		Reason:     reason,
	}); err != nil {
		logger.Warn("document %s: record failure %q: %v", doc.ID, reason, err)
		return
	}
	logger.Warn("document %s (%s) failed: %s", doc.ID, doc.OriginalFilename, reason)
}

func (s *LifecycleService) discardPassages(ctx context.Context, id string) {
	if err := s.deps.Index.Delete(context.WithoutCancel(ctx), id); err != nil {
		logger.Error("document %s: discard passages: %v", id, err)
	}
}

func (s *LifecycleService) publish(doc *domain.Document) {
	s.broker.Publish(domain.DocumentEvent{
		DocumentID: doc.ID,
		State:      doc.State,
		Reason:     doc.ErrorReason,
		At:         doc.UpdatedAt,
	})
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
