package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/custodia-labs/studybuddy/internal/adapters/driven/ai"
	"github.com/custodia-labs/studybuddy/internal/adapters/driven/config/file"
	"github.com/custodia-labs/studybuddy/internal/adapters/driven/storage/filesystem"
	"github.com/custodia-labs/studybuddy/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/studybuddy/internal/adapters/driven/storage/pgvector"
	"github.com/custodia-labs/studybuddy/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/studybuddy/internal/adapters/driven/tokens/tiktoken"
	"github.com/custodia-labs/studybuddy/internal/adapters/driving/cli"
	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
	"github.com/custodia-labs/studybuddy/internal/core/services"
	"github.com/custodia-labs/studybuddy/internal/logger"
	"github.com/custodia-labs/studybuddy/internal/normalisers"
	"github.com/custodia-labs/studybuddy/internal/postprocessors"
)

// stores groups the persistence ports chosen by the vector backend.
type stores struct {
	documents driven.DocumentStore
	sessions  driven.SessionStore
	messages  driven.MessageStore
	blobs     driven.BlobStore
	index     driven.VectorIndex
	lock      driven.ProcessLock
	closers   []func() error
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("close store: %v", err)
		}
	}
}

// bootstrap builds every service from settings. Document processing starts
// only for commands that ask for it.
func bootstrap(ctx context.Context, opts cli.BootstrapOptions) (cli.Services, func(), error) {
	configStore, err := openConfig(opts.ConfigPath)
	if err != nil {
		return cli.Services{}, nil, err
	}

	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())
	settings, err := settingsService.Get()
	if err != nil {
		return cli.Services{}, nil, fmt.Errorf("load settings: %w", err)
	}

	st, err := openStores(ctx, &settings.Storage)
	if err != nil {
		return cli.Services{}, nil, err
	}

	normaliserRegistry := normalisers.NewRegistry()
	normalisers.RegisterDefaults(normaliserRegistry)

	processorRegistry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(processorRegistry)
	pipeline, err := processorRegistry.BuildPipeline(settingsService.GetPipelineConfig())
	if err != nil {
		st.close()
		return cli.Services{}, nil, fmt.Errorf("build pipeline: %w", err)
	}

	aiServices, err := ai.Init(settings)
	if err != nil {
		st.close()
		return cli.Services{}, nil, err
	}
	for _, w := range aiServices.Warnings {
		logger.Warn("%s", w)
	}

	generation := settings.Generation
	providers := services.NewProviderRegistry(func(p domain.AIProvider) (driven.GenerationProvider, error) {
		return ai.CreateGenerationProvider(p, &generation)
	})
	for _, p := range aiServices.Providers {
		providers.Register(p)
	}

	lifecycle := services.NewLifecycleService(services.LifecycleDeps{
		Documents:  st.documents,
		Blobs:      st.blobs,
		Sessions:   st.sessions,
		Normaliser: normaliserRegistry,
		Pipeline:   pipeline,
		Embedder:   aiServices.EmbeddingService,
		Index:      st.index,
		Lock:       st.lock,
	}, services.LifecycleConfig{
		MaxFileSize:  settings.Processing.MaxFileSize,
		Workers:      settings.Processing.Workers,
		EmbedRetries: 1,
		RetryDelay:   time.Second,
	}, services.NewBroker())

	if opts.Process {
		startProcessing(ctx, lifecycle)
	}

	sessionService := services.NewSessionService(st.sessions, st.messages, st.documents)

	chatService := services.NewChatService(services.ChatDeps{
		Gate:      sessionService,
		Documents: st.documents,
		Messages:  st.messages,
		Embedder:  aiServices.EmbeddingService,
		Index:     st.index,
		Providers: providers,
		Counter:   tokenCounter(),
	}, services.ChatConfigFrom(settings))

	if prompts, err := file.NewPromptStore(promptDir(opts.ConfigPath)); err != nil {
		logger.Warn("prompt store: %v", err)
	} else {
		chatService.SetPromptStore(prompts)
	}

	release := func() {
		if err := chatService.Close(); err != nil {
			logger.Warn("finish answers: %v", err)
		}
		if err := lifecycle.Close(); err != nil {
			logger.Warn("stop processing: %v", err)
		}
		if err := providers.Close(); err != nil {
			logger.Warn("close providers: %v", err)
		}
		if err := aiServices.EmbeddingService.Close(); err != nil {
			logger.Warn("close embedding service: %v", err)
		}
		st.close()
	}

	return cli.Services{
		Documents: lifecycle,
		Sessions:  sessionService,
		Chat:      chatService,
		Settings:  settingsService,
	}, release, nil
}

// startProcessing resumes interrupted documents and starts the workers.
// Recovery is skipped while another process is writing documents; workers
// still start, holding the lock shared while they write.
func startProcessing(ctx context.Context, lifecycle *services.LifecycleService) {
	report, err := lifecycle.Recover(ctx)
	switch {
	case errors.Is(err, domain.ErrProcessingLocked):
		logger.Info("another studybuddy process is writing documents, skipping recovery")
	case err != nil:
		logger.Warn("recover documents: %v", err)
	case len(report.Failed)+len(report.Requeued) > 0:
		logger.Info("recovered documents: %d failed, %d requeued", len(report.Failed), len(report.Requeued))
	}

	// Interrupting the command interrupts processing; Recover resumes it next run.
	lifecycle.Start(ctx)
}

func openConfig(configPath string) (*file.ConfigStore, error) {
	if configPath != "" {
		return file.NewConfigStoreAt(configPath)
	}
	return file.NewConfigStore("")
}

// promptDir keeps prompt overrides next to an explicit config file.
func promptDir(configPath string) string {
	if configPath == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(configPath), "prompts")
}

// openStores opens the stores for the configured vector backend.
// The memory backend keeps everything in memory for a throwaway run.
func openStores(ctx context.Context, cfg *domain.StorageSettings) (*stores, error) {
	if cfg.VectorBackend == domain.VectorBackendMemory {
		documents := memory.NewDocumentStore()
		sessions := memory.NewSessionStore(memory.WithDocuments(documents))
		logger.Warn("memory backend: nothing is saved when studybuddy exits")
		return &stores{
			documents: documents,
			sessions:  sessions,
			messages:  memory.NewMessageStore(sessions),
			blobs:     memory.NewBlobStore(),
			index:     memory.NewVectorIndex(),
		}, nil
	}

	db, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	st := &stores{
		documents: db.DocumentStore(),
		sessions:  db.SessionStore(),
		messages:  db.MessageStore(),
		index:     db.VectorIndex(),
		lock:      filesystem.NewProcessLock(filepath.Join(filepath.Dir(db.Path()), filesystem.LockFile)),
		closers:   []func() error{db.Close},
	}

	uploads := ""
	if cfg.DataDir != "" {
		uploads = filepath.Join(cfg.DataDir, "uploads")
	}
	blobs, err := filesystem.NewBlobStore(uploads)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("open upload directory: %w", err)
	}
	st.blobs = blobs

	if cfg.VectorBackend == domain.VectorBackendPgvector {
		if cfg.PostgresDSN == "" {
			st.close()
			return nil, errors.New("vector backend pgvector requires a postgres dsn")
		}
		index, err := pgvector.New(ctx, pgvector.Config{DSN: cfg.PostgresDSN})
		if err != nil {
			st.close()
			return nil, fmt.Errorf("open pgvector index: %w", err)
		}
		st.index = index
		st.closers = append(st.closers, index.Close)
	}

	return st, nil
}

// tokenCounter loads the tiktoken encoding, estimating when it is unavailable.
func tokenCounter() *tiktoken.Counter {
	counter, err := tiktoken.New(tiktoken.DefaultEncoding)
	if err != nil {
		logger.Debug("token counting falls back to an estimate: %v", err)
		return tiktoken.NewEstimator()
	}
	return counter
}
