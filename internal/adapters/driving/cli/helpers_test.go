package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/studybuddy/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/studybuddy/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/studybuddy/internal/core/domain"
	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
	"github.com/custodia-labs/studybuddy/internal/core/services"
	"github.com/custodia-labs/studybuddy/internal/logger"
	"github.com/custodia-labs/studybuddy/internal/normalisers"
	"github.com/custodia-labs/studybuddy/internal/normalisers/plaintext"
	"github.com/custodia-labs/studybuddy/internal/postprocessors"
	"github.com/custodia-labs/studybuddy/internal/postprocessors/chunker"
	"github.com/custodia-labs/studybuddy/internal/postprocessors/cleaner"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// echoProvider answers with a fixed text in two deltas.
type echoProvider struct {
	answer string
}

func (p *echoProvider) Provider() domain.AIProvider { return domain.AIProviderOllama }
func (p *echoProvider) ModelName() string           { return "echo" }
func (p *echoProvider) Ping(context.Context) error  { return nil }
func (p *echoProvider) Close() error                { return nil }

func (p *echoProvider) GenerateStream(_ context.Context, _ driven.GenerateRequest, onDelta func(string) error) error {
	half := len(p.answer) / 2
	if err := onDelta(p.answer[:half]); err != nil {
		return err
	}
	return onDelta(p.answer[half:])
}

// testServices holds the real services the commands are wired to.
type testServices struct {
	documents *services.LifecycleService
	sessions  *services.SessionService
	chat      *services.ChatService
	settings  *services.SettingsService
}

// setupTestServices wires every command to services over in-memory stores.
func setupTestServices(t *testing.T) *testServices {
	t.Helper()
	t.Setenv(services.EnvOpenAIKey, "")
	t.Setenv(services.EnvAnthropicKey, "")

	registry := normalisers.NewRegistry()
	registry.Register(plaintext.New())

	docs := memory.NewDocumentStore()
	sessions := memory.NewSessionStore(memory.WithDocuments(docs))
	messages := memory.NewMessageStore(sessions)
	index := memory.NewVectorIndex()
	embedder := hashing.NewEmbeddingService(128)

	lifecycle := services.NewLifecycleService(services.LifecycleDeps{
		Documents:  docs,
		Blobs:      memory.NewBlobStore(),
		Sessions:   sessions,
		Normaliser: registry,
		Pipeline:   postprocessors.NewPipeline(cleaner.New(), chunker.New(chunker.WithChunkSize(200), chunker.WithOverlap(40))),
		Embedder:   embedder,
		Index:      index,
	}, services.LifecycleConfig{Workers: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	lifecycle.Start(ctx)

	gate := services.NewSessionService(sessions, messages, docs)
	providers := services.NewProviderRegistry(nil)
	providers.Register(&echoProvider{answer: "Mitochondria make ATP."})

	chat := services.NewChatService(services.ChatDeps{
		Gate:      gate,
		Documents: docs,
		Messages:  messages,
		Embedder:  embedder,
		Index:     index,
		Providers: providers,
	}, services.ChatConfig{})

	env := &testServices{
		documents: lifecycle,
		sessions:  gate,
		chat:      chat,
		settings:  services.NewSettingsService(memory.NewConfigStore(), nil),
	}
	SetServices(Services{
		Documents: env.documents,
		Sessions:  env.sessions,
		Chat:      env.chat,
		Settings:  env.settings,
	})

	t.Cleanup(func() {
		_ = lifecycle.Close()
		cancel()
		SetServices(Services{})
	})
	return env
}

// indexed uploads text and waits until it is indexed.
func (e *testServices) indexed(t *testing.T, filename, text string) *domain.Document {
	t.Helper()

	doc, err := e.documents.Upload(context.Background(), filename, []byte(text))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	doc, err = e.documents.WaitForState(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateIndexed, doc.State, doc.ErrorReason)
	return doc
}

// runCommand executes the root command with args and returns its output.
func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
