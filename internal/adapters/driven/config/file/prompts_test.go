package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/studybuddy/internal/core/ports/driven"
)

func TestPromptStore_ImplementsInterface(t *testing.T) {
	var _ driven.PromptStore = (*PromptStore)(nil)
}

func TestNewPromptStore_WithCustomDir(t *testing.T) {
	dir := t.TempDir()

	store, err := NewPromptStore(dir)

	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())
}

func TestNewPromptStore_DefaultDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}

	store, err := NewPromptStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".studybuddy", "prompts"), store.Dir())
}

func TestPromptStore_Load_CreatesDefaultFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, err = store.Load(driven.PromptGroundedSystem)
	require.NoError(t, err)

	for _, f := range []string{"grounded_system.txt", "ungrounded_system.txt", "refusal.txt", "README.md"} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, "expected file %s to exist", f)
	}
}

func TestPromptStore_Load_ReturnsDefaultContent(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	grounded, err := store.Load(driven.PromptGroundedSystem)
	require.NoError(t, err)
	assert.Contains(t, grounded, "only the numbered passages")

	ungrounded, err := store.Load(driven.PromptUngroundedSystem)
	require.NoError(t, err)
	assert.Contains(t, ungrounded, "no grounding documents")

	refusal, err := store.Load(driven.PromptRefusal)
	require.NoError(t, err)
	assert.Contains(t, refusal, "no documents attached")
}

func TestPromptStore_Load_ReturnsCustomContent(t *testing.T) {
	dir := t.TempDir()
	custom := "Answer in French using the passages."
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grounded_system.txt"), []byte(custom+"\n\n"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptGroundedSystem)
	require.NoError(t, err)
	assert.Equal(t, custom, prompt)
}

func TestPromptStore_Load_FallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	_, _ = store.Load(driven.PromptRefusal)
	require.NoError(t, os.Remove(filepath.Join(dir, "refusal.txt")))
	store.Reload()

	prompt, err := store.Load(driven.PromptRefusal)
	require.NoError(t, err)
	assert.Equal(t, defaultPrompts[driven.PromptRefusal], prompt)
}

func TestPromptStore_Load_UnknownPrompt(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("nonexistent_prompt")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent_prompt")
}

func TestPromptStore_Reload_PicksUpEdits(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	first, err := store.Load(driven.PromptRefusal)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "refusal.txt"), []byte("No documents, no answer."), 0600))

	cached, err := store.Load(driven.PromptRefusal)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	store.Reload()
	fresh, err := store.Load(driven.PromptRefusal)
	require.NoError(t, err)
	assert.Equal(t, "No documents, no answer.", fresh)
}

func TestPromptStore_DoesNotOverwriteExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ungrounded_system.txt")
	require.NoError(t, os.WriteFile(path, []byte("mine"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)
	_, err = store.Load(driven.PromptGroundedSystem)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))
}

func TestPromptStore_Load_ConcurrentAccess(t *testing.T) {
	store, err := NewPromptStore(t.TempDir())
	require.NoError(t, err)

	names := []string{driven.PromptGroundedSystem, driven.PromptUngroundedSystem, driven.PromptRefusal}
	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			prompt, err := store.Load(name)
			assert.NoError(t, err)
			assert.NotEmpty(t, prompt)
		}(names[i%len(names)])
	}
	wg.Wait()
}

func TestPromptStore_Load_BlankFileUsesDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grounded_system.txt"), []byte(" \n\t\n"), 0600))

	store, err := NewPromptStore(dir)
	require.NoError(t, err)

	prompt, err := store.Load(driven.PromptGroundedSystem)
	require.NoError(t, err)
	assert.Equal(t, defaultPrompts[driven.PromptGroundedSystem], prompt)
}
