package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

func TestSessionCmd_HasSubcommands(t *testing.T) {
	commandNames := make([]string, 0)
	for _, cmd := range sessionCmd.Commands() {
		commandNames = append(commandNames, cmd.Name())
	}

	assert.ElementsMatch(t, []string{
		"create", "list", "show", "bind", "unbind", "replace",
		"rename", "provider", "delete", "messages",
	}, commandNames)
}

func TestSessionCmd_NotConfigured(t *testing.T) {
	SetServices(Services{})

	_, err := runCommand(t, "", "session", "list")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "session service not configured")
}

// createdID extracts the session ID from the create command output.
func createdID(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if id, ok := strings.CutPrefix(line, "Created session: "); ok {
			return strings.TrimSpace(id)
		}
	}
	t.Fatalf("no session id in output: %q", out)
	return ""
}

func TestSessionCreateCmd(t *testing.T) {
	env := setupTestServices(t)
	doc := env.indexed(t, "biology.txt", "Mitochondria are the powerhouse of the cell.")

	out, err := runCommand(t, "", "session", "create", "--title", "Biology", "--provider", "openai", doc.ID)

	require.NoError(t, err)
	assert.Contains(t, out, "Title:     Biology")
	assert.Contains(t, out, "Documents: 1")

	session, err := env.sessions.Get(context.Background(), createdID(t, out))
	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOpenAI, session.Provider)
	assert.Equal(t, []string{doc.ID}, session.DocumentIDs)
}

func TestSessionCreateCmd_Defaults(t *testing.T) {
	setupTestServices(t)

	out, err := runCommand(t, "", "session", "create")

	require.NoError(t, err)
	assert.Contains(t, out, "Title:     "+domain.DefaultSessionTitle)
	assert.Contains(t, out, "Documents: 0")
}

func TestSessionCreateCmd_UnknownDocument(t *testing.T) {
	setupTestServices(t)

	_, err := runCommand(t, "", "session", "create", "missing")

	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionListCmd(t *testing.T) {
	setupTestServices(t)

	out, err := runCommand(t, "", "session", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions yet")

	_, err = runCommand(t, "", "session", "create", "--title", "Physics")
	require.NoError(t, err)

	out, err = runCommand(t, "", "session", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Physics")
	assert.Contains(t, out, " 0 docs")
}

func TestSessionShowCmd(t *testing.T) {
	env := setupTestServices(t)
	doc := env.indexed(t, "biology.txt", "Mitochondria are the powerhouse of the cell.")
	out, err := runCommand(t, "", "session", "create", doc.ID)
	require.NoError(t, err)
	id := createdID(t, out)

	out, err = runCommand(t, "", "session", "show", id)

	require.NoError(t, err)
	assert.Contains(t, out, "Session: "+id)
	assert.Contains(t, out, "Provider: (default)")
	assert.Contains(t, out, doc.ID+"  biology.txt")
}

func TestSessionBindCmds(t *testing.T) {
	env := setupTestServices(t)
	a := env.indexed(t, "a.txt", "Alpha particles are helium nuclei.")
	b := env.indexed(t, "b.txt", "Beta decay emits an electron.")
	out, err := runCommand(t, "", "session", "create")
	require.NoError(t, err)
	id := createdID(t, out)

	out, err = runCommand(t, "", "session", "bind", id, a.ID, b.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "now has 2 documents")

	out, err = runCommand(t, "", "session", "unbind", id, a.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "now has 1 documents")

	out, err = runCommand(t, "", "session", "replace", id)
	require.NoError(t, err)
	assert.Contains(t, out, "now has 0 documents")

	scope, err := env.sessions.ResolveScope(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, scope)
}

func TestSessionBindCmd_NotReady(t *testing.T) {
	env := setupTestServices(t)
	out, err := runCommand(t, "", "session", "create")
	require.NoError(t, err)
	id := createdID(t, out)

	_, err = runCommand(t, "", "session", "bind", id, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = runCommand(t, "", "session", "bind", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 2 arg(s)")

	scope, err := env.sessions.ResolveScope(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, scope)
}

func TestSessionRenameAndProviderCmds(t *testing.T) {
	env := setupTestServices(t)
	out, err := runCommand(t, "", "session", "create")
	require.NoError(t, err)
	id := createdID(t, out)

	out, err = runCommand(t, "", "session", "rename", id, "Organic chemistry")
	require.NoError(t, err)
	assert.Contains(t, out, `"Organic chemistry"`)

	out, err = runCommand(t, "", "session", "provider", id, "anthropic")
	require.NoError(t, err)
	assert.Contains(t, out, "Anthropic (cloud)")

	session, err := env.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Organic chemistry", session.Title)
	assert.Equal(t, domain.AIProviderAnthropic, session.Provider)

	out, err = runCommand(t, "", "session", "provider", id)
	require.NoError(t, err)
	assert.Contains(t, out, "uses the default provider")

	_, err = runCommand(t, "", "session", "provider", id, "hashing")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSessionDeleteCmd(t *testing.T) {
	env := setupTestServices(t)
	out, err := runCommand(t, "", "session", "create")
	require.NoError(t, err)
	id := createdID(t, out)

	out, err = runCommand(t, "", "session", "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted session: "+id)

	_, err = env.sessions.Get(context.Background(), id)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = runCommand(t, "", "session", "delete", id)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionMessagesCmd(t *testing.T) {
	env := setupTestServices(t)
	doc := env.indexed(t, "biology.txt", "Mitochondria are the powerhouse of the cell.")
	out, err := runCommand(t, "", "session", "create", doc.ID)
	require.NoError(t, err)
	id := createdID(t, out)

	out, err = runCommand(t, "", "session", "messages", id)
	require.NoError(t, err)
	assert.Contains(t, out, "No messages yet.")

	_, err = runCommand(t, "", "ask", id, "What", "do", "mitochondria", "do?")
	require.NoError(t, err)

	out, err = runCommand(t, "", "session", "messages", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Q: What do mitochondria do?")
	assert.Contains(t, out, "A: Mitochondria make ATP.")
	assert.Contains(t, out, "[1] biology.txt")
}
