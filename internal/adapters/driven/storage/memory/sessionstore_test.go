package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/studybuddy/internal/core/domain"
)

func newSession(id string, at time.Time, docs ...string) *domain.ChatSession {
	return &domain.ChatSession{
		ID:           id,
		Title:        "Session " + id,
		Kind:         domain.SessionKindText,
		DocumentIDs:  docs,
		CreatedAt:    at,
		LastActivity: at,
	}
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newSession("s1", time.Now(), "b", "a", "b")))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Session s1", got.Title)
	assert.Equal(t, []string{"a", "b"}, got.DocumentIDs)

	assert.ErrorIs(t, store.Create(ctx, newSession("s1", time.Now())), domain.ErrAlreadyExists)
}

func TestSessionStore_CreateDoesNotAliasInput(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	docs := []string{"a"}
	require.NoError(t, store.Create(ctx, newSession("s1", time.Now(), docs...)))
	docs[0] = "z"

	ids, err := store.Bindings(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestSessionStore_UnknownSession(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Bindings(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.SetBindings(ctx, "missing", nil), domain.ErrNotFound)
	assert.ErrorIs(t, store.AddBindings(ctx, "missing", nil), domain.ErrNotFound)
	assert.ErrorIs(t, store.RemoveBindings(ctx, "missing", nil), domain.ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, newSession("missing", time.Now())), domain.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), domain.ErrNotFound)
}

func TestSessionStore_WithDocumentsRejectsUnknownDocuments(t *testing.T) {
	docs := NewDocumentStore()
	store := NewSessionStore(WithDocuments(docs))
	ctx := context.Background()
	require.NoError(t, docs.Save(ctx, newDoc("a")))

	err := store.Create(ctx, newSession("s0", time.Now(), "a", "ghost"))
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	_, err = store.Get(ctx, "s0")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Create(ctx, newSession("s1", time.Now(), "a")))
	assert.ErrorIs(t, store.AddBindings(ctx, "s1", []string{"ghost"}), domain.ErrDocumentNotFound)
	assert.ErrorIs(t, store.SetBindings(ctx, "s1", []string{"a", "ghost"}), domain.ErrDocumentNotFound)

	ids, err := store.Bindings(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestSessionStore_WithDocumentsUnbindsDeletedDocument(t *testing.T) {
	docs := NewDocumentStore()
	store := NewSessionStore(WithDocuments(docs))
	ctx := context.Background()
	require.NoError(t, docs.Save(ctx, newDoc("a")))
	require.NoError(t, docs.Save(ctx, newDoc("b")))
	require.NoError(t, store.Create(ctx, newSession("s1", time.Now(), "a", "b")))

	require.NoError(t, docs.Delete(ctx, "a"))

	ids, err := store.Bindings(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
	assert.ErrorIs(t, store.AddBindings(ctx, "s1", []string{"a"}), domain.ErrDocumentNotFound)
}

func TestSessionStore_Bindings(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newSession("s1", time.Now())))
	require.NoError(t, store.Create(ctx, newSession("s2", time.Now(), "a")))

	ids, err := store.Bindings(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.AddBindings(ctx, "s1", []string{"c", "a"}))
	ids, _ = store.Bindings(ctx, "s1")
	assert.Equal(t, []string{"a", "c"}, ids)

	require.NoError(t, store.RemoveBindings(ctx, "s1", []string{"c"}))
	ids, _ = store.Bindings(ctx, "s1")
	assert.Equal(t, []string{"a"}, ids)

	require.NoError(t, store.SetBindings(ctx, "s1", []string{"d"}))
	ids, _ = store.Bindings(ctx, "s1")
	assert.Equal(t, []string{"d"}, ids)

	require.NoError(t, store.UnbindDocument(ctx, "a"))
	ids, _ = store.Bindings(ctx, "s2")
	assert.Empty(t, ids)
	ids, _ = store.Bindings(ctx, "s1")
	assert.Equal(t, []string{"d"}, ids)
}

func TestSessionStore_ListAndUpdate(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	base := time.Now()
	require.NoError(t, store.Create(ctx, newSession("old", base)))
	require.NoError(t, store.Create(ctx, newSession("new", base.Add(time.Minute))))

	list, err := store.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)

	old, err := store.Get(ctx, "old")
	require.NoError(t, err)
	old.Title = "Renamed"
	old.LastActivity = base.Add(time.Hour)
	require.NoError(t, store.Update(ctx, old))

	list, err = store.List(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Renamed", list[0].Title)

	list, err = store.List(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMessageStore_AppendOnceAndCounters(t *testing.T) {
	sessions := NewSessionStore()
	messages := NewMessageStore(sessions)
	ctx := context.Background()
	require.NoError(t, sessions.Create(ctx, newSession("s1", time.Now())))

	turn := &domain.ChatMessage{
		ID: "t1", SessionID: "s1", Question: "q", Answer: "a",
		Sources:   []domain.SourceRef{{DocumentID: "d", Sequence: 1}},
		CreatedAt: time.Now().Add(time.Minute),
	}
	inserted, err := messages.Append(ctx, turn)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = messages.Append(ctx, turn)
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := messages.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	session, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, session.TotalMessages)
	assert.True(t, session.LastActivity.Equal(turn.CreatedAt))

	_, err = messages.Append(ctx, &domain.ChatMessage{ID: "t2", SessionID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMessageStore_ListPaging(t *testing.T) {
	sessions := NewSessionStore()
	messages := NewMessageStore(sessions)
	ctx := context.Background()
	require.NoError(t, sessions.Create(ctx, newSession("s1", time.Now())))
	for _, id := range []string{"t1", "t2", "t3"} {
		_, err := messages.Append(ctx, &domain.ChatMessage{ID: id, SessionID: "s1", CreatedAt: time.Now()})
		require.NoError(t, err)
	}

	all, err := messages.List(ctx, "s1", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t1", all[0].ID)

	page, err := messages.List(ctx, "s1", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "t2", page[0].ID)

	require.NoError(t, sessions.Delete(ctx, "s1"))
	n, err := messages.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBlobStore_RoundTrip(t *testing.T) {
	blobs := NewBlobStore()
	ctx := context.Background()

	ref, err := blobs.Store(ctx, []byte("hello"), ".txt")
	require.NoError(t, err)
	assert.Contains(t, ref, ".txt")

	data, err := blobs.Retrieve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, blobs.Delete(ctx, ref))
	_, err = blobs.Retrieve(ctx, ref)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, blobs.Len())
}
