package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Memories: []model.Memory{
			{ID: "m1", Summary: "Alice found the key", Importance: 4, MessageIDs: []int{3, 4}, Sequence: 4000,
				CharactersInvolved: []string{"Alice"}, Witnesses: []string{"Bob"}, Tags: []string{"key"}},
			{ID: "m2", Summary: "Bob hid the map", MessageIDs: []int{7}, Sequence: 7000, IsSecret: true},
		},
		Characters: model.Characters{
			"Alice": {Name: "Alice", CurrentEmotion: "anxious", EmotionIntensity: 7, KnownEvents: []string{"m2"}},
		},
	}
}

func assertSampleLoaded(t *testing.T, snap Snapshot) {
	t.Helper()
	require.Len(t, snap.Memories, 2)
	m1 := snap.Memories[0]
	assert.Equal(t, "m1", m1.ID)
	assert.Equal(t, 4, m1.Importance)
	assert.Equal(t, []int{3, 4}, m1.MessageIDs)
	assert.Equal(t, int64(4000), m1.Sequence)
	assert.Equal(t, []string{"Bob"}, m1.Witnesses)
	assert.Equal(t, []string{"key"}, m1.Tags)
	m2 := snap.Memories[1]
	assert.Equal(t, model.DefaultImportance, m2.Importance)
	assert.True(t, m2.IsSecret)
	alice, ok := snap.Characters.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "anxious", alice.CurrentEmotion)
	assert.Equal(t, 7, alice.EmotionIntensity)
	assert.Equal(t, []string{"m2"}, alice.KnownEvents)
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_, err := s.Load(ctx, "chat")
	assert.ErrorIs(t, err, ErrNotFound)

	snap := sampleSnapshot()
	require.NoError(t, s.PutMemories(ctx, "chat", snap.Memories))
	require.NoError(t, s.PutCharacters(ctx, "chat", snap.Characters))
	loaded, err := s.Load(ctx, "chat")
	require.NoError(t, err)
	assertSampleLoaded(t, loaded)

	require.NoError(t, s.SaveEmbeddings(ctx, "chat", map[string][]float32{"m1": {1, 0}}))
	loaded, err = s.Load(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, loaded.Memories[0].Embedding)

	// Upsert keeps position and replaces content.
	require.NoError(t, s.PutMemories(ctx, "chat", []model.Memory{{ID: "m1", Summary: "changed"}}))
	loaded, _ = s.Load(ctx, "chat")
	require.Len(t, loaded.Memories, 2)
	assert.Equal(t, "changed", loaded.Memories[0].Summary)
}

func TestJSONFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewJSONFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load(ctx, "chat-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Write("chat-1", sampleSnapshot()))
	loaded, err := s.Load(ctx, "chat-1")
	require.NoError(t, err)
	assertSampleLoaded(t, loaded)

	require.NoError(t, s.SaveEmbeddings(ctx, "chat-1", map[string][]float32{"m2": {0.5, 0.5}}))
	loaded, err = s.Load(ctx, "chat-1")
	require.NoError(t, err)
	assert.Nil(t, loaded.Memories[0].Embedding)
	assert.Equal(t, []float32{0.5, 0.5}, loaded.Memories[1].Embedding)
}

func TestJSONFileStoreDecodesLooseHostExports(t *testing.T) {
	dir := t.TempDir()
	raw := `{
	  "memories": [
	    {"id": "a", "summary": "stringly typed", "importance": "5", "message_ids": ["2", 9], "sequence": "9000", "is_secret": "true"}
	  ],
	  "characters": {"Bob": {"current_emotion": "calm", "emotion_intensity": "3"}}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loose.json"), []byte(raw), 0o644))
	s, err := NewJSONFileStore(dir)
	require.NoError(t, err)

	snap, err := s.Load(context.Background(), "loose")
	require.NoError(t, err)
	require.Len(t, snap.Memories, 1)
	assert.Equal(t, 5, snap.Memories[0].Importance)
	assert.Equal(t, []int{2, 9}, snap.Memories[0].MessageIDs)
	assert.Equal(t, int64(9000), snap.Memories[0].Sequence)
	assert.True(t, snap.Memories[0].IsSecret)
	assert.Equal(t, 3, snap.Characters["Bob"].EmotionIntensity)
}

func TestJSONFileStoreRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONFileStore(dir)
	require.NoError(t, err)
	path, err := s.path("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "passwd.json"), path)

	_, err = s.path("/")
	assert.Error(t, err)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(ctx, "chat")
	assert.True(t, errors.Is(err, ErrNotFound))

	snap := sampleSnapshot()
	snap.Memories[0].Embedding = []float32{0.25, 0.75}
	require.NoError(t, s.PutMemories(ctx, "chat", snap.Memories))
	require.NoError(t, s.PutCharacters(ctx, "chat", snap.Characters))

	loaded, err := s.Load(ctx, "chat")
	require.NoError(t, err)
	assertSampleLoaded(t, loaded)
	assert.Equal(t, []float32{0.25, 0.75}, loaded.Memories[0].Embedding)
	assert.Nil(t, loaded.Memories[1].Embedding)

	require.NoError(t, s.SaveEmbeddings(ctx, "chat", map[string][]float32{"m2": {1, 2, 3}}))
	// Re-putting without an embedding keeps the stored one.
	require.NoError(t, s.PutMemories(ctx, "chat", []model.Memory{{ID: "m2", Summary: "Bob hid the map", Sequence: 7000}}))
	loaded, err = s.Load(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, loaded.Memories[1].Embedding)
	assert.False(t, loaded.Memories[1].IsSecret)

	_, err = s.Load(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	b, err := Open(ctx, Config{Driver: "memory"})
	require.NoError(t, err)
	_, ok := b.(*InMemoryStore)
	assert.True(t, ok)

	b, err = Open(ctx, Config{Path: t.TempDir()})
	require.NoError(t, err)
	_, ok = b.(*JSONFileStore)
	assert.True(t, ok)

	b, err = Open(ctx, Config{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	_, ok = b.(Writer)
	assert.True(t, ok)
	require.NoError(t, b.Close())

	_, err = Open(ctx, Config{Driver: "cassandra"})
	assert.Error(t, err)
}

func TestPostgresVectorHelpers(t *testing.T) {
	assert.Equal(t, "[0.5,-1,2.25]", formatVector([]float32{0.5, -1, 2.25}))
	assert.Equal(t, []float32{0.5, -1, 2.25}, parseVector("[0.5, -1,2.25]"))
	assert.Nil(t, parseVector(""))
	assert.Nil(t, parseVector("[]"))
	assert.Equal(t, []int{1, 2}, intsFromInt64([]int64{1, 2}))
	assert.Nil(t, intsFromInt64(nil))
	assert.Equal(t, []string{}, nonNilStrings(nil))
}

func TestMongoDocumentConversion(t *testing.T) {
	m := model.Memory{ID: "m1", Summary: "s", MessageIDs: []int{1}, Sequence: 1000, Embedding: []float32{0.5, 1}}
	doc := memoryDocument("chat", m)
	assert.Equal(t, "chat", doc.ChatID)
	assert.Equal(t, model.DefaultImportance, doc.Importance)
	assert.Equal(t, []float64{0.5, 1}, doc.Embedding)

	back := doc.toMemory()
	assert.Equal(t, []float32{0.5, 1}, back.Embedding)
	assert.Equal(t, m.MessageIDs, back.MessageIDs)

	snap := snapshotFromDocuments([]mongoMemoryDocument{doc}, []mongoCharacterDocument{{Name: "Alice", KnownEvents: []string{"m1"}}})
	require.Len(t, snap.Memories, 1)
	assert.True(t, snap.Characters["Alice"].Knows("m1"))
}
