package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

type fakeRunner struct {
	rows    []map[string]any
	err     error
	queries []string
	params  []map[string]any
}

func (f *fakeRunner) Run(_ context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	f.queries = append(f.queries, cypher)
	f.params = append(f.params, params)
	return f.rows, f.err
}

func TestKnowledgeGraphMergesEdges(t *testing.T) {
	ctx := context.Background()
	src := NewInMemoryStore()
	snap := sampleSnapshot()
	require.NoError(t, src.PutMemories(ctx, "chat", snap.Memories))
	require.NoError(t, src.PutCharacters(ctx, "chat", snap.Characters))

	runner := &fakeRunner{rows: []map[string]any{
		{"character": "alice", "rel": "KNOWS", "memory": "m1"},
		{"character": "Carol", "rel": "KNOWS", "memory": "m2"},
		{"character": "Carol", "rel": "WITNESSED", "memory": "m2"},
		{"character": "bob", "rel": "WITNESSED", "memory": "m1"},
		{"character": "Dan", "rel": "WITNESSED", "memory": "missing"},
		{"character": "", "rel": "KNOWS", "memory": "m1"},
	}}
	g := newKnowledgeGraph(src, runner)

	loaded, err := g.Load(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, "chat", runner.params[0]["chat"])

	alice := loaded.Characters["Alice"]
	assert.ElementsMatch(t, []string{"m2", "m1"}, alice.KnownEvents)
	_, dup := loaded.Characters["alice"]
	assert.False(t, dup)
	assert.True(t, loaded.Characters["Carol"].Knows("m2"))

	assert.Equal(t, []string{"Bob"}, loaded.Memories[0].Witnesses)
	assert.Equal(t, []string{"Carol"}, loaded.Memories[1].Witnesses)
}

func TestKnowledgeGraphFallsBackOnGraphError(t *testing.T) {
	ctx := context.Background()
	src := NewInMemoryStore()
	require.NoError(t, src.PutMemories(ctx, "chat", []model.Memory{{ID: "m1", Summary: "x"}}))
	g := newKnowledgeGraph(src, &fakeRunner{err: errors.New("graph down")})

	loaded, err := g.Load(ctx, "chat")
	require.NoError(t, err)
	assert.Len(t, loaded.Memories, 1)

	_, err = g.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKnowledgeGraphProject(t *testing.T) {
	runner := &fakeRunner{}
	g := newKnowledgeGraph(NewInMemoryStore(), runner)
	require.NoError(t, g.Project(context.Background(), "chat", sampleSnapshot()))

	require.Len(t, runner.queries, 2)
	assert.True(t, strings.Contains(runner.queries[0], "MERGE (m:Memory"))
	edges := runner.params[1]["edges"].([]map[string]any)
	assert.ElementsMatch(t, []map[string]any{
		{"character": "Bob", "memory": "m1", "rel": relWitnessed},
		{"character": "Alice", "memory": "m2", "rel": relKnows},
	}, edges)
}
