package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
	"github.com/Protocol-Lattice/recall/pkg/memory/store"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	js, err := store.NewJSONFileStore(dataDir)
	require.NoError(t, err)
	require.NoError(t, js.Write("chat", store.Snapshot{
		Memories: []model.Memory{
			{ID: "m1", Summary: "Alice found a silver key", Importance: 4, MessageIDs: []int{5}, Sequence: 5000},
			{ID: "m2", Summary: "The tower bell rang at midnight", Importance: 2, MessageIDs: []int{8}, Sequence: 8000},
		},
	}))
	cfgPath := filepath.Join(dir, "recall.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
store:
  driver: json
  path: `+dataDir+`
embedding:
  provider: dummy
worker:
  offload: false
logging:
  level: error
`), 0o644))
	return cfgPath
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), out.String())
	return out.String()
}

func TestRetrieveCommand(t *testing.T) {
	cfg := writeFixture(t)
	out := run(t, "--config", cfg, "retrieve", "--chat", "chat", "--chat-length", "10",
		"--message", "where is the silver key", "-v")
	assert.True(t, strings.HasPrefix(out, "<scene_memory>"))
	assert.Contains(t, out, "silver key")
	assert.Contains(t, out, "mode=simple")
}

func TestScoreCommand(t *testing.T) {
	cfg := writeFixture(t)
	out := run(t, "--config", cfg, "score", "--chat", "chat", "--chat-length", "10",
		"--message", "silver key", "--param", "keyword_weight=2", "-n", "1")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "m1")
}

func TestEmbedCommandPersistsVectors(t *testing.T) {
	cfg := writeFixture(t)
	out := run(t, "--config", cfg, "embed", "--chat", "chat")
	assert.Contains(t, out, "chat: 2 embedded")

	out = run(t, "--config", cfg, "embed", "--chat", "chat")
	assert.Contains(t, out, "chat: 0 embedded")
}

func TestConfigWrite(t *testing.T) {
	cfg := writeFixture(t)
	target := filepath.Join(t.TempDir(), "out.yaml")
	run(t, "--config", cfg, "config", "write", target)
	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "driver: json")
}
