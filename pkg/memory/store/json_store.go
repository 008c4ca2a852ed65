package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

// JSONFileStore reads host metadata exports, one <chatID>.json file per
// conversation holding {"memories": [...], "characters": {...}}. Values are
// decoded leniently because hosts store numbers as strings and vice versa.
type JSONFileStore struct {
	Dir string
	mu  sync.Mutex
}

func NewJSONFileStore(dir string) (*JSONFileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("json store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create json store dir: %w", err)
	}
	return &JSONFileStore{Dir: dir}, nil
}

func (s *JSONFileStore) path(chatID string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + chatID))
	if name == "/" || name == "." || name == "" {
		return "", fmt.Errorf("invalid chat id %q", chatID)
	}
	return filepath.Join(s.Dir, name+".json"), nil
}

func (s *JSONFileStore) readDoc(chatID string) (map[string]any, string, error) {
	path, err := s.path(chatID)
	if err != nil {
		return nil, "", err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, path, ErrNotFound
	}
	if err != nil {
		return nil, path, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, path, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, path, nil
}

func (s *JSONFileStore) Load(_ context.Context, chatID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, _, err := s.readDoc(chatID)
	if err != nil {
		return Snapshot{}, err
	}
	return decodeSnapshot(doc), nil
}

func (s *JSONFileStore) SaveEmbeddings(_ context.Context, chatID string, embeddings map[string][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, path, err := s.readDoc(chatID)
	if err != nil {
		return err
	}
	items, _ := doc["memories"].([]any)
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if vec, ok := embeddings[model.StringFromAny(m["id"])]; ok {
			m["embedding"] = vec
		}
	}
	return writeJSONAtomic(path, doc)
}

// Write replaces the stored snapshot for chatID.
func (s *JSONFileStore) Write(chatID string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, err := s.path(chatID)
	if err != nil {
		return err
	}
	return writeJSONAtomic(path, snap)
}

func writeJSONAtomic(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func decodeSnapshot(doc map[string]any) Snapshot {
	var snap Snapshot
	items, _ := doc["memories"].([]any)
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			snap.Memories = append(snap.Memories, model.MemoryFromMap(m))
		}
	}
	snap.Characters = model.Characters{}
	chars, _ := doc["characters"].(map[string]any)
	for name, raw := range chars {
		fields, _ := raw.(map[string]any)
		snap.Characters[name] = model.CharacterState{
			Name:             name,
			CurrentEmotion:   model.StringFromAny(fields["current_emotion"]),
			EmotionIntensity: model.IntFromAny(fields["emotion_intensity"]),
			KnownEvents:      model.StringSliceFromAny(fields["known_events"]),
		}
	}
	return normalizeSnapshot(snap)
}

func (s *JSONFileStore) Close() error { return nil }
