package store

import (
	"context"
	"sync"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

// InMemoryStore keeps snapshots in process memory for tests and lightweight
// deployments.
type InMemoryStore struct {
	mu    sync.RWMutex
	chats map[string]Snapshot
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{chats: make(map[string]Snapshot)}
}

func (s *InMemoryStore) Load(_ context.Context, chatID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.chats[chatID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	out := Snapshot{
		Memories:   append([]model.Memory(nil), snap.Memories...),
		Characters: make(model.Characters, len(snap.Characters)),
	}
	for k, v := range snap.Characters {
		out.Characters[k] = v
	}
	return normalizeSnapshot(out), nil
}

func (s *InMemoryStore) SaveEmbeddings(_ context.Context, chatID string, embeddings map[string][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.chats[chatID]
	if !ok {
		return ErrNotFound
	}
	for i, m := range snap.Memories {
		if vec, ok := embeddings[m.ID]; ok {
			snap.Memories[i].Embedding = append([]float32(nil), vec...)
		}
	}
	return nil
}

func (s *InMemoryStore) PutMemories(_ context.Context, chatID string, memories []model.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.chats[chatID]
	index := make(map[string]int, len(snap.Memories))
	for i, m := range snap.Memories {
		index[m.ID] = i
	}
	for _, m := range memories {
		if i, ok := index[m.ID]; ok {
			snap.Memories[i] = m
			continue
		}
		index[m.ID] = len(snap.Memories)
		snap.Memories = append(snap.Memories, m)
	}
	s.chats[chatID] = snap
	return nil
}

func (s *InMemoryStore) PutCharacters(_ context.Context, chatID string, characters model.Characters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.chats[chatID]
	if snap.Characters == nil {
		snap.Characters = model.Characters{}
	}
	for name, st := range characters {
		snap.Characters[name] = st
	}
	s.chats[chatID] = snap
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
