// Package store loads conversation snapshots (memories and character state)
// from the host application's persistence layer.
package store

import (
	"context"
	"errors"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

// ErrNotFound is returned when a conversation has no stored snapshot.
var ErrNotFound = errors.New("conversation not found")

// Snapshot is the read-only state retrieval runs against.
type Snapshot struct {
	Memories   []model.Memory   `json:"memories"`
	Characters model.Characters `json:"characters,omitempty"`
}

// Source supplies snapshots and persists lazily computed embeddings.
type Source interface {
	Load(ctx context.Context, chatID string) (Snapshot, error)
	SaveEmbeddings(ctx context.Context, chatID string, embeddings map[string][]float32) error
}

// Writer is implemented by sources that can also ingest memories, used for
// imports and tests.
type Writer interface {
	PutMemories(ctx context.Context, chatID string, memories []model.Memory) error
	PutCharacters(ctx context.Context, chatID string, characters model.Characters) error
}

func normalizeSnapshot(s Snapshot) Snapshot {
	for i := range s.Memories {
		s.Memories[i] = s.Memories[i].Normalized()
	}
	if s.Characters == nil {
		s.Characters = model.Characters{}
	}
	return s
}
