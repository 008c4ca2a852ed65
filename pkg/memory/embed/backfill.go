package embed

import (
	"context"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

// Backfill embeds every memory that has no vector yet, updating the slice in
// place. It returns the new vectors keyed by memory id so callers can persist
// them. Memories the provider could not embed are left untouched.
func Backfill(ctx context.Context, c *Cache, memories []model.Memory) map[string][]float32 {
	if c == nil {
		return nil
	}
	var (
		idx   []int
		texts []string
	)
	for i := range memories {
		if memories[i].HasEmbedding() {
			continue
		}
		text := memories[i].EmbeddingText()
		if text == "" {
			continue
		}
		idx = append(idx, i)
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return nil
	}

	vecs := c.EmbedAll(ctx, texts)
	updated := make(map[string][]float32)
	for j, i := range idx {
		if j >= len(vecs) || len(vecs[j]) == 0 {
			continue
		}
		memories[i].Embedding = vecs[j]
		updated[memories[i].ID] = vecs[j]
	}
	return updated
}
