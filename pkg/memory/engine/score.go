package engine

import (
	"sort"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

// Query is the scene a ranking is computed for.
type Query struct {
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
	ChatLength int       `json:"chat_length"`
}

// Breakdown explains how a score was composed.
type Breakdown struct {
	Distance   float64 `json:"distance"`
	Base       float64 `json:"base"`
	Similarity float64 `json:"similarity"`
	Vector     float64 `json:"vector"`
	Keyword    float64 `json:"keyword"`
}

// Scored is a memory with its relevance score.
type Scored struct {
	Memory    model.Memory `json:"memory"`
	Score     float64      `json:"score"`
	Breakdown Breakdown    `json:"breakdown"`
}

// Memories strips the scores.
func Memories(scored []Scored) []model.Memory {
	out := make([]model.Memory, len(scored))
	for i, s := range scored {
		out[i] = s.Memory
	}
	return out
}

// Score computes the blended relevance of every memory and returns them in
// rank order. The keyword corpus is the candidate set itself, so the same
// memory can score differently against different candidate sets.
func Score(memories []model.Memory, q Query, p Params) []Scored {
	if len(memories) == 0 {
		return nil
	}
	p = p.Normalized()

	var (
		terms []string
		index *bm25Index
	)
	if p.KeywordWeight > 0 {
		terms = Tokenize(q.Text)
	}
	if len(terms) > 0 {
		docs := make([]string, len(memories))
		for i, m := range memories {
			docs[i] = m.Summary
		}
		index = newBM25Index(docs, p.K1, p.B)
	}

	out := make([]Scored, len(memories))
	for i, raw := range memories {
		m := raw.Normalized()
		bd := Breakdown{Distance: m.Distance(q.ChatLength)}
		bd.Base = model.ForgetfulnessScore(m.Importance, bd.Distance, p.BaseLambda, p.Importance5Floor)
		if len(q.Embedding) > 0 && m.HasEmbedding() {
			bd.Similarity = model.CosineSimilarity(q.Embedding, m.Embedding)
			if bd.Similarity > p.VectorThreshold && p.VectorThreshold < 1 {
				bd.Vector = (bd.Similarity - p.VectorThreshold) / (1 - p.VectorThreshold) * p.VectorWeight
			}
		}
		if index != nil {
			bd.Keyword = index.score(i, terms) * p.KeywordWeight
		}
		out[i] = Scored{Memory: m, Score: bd.Base + bd.Vector + bd.Keyword, Breakdown: bd}
	}
	SortScored(out)
	return out
}

// SortScored orders by score, then importance, then recency of extraction,
// then id, so equal inputs always rank identically.
func SortScored(scored []Scored) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Memory.Importance != b.Memory.Importance {
			return a.Memory.Importance > b.Memory.Importance
		}
		if a.Memory.Sequence != b.Memory.Sequence {
			return a.Memory.Sequence > b.Memory.Sequence
		}
		return a.Memory.ID < b.Memory.ID
	})
}
