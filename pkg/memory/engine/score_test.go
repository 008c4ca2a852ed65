package engine

import (
	"math"
	"testing"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoredByID(scored []Scored) map[string]Scored {
	out := make(map[string]Scored, len(scored))
	for _, s := range scored {
		out[s.Memory.ID] = s
	}
	return out
}

func TestScoreImportanceCrossover(t *testing.T) {
	memories := []model.Memory{
		{ID: "ancient-vow", Summary: "Alice swore an oath", Importance: 5, MessageIDs: []int{1}, Sequence: 1000},
		{ID: "small-talk", Summary: "Bob ordered tea", Importance: 2, MessageIDs: []int{9990}, Sequence: 9990000},
	}
	q := Query{ChatLength: 10000}

	trivial := model.ForgetfulnessScore(2, 10, 0.05, 1)
	require.InDelta(t, 1.75, trivial, 0.05)

	params := DefaultParams()
	params.KeywordWeight = 0
	params.Importance5Floor = trivial + 0.5
	got := Score(memories, q, params)
	assert.Equal(t, "ancient-vow", got[0].Memory.ID, "floored importance-5 memory ranks first")
	assert.Equal(t, params.Importance5Floor, got[0].Breakdown.Base)

	params.Importance5Floor = 1.0
	got = Score(memories, q, params)
	assert.Equal(t, "small-talk", got[0].Memory.ID, "recent memory wins under a low floor")
}

func TestScoreVectorBonus(t *testing.T) {
	memories := []model.Memory{
		{ID: "same", Summary: "x", Importance: 1, Embedding: []float32{1, 0}},
		{ID: "orthogonal", Summary: "y", Importance: 1, Embedding: []float32{0, 1}},
		{ID: "partial", Summary: "z", Importance: 1, Embedding: []float32{0.6, 0.8}},
		{ID: "none", Summary: "w", Importance: 1},
	}
	got := Score(memories, Query{Embedding: []float32{1, 0}}, DefaultParams())
	byID := scoredByID(got)

	assert.InDelta(t, 15, byID["same"].Breakdown.Vector, 1e-6)
	assert.InDelta(t, 3, byID["partial"].Breakdown.Vector, 1e-5)
	assert.Zero(t, byID["orthogonal"].Breakdown.Vector)
	assert.Zero(t, byID["none"].Breakdown.Vector)
	assert.Equal(t, "same", got[0].Memory.ID)
	assert.Equal(t, "partial", got[1].Memory.ID)
}

func TestScoreKeywordBonus(t *testing.T) {
	memories := []model.Memory{
		{ID: "m1", Summary: "The dragon burned the village", Importance: 3},
		{ID: "m2", Summary: "Bob bought bread at the market", Importance: 3},
		{ID: "m3", Summary: "The dragon, the dragon! Alice saw the dragon again", Importance: 3},
	}
	got := Score(memories, Query{Text: "Where is the dragon?"}, DefaultParams())
	byID := scoredByID(got)

	assert.Zero(t, byID["m2"].Breakdown.Keyword)
	assert.Positive(t, byID["m1"].Breakdown.Keyword)
	assert.Positive(t, byID["m3"].Breakdown.Keyword)
	assert.Equal(t, "m2", got[len(got)-1].Memory.ID)

	params := DefaultParams()
	params.KeywordWeight = 0
	for _, s := range Score(memories, Query{Text: "dragon"}, params) {
		assert.Zero(t, s.Breakdown.Keyword, "keyword weight 0 disables the bonus")
	}
}

func TestScoreTieBreaks(t *testing.T) {
	memories := []model.Memory{
		{ID: "b", Summary: "same", Importance: 3, Sequence: 5},
		{ID: "a", Summary: "same", Importance: 3, Sequence: 5},
		{ID: "c", Summary: "same", Importance: 3, Sequence: 9},
	}
	got := Score(memories, Query{}, DefaultParams())
	assert.Equal(t, []string{"c", "a", "b"}, []string{got[0].Memory.ID, got[1].Memory.ID, got[2].Memory.ID})
}

func TestScoreDefaultsMissingImportance(t *testing.T) {
	got := Score([]model.Memory{{ID: "m", Summary: "no importance"}}, Query{}, DefaultParams())
	require.Len(t, got, 1)
	assert.Equal(t, model.DefaultImportance, got[0].Memory.Importance)
	assert.Equal(t, 3.0, got[0].Score)
	assert.Nil(t, Score(nil, Query{}, DefaultParams()))
}

func TestTokenizeDropsStopwords(t *testing.T) {
	assert.Equal(t, []string{"dragon", "dawn", "42"}, Tokenize("The Dragon and I, at dawn: 42!"))
}

func TestBM25RewardsRareTerms(t *testing.T) {
	ix := newBM25Index([]string{"storm harbour", "storm village", "storm lighthouse keeper"}, 1.2, 0.75)
	common := ix.score(0, []string{"storm"})
	rare := ix.score(0, []string{"harbour"})

	assert.Greater(t, rare, common)
	assert.Equal(t, rare, ix.score(0, []string{"harbour", "harbour"}), "duplicate query terms count once")
	assert.Zero(t, ix.score(7, []string{"storm"}), "out of range doc scores 0")
}

func TestParamsNormalized(t *testing.T) {
	p := Params{BaseLambda: -1, VectorThreshold: 2, VectorWeight: math.NaN(), K1: 0, B: 3}.Normalized()
	assert.Zero(t, p.BaseLambda)
	assert.Equal(t, 1.0, p.VectorThreshold)
	assert.Zero(t, p.VectorWeight)
	assert.Equal(t, 1.2, p.K1)
	assert.Equal(t, 1.0, p.B)

	opts := Options{}.withDefaults()
	assert.Equal(t, DefaultParams(), opts.Params)
	assert.Positive(t, opts.Timeout)
	assert.Equal(t, 500, opts.CacheSize)
}
