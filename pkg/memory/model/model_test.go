package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilaritySelfIsOne(t *testing.T) {
	vecs := [][]float32{
		{1, 0, 0},
		{0.3, -0.7, 2.5, 9},
		make([]float32, 384),
	}
	for i := range vecs[2] {
		vecs[2][i] = float32(math.Sin(float64(i) + 1))
	}
	for _, v := range vecs {
		assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
	}
}

func TestCosineSimilarityIsCommutative(t *testing.T) {
	a := []float32{0.1, 0.2, -0.9, 4}
	b := []float32{3, -1, 0.5, 0.25}
	assert.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a))
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	cases := map[string][2][]float32{
		"nil":        {nil, {1, 2}},
		"empty":      {{}, {1, 2}},
		"mismatched": {{1, 2, 3}, {1, 2}},
		"zero":       {{0, 0, 0}, {1, 2, 3}},
		"both zero":  {{0, 0}, {0, 0}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, 0.0, CosineSimilarity(tc[0], tc[1]))
		})
	}
}

func TestForgetfulnessScoreMonotonicInImportance(t *testing.T) {
	for _, distance := range []float64{0, 1, 10, 100, 1000, 10000} {
		prev := math.Inf(-1)
		for imp := MinImportance; imp <= MaxImportance; imp++ {
			score := ForgetfulnessScore(imp, distance, 0.05, 1.0)
			assert.GreaterOrEqual(t, score, prev, "importance %d at distance %.0f", imp, distance)
			prev = score
		}
	}
}

func TestForgetfulnessScoreImportanceFiveFloor(t *testing.T) {
	for _, distance := range []float64{0, 500, 5000, 1e6} {
		assert.GreaterOrEqual(t, ForgetfulnessScore(5, distance, 0.05, 1.5), 1.5)
	}
	// Lower importances are not floored.
	assert.Less(t, ForgetfulnessScore(4, 1e6, 0.05, 1.5), 1e-6)
}

func TestForgetfulnessScoreFormula(t *testing.T) {
	got := ForgetfulnessScore(2, 10, 0.05, 1)
	want := 2 * math.Exp(-(0.05/4)*10)
	assert.InDelta(t, want, got, 1e-12)
	// Out-of-range importance is clamped rather than rejected.
	assert.Equal(t, ForgetfulnessScore(5, 10, 0.05, 1), ForgetfulnessScore(9, 10, 0.05, 1))
	assert.Equal(t, ForgetfulnessScore(1, 10, 0.05, 1), ForgetfulnessScore(-3, 10, 0.05, 1))
}

func TestMemoryDistanceAndPositions(t *testing.T) {
	m := Memory{MessageIDs: []int{40, 44, 42}}
	assert.Equal(t, 44, m.Position())
	assert.Equal(t, 56.0, m.Distance(100))
	assert.Equal(t, 0.0, m.Distance(10))
	assert.InDelta(t, 42.0, m.DisplayPosition(), 1e-9)

	bare := Memory{}
	assert.Equal(t, 0, bare.Position())
	assert.Equal(t, 100.0, bare.Distance(100))

	seqOnly := Memory{Sequence: NextSequence([]int{73, 70}, 2)}
	assert.Equal(t, int64(70002), seqOnly.Sequence)
	assert.Equal(t, 70.0, seqOnly.DisplayPosition())
}

func TestMemoryNormalizedDefaults(t *testing.T) {
	assert.Equal(t, DefaultImportance, Memory{}.Normalized().Importance)
	assert.Equal(t, MaxImportance, Memory{Importance: 11}.Normalized().Importance)
	assert.Equal(t, MinImportance, Memory{Importance: -2}.Normalized().Importance)
}

func TestEmbeddingTextPrefixesTags(t *testing.T) {
	m := Memory{Summary: " Alice was wounded ", Tags: []string{"combat", " ", "injury"}}
	assert.Equal(t, "[COMBAT] [INJURY] Alice was wounded", m.EmbeddingText())
	assert.Equal(t, "plain", Memory{Summary: "plain"}.EmbeddingText())
}

func TestCharactersLookupIgnoresCase(t *testing.T) {
	chars := Characters{"Alice": {CurrentEmotion: "calm"}}
	st, ok := chars.Lookup("  alice ")
	require.True(t, ok)
	assert.Equal(t, "calm", st.CurrentEmotion)

	_, ok = chars.Lookup("bob")
	assert.False(t, ok)
	chars.Ensure("Bob")
	_, ok = chars.Lookup("BOB")
	assert.True(t, ok)
}

func TestEstimateTokensAndCost(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 1, EstimateTokens("★★"))
	assert.Equal(t, 1+LineOverheadTokens, TokenCost(Memory{Summary: "x"}))
	assert.Equal(t, 2*(1+LineOverheadTokens), TotalTokenCost([]Memory{{Summary: "x"}, {Summary: "y"}}))
}

func TestRetrievalContextQueryText(t *testing.T) {
	ctx := RetrievalContext{
		RecentContext: "fallback text",
		UserMessages:  []string{"one", "two", " ", "three", "four"},
	}
	assert.Equal(t, "two\nthree\nfour", ctx.QueryText())

	ctx.UserMessages = nil
	assert.Equal(t, "fallback text", ctx.QueryText())
}

func TestMemoryFromMapCoercesLooseTypes(t *testing.T) {
	m := MemoryFromMap(map[string]any{
		"id":                  "m1",
		"summary":             "Bob hid the key",
		"importance":          "4",
		"message_ids":         []any{float64(3), "5"},
		"sequence":            float64(3000),
		"witnesses":           []any{"Bob"},
		"characters_involved": `["Bob","Alice"]`,
		"is_secret":           "true",
		"embedding":           []any{0.5, 1},
	})
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, 4, m.Importance)
	assert.Equal(t, []int{3, 5}, m.MessageIDs)
	assert.Equal(t, int64(3000), m.Sequence)
	assert.Equal(t, []string{"Bob", "Alice"}, m.CharactersInvolved)
	assert.True(t, m.IsSecret)
	assert.Equal(t, []float32{0.5, 1}, m.Embedding)

	assert.Equal(t, DefaultImportance, MemoryFromMap(map[string]any{"id": "m2"}).Importance)
}
