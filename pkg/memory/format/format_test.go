package format

import (
	"strings"
	"testing"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(id string, pos int, importance int, summary string) model.Memory {
	return model.Memory{
		ID:         id,
		Summary:    summary,
		Importance: importance,
		MessageIDs: []int{pos},
		Sequence:   int64(pos) * model.SequenceStride,
	}
}

func TestAssignBucketsBoundaries(t *testing.T) {
	memories := []model.Memory{
		at("r", 4900, 3, "recent"),
		at("m1", 4899, 3, "mid edge"),
		at("m2", 4500, 3, "mid start"),
		at("o", 4499, 3, "old"),
	}
	b := AssignBuckets(memories, 5000, Sizes{CurrentScene: 100, LeadingUp: 500})
	assert.Equal(t, []string{"r"}, ids(b.Recent))
	assert.Equal(t, []string{"m2", "m1"}, ids(b.Mid))
	assert.Equal(t, []string{"o"}, ids(b.Old))
	assert.Equal(t, 4, b.Len())
}

func TestAssignBucketsZeroChatLengthIsRecent(t *testing.T) {
	memories := []model.Memory{at("b", 9, 3, "b"), at("a", 1, 3, "a")}
	b := AssignBuckets(memories, 0, DefaultSizes())
	assert.Empty(t, b.Old)
	assert.Empty(t, b.Mid)
	assert.Equal(t, []string{"a", "b"}, ids(b.Recent))
}

func TestAssignBucketsUsesSequenceWithoutMessageIDs(t *testing.T) {
	m := model.Memory{ID: "seq", Sequence: 4950 * model.SequenceStride}
	b := AssignBuckets([]model.Memory{m}, 5000, DefaultSizes())
	assert.Equal(t, []string{"seq"}, ids(b.Recent))
}

func TestRenderLayout(t *testing.T) {
	req := Request{
		Memories: []model.Memory{
			at("e", 4950, 1, "Alice hides"),
			at("c", 850, 5, "Bob stole the ledger"),
			at("a", 10, 3, "Alice arrived in town"),
			at("d", 4600, 4, "The ledger burned"),
			at("b", 700, 2, "Alice met Bob"),
		},
		ChatLength: 5000,
		Present:    []string{"Alice"},
		Characters: model.Characters{"alice": {CurrentEmotion: "anxious", EmotionIntensity: 7}},
		Budget:     1000,
	}
	req.Memories[1].IsSecret = true

	want := strings.Join([]string{
		"<scene_memory>",
		"(5000 messages so far)",
		"",
		"## The Story So Far",
		"[★★★] Alice arrived in town",
		"⋯ much later ⋯",
		"[★★] Alice met Bob",
		"⋯ later ⋯",
		"[★★★★★] [Secret] Bob stole the ledger",
		"",
		"## Leading Up To This Moment",
		"[★★★★] The ledger burned",
		"",
		"## Current Scene",
		"Present: Alice",
		"Emotional state: Alice feels anxious (7/10)",
		"[★] Alice hides",
		"</scene_memory>",
	}, "\n")

	res := Render(req)
	assert.Equal(t, want, res.Text)
	assert.Len(t, res.Included, 5)
	assert.Zero(t, res.Dropped)
}

func TestRenderEmptyStillWrapped(t *testing.T) {
	res := Render(Request{ChatLength: 12, Budget: 100})
	assert.Equal(t, "<scene_memory>\n(12 messages so far)\n</scene_memory>", res.Text)

	res = Render(Request{Memories: []model.Memory{at("a", 1, 3, "x")}, Budget: 0})
	assert.True(t, strings.HasPrefix(res.Text, "<scene_memory>"))
	assert.True(t, strings.HasSuffix(res.Text, "</scene_memory>"))
	assert.Empty(t, res.Included)
	assert.Equal(t, 1, res.Dropped)
}

func TestRenderNeverExceedsBudget(t *testing.T) {
	var memories []model.Memory
	for i := 0; i < 60; i++ {
		memories = append(memories, at(string(rune('A'+i)), i*97, i%5+1, strings.Repeat("word ", i%7+1)+"happened"))
	}
	req := Request{
		Memories:   memories,
		ChatLength: 6000,
		Present:    []string{"Alice", "Bob"},
		Characters: model.Characters{"Alice": {CurrentEmotion: "calm"}},
	}
	for budget := 8; budget <= 600; budget += 7 {
		req.Budget = budget
		res := Render(req)
		require.LessOrEqual(t, model.EstimateTokens(res.Text), budget, "budget %d", budget)
		require.True(t, strings.HasSuffix(res.Text, closeTag))
		assert.Equal(t, res.Tokens, model.EstimateTokens(res.Text))
	}
}

func TestRenderKeepsPriorityOrderUnderBudget(t *testing.T) {
	memories := []model.Memory{
		at("first", 4990, 5, "The most relevant memory of all"),
		at("second", 100, 1, strings.Repeat("filler ", 200)),
	}
	res := Render(Request{Memories: memories, ChatLength: 5000, Budget: 60})
	assert.Equal(t, []string{"first"}, ids(res.Included))
	assert.NotContains(t, res.Text, "filler")
}

func TestGapMarkerTiers(t *testing.T) {
	assert.Equal(t, "", GapMarker(15))
	assert.Equal(t, "⋯", GapMarker(16))
	assert.Equal(t, "⋯ later ⋯", GapMarker(101))
	assert.Equal(t, "⋯ much later ⋯", GapMarker(501))
}

func TestMemoryLine(t *testing.T) {
	assert.Equal(t, "[★★★] defaults to three", MemoryLine(model.Memory{Summary: "defaults \n to three"}))
	assert.Equal(t, "[★★★★★] [Secret] hidden", MemoryLine(model.Memory{Summary: "hidden", Importance: 9, IsSecret: true}))
}

func ids(memories []model.Memory) []string {
	out := make([]string, len(memories))
	for i, m := range memories {
		out[i] = m.ID
	}
	return out
}
