package pov

import (
	"testing"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
	"github.com/stretchr/testify/assert"
)

func fixtures() ([]model.Memory, model.Characters) {
	memories := []model.Memory{
		{ID: "witnessed", Summary: "Alice saw the theft", Witnesses: []string{"alice"}, IsSecret: true},
		{ID: "public", Summary: "Bob greeted Carol", CharactersInvolved: []string{"Bob", "Carol"}},
		{ID: "secret", Summary: "Bob poisoned the wine", CharactersInvolved: []string{"Bob"}, IsSecret: true},
		{ID: "told", Summary: "The king died", IsSecret: true},
		{ID: "unrelated", Summary: "Dave fished"},
	}
	chars := model.Characters{
		"Carol": {KnownEvents: []string{"told"}},
	}
	return memories, chars
}

func ids(memories []model.Memory) []string {
	out := make([]string, len(memories))
	for i, m := range memories {
		out[i] = m.ID
	}
	return out
}

func TestFilterRules(t *testing.T) {
	memories, chars := fixtures()

	tests := []struct {
		name string
		pov  []string
		want []string
	}{
		{"empty pov sees everything", nil, []string{"witnessed", "public", "secret", "told", "unrelated"}},
		{"witness match ignores case", []string{"ALICE"}, []string{"witnessed"}},
		{"secret involvement is hidden", []string{"Bob"}, []string{"public"}},
		{"known events", []string{"carol"}, []string{"public", "told"}},
		{"union across characters", []string{"Alice", "Carol"}, []string{"witnessed", "public", "told"}},
		{"unknown character", []string{"Zed"}, []string{}},
		{"blank names are ignored", []string{" ", ""}, []string{"witnessed", "public", "secret", "told", "unrelated"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Filter(memories, tt.pov, chars)))
		})
	}
}

func TestFilterNeverDropsWitnessedMemories(t *testing.T) {
	memories, chars := fixtures()
	for _, pov := range [][]string{{"Alice"}, {"alice", "Bob"}, {"Zed", "Alice"}} {
		got := Filter(memories, pov, chars)
		assert.Contains(t, ids(got), "witnessed")
		for _, m := range got {
			assert.Contains(t, ids(memories), m.ID)
		}
	}
}

func TestVisibilityReportsRule(t *testing.T) {
	memories, chars := fixtures()
	assert.Equal(t, RuleWitnessed, Visibility(memories[0], []string{"Alice"}, chars))
	assert.Equal(t, RuleInvolved, Visibility(memories[1], []string{"Bob"}, chars))
	assert.Equal(t, RuleKnown, Visibility(memories[3], []string{"Carol"}, chars))
	assert.Equal(t, RuleHidden, Visibility(memories[2], []string{"Carol"}, chars))
	assert.Equal(t, RuleUnrestricted, Visibility(memories[2], nil, chars))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "the narrator", Label(nil))
	assert.Equal(t, "Alice", Label([]string{" Alice "}))
	assert.Equal(t, "Alice and Bob", Label([]string{"Alice", "Bob", "alice"}))
	assert.Equal(t, "Alice, Bob and Carol", Label([]string{"Alice", "Bob", "Carol"}))
}
