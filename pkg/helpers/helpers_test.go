package helpers

import (
	"testing"

	"github.com/Protocol-Lattice/recall/pkg/memory/engine"
	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

func TestParseWeightsFlag(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]float64
	}{
		{"empty", "", nil},
		{"invalid pairs ignored", "alpha,beta=oops", nil},
		{"mix valid and invalid", "alpha=1.2, beta = 0.5, gamma=bad", map[string]float64{"alpha": 1.2, "beta": 0.5}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseWeightsFlag(tc.input)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d entries, got %d", len(tc.want), len(got))
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Fatalf("expected %s -> %v, got %v", k, v, got[k])
				}
			}
		})
	}
}

func TestApplyParamOverrides(t *testing.T) {
	p, err := ApplyParamOverrides(engine.DefaultParams(), map[string]float64{"vector_weight": 10, "B": 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.VectorWeight != 10 {
		t.Fatalf("expected vector weight 10, got %v", p.VectorWeight)
	}
	if p.B != 1 {
		t.Fatalf("expected b clamped to 1, got %v", p.B)
	}
	if _, err := ApplyParamOverrides(engine.DefaultParams(), map[string]float64{"gamma": 1}); err == nil {
		t.Fatalf("expected error for unknown parameter")
	}
}

func TestMemoryIDs(t *testing.T) {
	if got := MemoryIDs(nil); got != "<none>" {
		t.Fatalf("expected <none> for nil slice, got %q", got)
	}
	scored := []engine.Scored{{Memory: model.Memory{ID: "m1"}}, {Memory: model.Memory{ID: "m2"}}}
	if got := MemoryIDs(scored); got != "m1, m2" {
		t.Fatalf("unexpected ids: %q", got)
	}
}

func TestParseCSVList(t *testing.T) {
	if got := ParseCSVList("   "); got != nil {
		t.Fatalf("expected nil for whitespace input, got %#v", got)
	}
	list := ParseCSVList("one, two, , three")
	want := []string{"one", "two", "three"}
	if len(list) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(list))
	}
	for i, v := range want {
		if list[i] != v {
			t.Fatalf("entry %d: expected %q, got %q", i, v, list[i])
		}
	}
}
