// Package pov decides which memories a set of point-of-view characters may
// know about.
package pov

import (
	"strings"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

// Rule names the channel through which a memory became visible.
type Rule string

const (
	RuleUnrestricted Rule = "unrestricted"
	RuleWitnessed    Rule = "witnessed"
	RuleInvolved     Rule = "involved"
	RuleKnown        Rule = "known_event"
	RuleHidden       Rule = ""
)

// Visibility explains why a memory is visible to a POV set. Rules are checked
// in order: witnessing, public involvement, explicit knowledge. Any POV
// character satisfying any rule is enough.
func Visibility(m model.Memory, povCharacters []string, characters model.Characters) Rule {
	if len(povCharacters) == 0 {
		return RuleUnrestricted
	}
	for _, name := range povCharacters {
		if model.ContainsName(m.Witnesses, name) {
			return RuleWitnessed
		}
	}
	if !m.IsSecret {
		for _, name := range povCharacters {
			if model.ContainsName(m.CharactersInvolved, name) {
				return RuleInvolved
			}
		}
	}
	for _, name := range povCharacters {
		if st, ok := characters.Lookup(name); ok && st.Knows(m.ID) {
			return RuleKnown
		}
	}
	return RuleHidden
}

// CanSee reports whether any POV character may know about m.
func CanSee(m model.Memory, povCharacters []string, characters model.Characters) bool {
	return Visibility(m, povCharacters, characters) != RuleHidden
}

// Filter returns the memories visible to the POV set, preserving input order.
// An empty POV set is unrestricted.
func Filter(memories []model.Memory, povCharacters []string, characters model.Characters) []model.Memory {
	povCharacters = compact(povCharacters)
	if len(povCharacters) == 0 {
		return memories
	}
	out := make([]model.Memory, 0, len(memories))
	for _, m := range memories {
		if CanSee(m, povCharacters, characters) {
			out = append(out, m)
		}
	}
	return out
}

// Label renders a POV set for prompts: "Alice", "Alice and Bob",
// "Alice, Bob and Carol". An empty set reads as the narrator.
func Label(povCharacters []string) string {
	names := compact(povCharacters)
	switch len(names) {
	case 0:
		return "the narrator"
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

// compact trims names and drops blanks and case-insensitive duplicates.
func compact(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || model.ContainsName(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}
