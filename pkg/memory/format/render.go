package format

import (
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

const (
	openTag  = "<scene_memory>"
	closeTag = "</scene_memory>"

	headerOld    = "## The Story So Far"
	headerMid    = "## Leading Up To This Moment"
	headerRecent = "## Current Scene"

	// gapAllowance is reserved per memory for a possible gap marker.
	gapAllowance = 2
)

// Request describes one rendering.
type Request struct {
	// Memories in priority order; the budget is filled front to back.
	Memories   []model.Memory
	ChatLength int
	// Present lists the characters in the current scene.
	Present    []string
	Characters model.Characters
	// Budget is the token limit for the whole block. A non-positive budget
	// renders no memories.
	Budget int
	Sizes  Sizes
}

// Result is the rendered block and the memories that made it in.
type Result struct {
	Text     string
	Included []model.Memory
	Dropped  int
	Tokens   int
}

// Stars renders importance as a run of stars.
func Stars(importance int) string {
	return strings.Repeat("★", model.ClampImportance(importance))
}

// MemoryLine is the single-line rendering of a memory.
func MemoryLine(m model.Memory) string {
	m = m.Normalized()
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(Stars(m.Importance))
	b.WriteString("] ")
	if m.IsSecret {
		b.WriteString("[Secret] ")
	}
	b.WriteString(strings.Join(strings.Fields(m.Summary), " "))
	return b.String()
}

// GapMarker is the separator placed between consecutive old memories that
// are gap messages apart, or "" when they are close.
func GapMarker(gap float64) string {
	switch {
	case gap > 500:
		return "⋯ much later ⋯"
	case gap > 100:
		return "⋯ later ⋯"
	case gap > 15:
		return "⋯"
	default:
		return ""
	}
}

// Render lays out the memories within the token budget. The wrapper is
// always emitted, even when no memory fits.
func Render(req Request) Result {
	req.Sizes = req.Sizes.withDefaults()
	annotations := sceneAnnotations(req.Present, req.Characters)

	overhead := model.EstimateTokens(renderBlock(req, Buckets{}, annotations))
	for _, h := range []string{headerOld, headerMid, headerRecent} {
		overhead += model.EstimateTokens(h) + 1
	}

	var included []model.Memory
	if req.Budget > 0 {
		remaining := req.Budget - overhead
		for _, m := range req.Memories {
			cost := model.EstimateTokens(MemoryLine(m)) + gapAllowance
			if cost > remaining {
				break
			}
			remaining -= cost
			included = append(included, m)
		}
	}

	text := renderBlock(req, AssignBuckets(included, req.ChatLength, req.Sizes), annotations)
	for len(included) > 0 && model.EstimateTokens(text) > req.Budget {
		included = included[:len(included)-1]
		text = renderBlock(req, AssignBuckets(included, req.ChatLength, req.Sizes), annotations)
	}
	if len(included) == 0 && model.EstimateTokens(text) > req.Budget {
		text = openTag + "\n" + closeTag
	}

	return Result{
		Text:     text,
		Included: included,
		Dropped:  len(req.Memories) - len(included),
		Tokens:   model.EstimateTokens(text),
	}
}

func renderBlock(req Request, b Buckets, annotations []string) string {
	var sb strings.Builder
	sb.WriteString(openTag)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "(%d messages so far)\n", req.ChatLength)

	if len(b.Old) > 0 {
		sb.WriteString("\n" + headerOld + "\n")
		prev := -1.0
		for i, m := range b.Old {
			pos := m.DisplayPosition()
			if i > 0 {
				if marker := GapMarker(pos - prev); marker != "" {
					sb.WriteString(marker + "\n")
				}
			}
			prev = pos
			sb.WriteString(MemoryLine(m) + "\n")
		}
	}
	if len(b.Mid) > 0 {
		sb.WriteString("\n" + headerMid + "\n")
		for _, m := range b.Mid {
			sb.WriteString(MemoryLine(m) + "\n")
		}
	}
	if len(b.Recent) > 0 || len(annotations) > 0 {
		sb.WriteString("\n" + headerRecent + "\n")
		for _, a := range annotations {
			sb.WriteString(a + "\n")
		}
		for _, m := range b.Recent {
			sb.WriteString(MemoryLine(m) + "\n")
		}
	}
	sb.WriteString(closeTag)
	return sb.String()
}

// sceneAnnotations lists who is present and how they feel.
func sceneAnnotations(present []string, chars model.Characters) []string {
	var names []string
	for _, n := range present {
		n = strings.TrimSpace(n)
		if n != "" && !model.ContainsName(names, n) {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil
	}
	out := []string{"Present: " + strings.Join(names, ", ")}
	var moods []string
	for _, n := range names {
		st, ok := chars.Lookup(n)
		if !ok || strings.TrimSpace(st.CurrentEmotion) == "" {
			continue
		}
		mood := fmt.Sprintf("%s feels %s", n, strings.TrimSpace(st.CurrentEmotion))
		if st.EmotionIntensity > 0 {
			mood += fmt.Sprintf(" (%d/10)", st.EmotionIntensity)
		}
		moods = append(moods, mood)
	}
	if len(moods) > 0 {
		out = append(out, "Emotional state: "+strings.Join(moods, "; "))
	}
	return out
}
