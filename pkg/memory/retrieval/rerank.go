package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Protocol-Lattice/recall/pkg/models"
	"github.com/tidwall/gjson"
)

// RerankRequest is what a smart re-ranker is shown.
type RerankRequest struct {
	Scene string
	// Numbered is the candidate list, one "N. line" entry per memory,
	// numbered from 1.
	Numbered string
	POV      string
	Target   int
}

// Reranker picks the final memories from a numbered list. The reply must
// contain a JSON object such as {"selected": [3, 1, 7]}.
type Reranker interface {
	Rerank(ctx context.Context, req RerankRequest) (string, error)
}

// LLMReranker asks a language model to choose.
type LLMReranker struct {
	Model models.Agent
}

func NewLLMReranker(model models.Agent) *LLMReranker {
	return &LLMReranker{Model: model}
}

func (r *LLMReranker) Rerank(ctx context.Context, req RerankRequest) (string, error) {
	if r == nil || r.Model == nil {
		return "", errors.New("reranker has no model")
	}
	resp, err := r.Model.Generate(ctx, BuildRerankPrompt(req))
	if err != nil {
		return "", err
	}
	return models.Text(resp), nil
}

// BuildRerankPrompt renders the selection instructions for a model.
func BuildRerankPrompt(req RerankRequest) string {
	var b strings.Builder
	b.WriteString("You decide which memories a storyteller should recall for the current scene.\n")
	fmt.Fprintf(&b, "Point of view: %s\n\n", req.POV)
	b.WriteString("Current scene:\n")
	b.WriteString(strings.TrimSpace(req.Scene))
	b.WriteString("\n\nMemories:\n")
	b.WriteString(req.Numbered)
	fmt.Fprintf(&b, "\n\nChoose up to %d memories that matter most right now. ", req.Target)
	b.WriteString(`Reply with JSON only, for example {"selected": [2, 5, 1]}.`)
	return b.String()
}

// Reasons a smart selection was rejected.
const (
	reasonRerankError = "rerank_error"
	reasonNoJSON      = "no_json_object"
	reasonNoSelection = "empty_selection"
	reasonBadIndex    = "unresolvable_index"
)

// parseSelection extracts the 1-based indices from a re-ranker reply and
// converts them to 0-based positions in a list of n items. Every index must
// resolve; duplicates are dropped.
func parseSelection(reply string, n int) ([]int, string) {
	obj, ok := firstJSONObject(reply)
	if !ok {
		return nil, reasonNoJSON
	}
	selected := gjson.Get(obj, "selected")
	if !selected.IsArray() || len(selected.Array()) == 0 {
		return nil, reasonNoSelection
	}
	seen := make(map[int]struct{})
	out := make([]int, 0, len(selected.Array()))
	for _, v := range selected.Array() {
		if v.Type != gjson.Number || v.Num != math.Trunc(v.Num) {
			return nil, reasonBadIndex
		}
		idx := int(v.Num)
		if idx < 1 || idx > n {
			return nil, reasonBadIndex
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx-1)
	}
	return out, ""
}

// firstJSONObject returns the first balanced, valid JSON object in text.
// Models often wrap JSON in prose or code fences.
func firstJSONObject(text string) (string, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			candidate := text[start : end+1]
			if gjson.Valid(candidate) {
				return candidate, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
