package models

import (
	"context"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
)

const (
	// SelectionMaxTokens caps a re-rank reply: a list of indices and a
	// sentence of reasoning.
	SelectionMaxTokens = 256

	// JSONOnlyInstruction is sent as the system prompt to providers that
	// accept one, so selection replies parse without stripping prose.
	JSONOnlyInstruction = "You select memories for a storyteller. Reply with a single JSON object of the form " +
		`{"selected": [indices], "reasoning": "..."} and nothing else.`
)

// Agent is a single-turn text completion provider.
type Agent interface {
	Generate(context.Context, string) (any, error)
}

// Text coerces a provider response into plain text.
func Text(resp any) string {
	switch v := resp.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case genai.Text:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			if s := Text(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "")
	default:
		return fmt.Sprint(v)
	}
}

func withPrefix(prefix, prompt, sep string) string {
	if strings.TrimSpace(prefix) == "" {
		return prompt
	}
	return prefix + sep + prompt
}
