package model

import (
	"strings"
	"unicode/utf8"
)

const (
	// CharsPerToken approximates how many characters one LLM token covers.
	CharsPerToken = 4

	// LineOverheadTokens is the rendering cost of one memory line on top of
	// its summary (bullet, importance marker, newline).
	LineOverheadTokens = 3

	// MaxUserMessages caps how many recent user utterances feed a query.
	MaxUserMessages = 3

	// MaxQueryChars caps the length of the text embedded for a query.
	MaxQueryChars = 1000
)

// RetrievalContext describes the scene a retrieval call is made for. It is
// built fresh per call and never persisted.
type RetrievalContext struct {
	RecentContext    string   `json:"recent_context,omitempty"`
	UserMessages     []string `json:"user_messages,omitempty"`
	ChatLength       int      `json:"chat_length"`
	POVCharacters    []string `json:"pov_characters,omitempty"`
	ActiveCharacters []string `json:"active_characters,omitempty"`
	PreFilterTokens  int      `json:"pre_filter_tokens"`
	FinalTokens      int      `json:"final_tokens"`
}

// QueryText is the text used to embed and keyword-match the scene: the last
// few user utterances, or the recent context when there are none.
func (c RetrievalContext) QueryText() string {
	msgs := c.UserMessages
	if len(msgs) > MaxUserMessages {
		msgs = msgs[len(msgs)-MaxUserMessages:]
	}
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg = strings.TrimSpace(msg); msg != "" {
			parts = append(parts, msg)
		}
	}
	text := strings.Join(parts, "\n")
	if text == "" {
		text = strings.TrimSpace(c.RecentContext)
	}
	return TruncateRunes(text, MaxQueryChars)
}

// EstimateTokens approximates the token cost of text.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + CharsPerToken - 1) / CharsPerToken
}

// TokenCost is the approximate cost of injecting the memory.
func TokenCost(m Memory) int {
	return EstimateTokens(m.Summary) + LineOverheadTokens
}

// TotalTokenCost sums TokenCost over memories.
func TotalTokenCost(memories []Memory) int {
	total := 0
	for _, m := range memories {
		total += TokenCost(m)
	}
	return total
}

// TruncateRunes shortens s to at most limit runes, keeping the tail since
// the most recent text matters most for a query.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-limit:])
}
