package model

import (
	"sort"
	"strings"
)

const (
	MinImportance     = 1
	MaxImportance     = 5
	DefaultImportance = 3

	// SequenceStride separates sequence numbers of memories extracted from
	// consecutive messages: sequence = earliest message id * SequenceStride + ordinal.
	SequenceStride = 1000
)

// Memory is a fact extracted from the conversation. It is immutable once
// created except for Embedding, which is filled in lazily.
type Memory struct {
	ID                 string    `json:"id"`
	Summary            string    `json:"summary"`
	Importance         int       `json:"importance"`
	MessageIDs         []int     `json:"message_ids"`
	Sequence           int64     `json:"sequence"`
	CharactersInvolved []string  `json:"characters_involved,omitempty"`
	Witnesses          []string  `json:"witnesses,omitempty"`
	IsSecret           bool      `json:"is_secret,omitempty"`
	Embedding          []float32 `json:"embedding,omitempty"`
	Tags               []string  `json:"tags,omitempty"`
}

// Normalized returns a copy with defensive defaults applied: a missing
// importance becomes DefaultImportance and out-of-range values are clamped.
func (m Memory) Normalized() Memory {
	if m.Importance == 0 {
		m.Importance = DefaultImportance
	}
	m.Importance = ClampImportance(m.Importance)
	return m
}

// Position is the message index the memory is anchored to for decay
// purposes: the latest source message, or 0 when there are none.
func (m Memory) Position() int {
	if len(m.MessageIDs) == 0 {
		return 0
	}
	maxID := m.MessageIDs[0]
	for _, id := range m.MessageIDs[1:] {
		if id > maxID {
			maxID = id
		}
	}
	if maxID < 0 {
		return 0
	}
	return maxID
}

// Distance is the number of messages between the memory and the end of a
// conversation of chatLength messages. It is never negative.
func (m Memory) Distance(chatLength int) float64 {
	d := chatLength - m.Position()
	if d < 0 {
		return 0
	}
	return float64(d)
}

// DisplayPosition is the mean of the source message ids, falling back to an
// estimate derived from the sequence number.
func (m Memory) DisplayPosition() float64 {
	if len(m.MessageIDs) == 0 {
		if m.Sequence <= 0 {
			return 0
		}
		return float64(m.Sequence / SequenceStride)
	}
	sum := 0
	for _, id := range m.MessageIDs {
		sum += id
	}
	return float64(sum) / float64(len(m.MessageIDs))
}

// EmbeddingText is the text embedded for a memory: the summary prefixed by
// its tags, e.g. "[COMBAT] [INJURY] Alice was wounded".
func (m Memory) EmbeddingText() string {
	summary := strings.TrimSpace(m.Summary)
	if len(m.Tags) == 0 {
		return summary
	}
	var b strings.Builder
	for _, tag := range m.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(strings.ToUpper(tag))
		b.WriteString("] ")
	}
	b.WriteString(summary)
	return b.String()
}

// HasEmbedding reports whether the memory carries a usable vector.
func (m Memory) HasEmbedding() bool { return len(m.Embedding) > 0 }

// NextSequence derives the sequence key for the ordinal-th memory extracted
// from a batch whose earliest source message is messageID.
func NextSequence(messageIDs []int, ordinal int) int64 {
	earliest := 0
	if len(messageIDs) > 0 {
		ids := append([]int(nil), messageIDs...)
		sort.Ints(ids)
		earliest = ids[0]
	}
	return int64(earliest)*SequenceStride + int64(ordinal)
}

// ClampImportance forces importance into [MinImportance, MaxImportance].
func ClampImportance(importance int) int {
	if importance < MinImportance {
		return MinImportance
	}
	if importance > MaxImportance {
		return MaxImportance
	}
	return importance
}

// CharacterState is the derived per-character state read by the POV filter
// and the formatter.
type CharacterState struct {
	Name             string   `json:"name,omitempty"`
	CurrentEmotion   string   `json:"current_emotion,omitempty"`
	EmotionIntensity int      `json:"emotion_intensity,omitempty"`
	KnownEvents      []string `json:"known_events,omitempty"`
}

// Knows reports whether the character explicitly knows the memory id.
func (s CharacterState) Knows(memoryID string) bool {
	if memoryID == "" {
		return false
	}
	for _, id := range s.KnownEvents {
		if id == memoryID {
			return true
		}
	}
	return false
}

// Characters maps character names to their state. Lookups are case-insensitive.
type Characters map[string]CharacterState

// Lookup finds a character by name ignoring case and surrounding whitespace.
func (c Characters) Lookup(name string) (CharacterState, bool) {
	if len(c) == 0 {
		return CharacterState{}, false
	}
	if st, ok := c[name]; ok {
		return st, true
	}
	key := NormalizeName(name)
	for k, st := range c {
		if NormalizeName(k) == key {
			return st, true
		}
	}
	return CharacterState{}, false
}

// Ensure returns the state for name, creating an empty one on first reference.
func (c Characters) Ensure(name string) CharacterState {
	if st, ok := c.Lookup(name); ok {
		return st
	}
	st := CharacterState{Name: name}
	c[name] = st
	return st
}

// NormalizeName canonicalises a character name for comparisons.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ContainsName reports whether names contains name, ignoring case.
func ContainsName(names []string, name string) bool {
	key := NormalizeName(name)
	if key == "" {
		return false
	}
	for _, n := range names {
		if NormalizeName(n) == key {
			return true
		}
	}
	return false
}
