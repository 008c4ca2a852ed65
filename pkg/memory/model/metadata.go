package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Host stores are loosely typed: numbers may arrive as strings or floats and
// lists as []any. The helpers below coerce such values defensively.

func FloatFromAny(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func IntFromAny(v any) int {
	f := FloatFromAny(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Round(f))
}

func StringFromAny(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func BoolFromAny(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case int, int32, int64, float32, float64:
		return FloatFromAny(t) != 0
	}
	return false
}

func StringSliceFromAny(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, val := range t {
			if s := strings.TrimSpace(StringFromAny(val)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		var arr []string
		if err := json.Unmarshal([]byte(t), &arr); err == nil {
			return arr
		}
		return []string{t}
	}
	return nil
}

func IntSliceFromAny(v any) []int {
	switch t := v.(type) {
	case nil:
		return nil
	case []int:
		return append([]int(nil), t...)
	case []int32:
		out := make([]int, len(t))
		for i, val := range t {
			out[i] = int(val)
		}
		return out
	case []int64:
		out := make([]int, len(t))
		for i, val := range t {
			out[i] = int(val)
		}
		return out
	case []any:
		out := make([]int, 0, len(t))
		for _, val := range t {
			out = append(out, IntFromAny(val))
		}
		return out
	case string:
		var arr []int
		if err := json.Unmarshal([]byte(t), &arr); err == nil {
			return arr
		}
	}
	return nil
}

func Float32SliceFromAny(v any) []float32 {
	switch t := v.(type) {
	case nil:
		return nil
	case []float32:
		out := make([]float32, len(t))
		copy(out, t)
		return out
	case []float64:
		out := make([]float32, len(t))
		for i, val := range t {
			out[i] = float32(val)
		}
		return out
	case []any:
		out := make([]float32, 0, len(t))
		for _, val := range t {
			out = append(out, float32(FloatFromAny(val)))
		}
		return out
	case json.RawMessage:
		var arr []float64
		if err := json.Unmarshal(t, &arr); err == nil {
			return Float32SliceFromAny(arr)
		}
	case string:
		if t == "" {
			return nil
		}
		var arr []float64
		if err := json.Unmarshal([]byte(t), &arr); err == nil {
			return Float32SliceFromAny(arr)
		}
	}
	return nil
}

// MemoryFromMap decodes a loosely typed memory document.
func MemoryFromMap(doc map[string]any) Memory {
	m := Memory{
		ID:                 StringFromAny(doc["id"]),
		Summary:            StringFromAny(doc["summary"]),
		Importance:         IntFromAny(doc["importance"]),
		MessageIDs:         IntSliceFromAny(doc["message_ids"]),
		Sequence:           int64(FloatFromAny(doc["sequence"])),
		CharactersInvolved: StringSliceFromAny(doc["characters_involved"]),
		Witnesses:          StringSliceFromAny(doc["witnesses"]),
		IsSecret:           BoolFromAny(doc["is_secret"]),
		Embedding:          Float32SliceFromAny(doc["embedding"]),
		Tags:               StringSliceFromAny(doc["tags"]),
	}
	return m.Normalized()
}
