// Package helpers holds small parsing and display utilities shared by the
// command line tools.
package helpers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Protocol-Lattice/recall/pkg/memory/engine"
)

// ParseCSVList splits a comma separated flag value, dropping blanks.
func ParseCSVList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseWeightsFlag parses "name=value" pairs such as
// "vector_weight=10,keyword_weight=2". Invalid pairs are ignored.
func ParseWeightsFlag(raw string) map[string]float64 {
	var out map[string]float64
	for _, pair := range ParseCSVList(raw) {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		if out == nil {
			out = make(map[string]float64)
		}
		out[strings.TrimSpace(name)] = f
	}
	return out
}

// ApplyParamOverrides sets the named scoring constants on p.
func ApplyParamOverrides(p engine.Params, overrides map[string]float64) (engine.Params, error) {
	for name, v := range overrides {
		switch strings.ToLower(name) {
		case "base_lambda":
			p.BaseLambda = v
		case "importance5_floor":
			p.Importance5Floor = v
		case "vector_threshold":
			p.VectorThreshold = v
		case "vector_weight":
			p.VectorWeight = v
		case "keyword_weight":
			p.KeywordWeight = v
		case "k1":
			p.K1 = v
		case "b":
			p.B = v
		default:
			return p, fmt.Errorf("unknown scoring parameter %q", name)
		}
	}
	return p.Normalized(), nil
}

// MemoryIDs lists the ids of scored memories for display.
func MemoryIDs(scored []engine.Scored) string {
	if len(scored) == 0 {
		return "<none>"
	}
	ids := make([]string, len(scored))
	for i, s := range scored {
		ids[i] = s.Memory.ID
	}
	return strings.Join(ids, ", ")
}
