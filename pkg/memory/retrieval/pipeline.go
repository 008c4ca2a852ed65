// Package retrieval selects the memories to inject for a scene under a
// token budget.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Protocol-Lattice/recall/pkg/memory/engine"
	"github.com/Protocol-Lattice/recall/pkg/memory/format"
	"github.com/Protocol-Lattice/recall/pkg/memory/model"
	"github.com/Protocol-Lattice/recall/pkg/memory/pov"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Scorer ranks memories. engine.Service satisfies it.
type Scorer interface {
	Rank(ctx context.Context, memories []model.Memory, q engine.Query) ([]engine.Scored, error)
	RankSync(ctx context.Context, memories []model.Memory, q engine.Query) []engine.Scored
}

// Mode is how the final stage chose its memories.
type Mode string

const (
	ModeNone   Mode = "none"
	ModeSimple Mode = "simple"
	ModeSmart  Mode = "smart"
)

// Selection is the outcome of one retrieval call.
type Selection struct {
	// Memories in score order.
	Memories []engine.Scored
	Mode     Mode
	// FallbackReason is set when smart mode was attempted and rejected.
	FallbackReason string
	POVFallback    bool
	Accessible     int
	Stage1         int
	Stage1Tokens   int
	Tokens         int
}

// Plain returns the selected memories without scores.
func (s Selection) Plain() []model.Memory {
	return engine.Memories(s.Memories)
}

// Pipeline runs the access filter and the two selection stages.
type Pipeline struct {
	scorer   Scorer
	reranker Reranker
	smart    bool
	metrics  *Metrics
	logger   zerolog.Logger
}

func NewPipeline(scorer Scorer) *Pipeline {
	return &Pipeline{
		scorer:  scorer,
		metrics: &Metrics{},
		logger:  log.With().Str("component", "retrieval").Logger(),
	}
}

// WithReranker installs a smart re-ranker and enables smart mode.
func (p *Pipeline) WithReranker(r Reranker) *Pipeline {
	p.reranker = r
	p.smart = r != nil
	return p
}

// WithSmartMode toggles smart mode without removing the re-ranker.
func (p *Pipeline) WithSmartMode(enabled bool) *Pipeline {
	p.smart = enabled
	return p
}

func (p *Pipeline) WithLogger(l zerolog.Logger) *Pipeline {
	p.logger = l
	return p
}

func (p *Pipeline) MetricsSnapshot() MetricsSnapshot {
	return p.metrics.Snapshot()
}

// Select picks the memories to inject for rctx. It never fails: degraded
// collaborators fall back to simpler behaviour and an empty selection is a
// valid answer.
func (p *Pipeline) Select(ctx context.Context, memories []model.Memory, rctx model.RetrievalContext, characters model.Characters) Selection {
	p.metrics.IncSelections()
	if len(memories) == 0 || p.scorer == nil {
		p.metrics.IncEmpty()
		return Selection{Mode: ModeNone}
	}

	sel := Selection{Mode: ModeNone}
	accessible := pov.Filter(memories, rctx.POVCharacters, characters)
	if len(accessible) == 0 {
		// Visibility rules never fully starve retrieval.
		accessible = memories
		sel.POVFallback = true
		p.metrics.IncPOVFallbacks()
		p.logger.Debug().Strs("pov", rctx.POVCharacters).Int("candidates", len(memories)).Msg("no visible memories; using broader set")
	}
	sel.Accessible = len(accessible)

	if rctx.PreFilterTokens <= 0 || rctx.FinalTokens <= 0 {
		p.metrics.IncEmpty()
		return sel
	}

	scored := p.rank(ctx, accessible, rctx)
	stage1, stage1Tokens := greedy(scored, rctx.PreFilterTokens)
	p.metrics.AddRejected(len(scored) - len(stage1))
	sel.Stage1 = len(stage1)
	sel.Stage1Tokens = stage1Tokens
	if len(stage1) == 0 {
		p.metrics.IncEmpty()
		return sel
	}

	if p.smart && p.reranker != nil {
		if target := targetCount(stage1, rctx.FinalTokens); len(stage1) > target {
			p.metrics.IncSmartAttempts()
			out := p.smartSelect(ctx, stage1, rctx, target)
			if out.reason == "" {
				sel.Memories, sel.Tokens = greedy(out.selection, rctx.FinalTokens)
				sel.Mode = ModeSmart
				return sel
			}
			p.metrics.IncSmartFallbacks()
			sel.FallbackReason = out.reason
			p.logger.Debug().Str("reason", out.reason).Msg("smart selection rejected; using simple mode")
		}
	}

	sel.Memories, sel.Tokens = greedy(stage1, rctx.FinalTokens)
	sel.Mode = ModeSimple
	return sel
}

func (p *Pipeline) rank(ctx context.Context, memories []model.Memory, rctx model.RetrievalContext) []engine.Scored {
	q := engine.Query{Text: rctx.QueryText(), ChatLength: rctx.ChatLength}
	scored, err := p.scorer.Rank(ctx, memories, q)
	if err == nil {
		return scored
	}
	p.metrics.IncSyncFallbacks()
	p.logger.Warn().Err(err).Msg("offloaded scoring failed; scoring in-process")
	return p.scorer.RankSync(ctx, memories, q)
}

// greedy accepts memories in order while their running token cost fits the
// budget. The first memory that does not fit ends the run.
func greedy(scored []engine.Scored, budget int) ([]engine.Scored, int) {
	used := 0
	for i, s := range scored {
		cost := model.TokenCost(s.Memory)
		if used+cost > budget {
			return scored[:i], used
		}
		used += cost
	}
	return scored, used
}

// targetCount is how many average-sized memories fit the final budget.
func targetCount(scored []engine.Scored, budget int) int {
	total := 0
	for _, s := range scored {
		total += model.TokenCost(s.Memory)
	}
	avg := total / len(scored)
	if avg <= 0 {
		avg = 1
	}
	target := budget / avg
	if target < 1 {
		target = 1
	}
	return target
}

// smartOutcome is either a selection or the reason smart mode gave up.
type smartOutcome struct {
	selection []engine.Scored
	reason    string
}

func (p *Pipeline) smartSelect(ctx context.Context, stage1 []engine.Scored, rctx model.RetrievalContext, target int) smartOutcome {
	var list strings.Builder
	for i, s := range stage1 {
		fmt.Fprintf(&list, "%d. %s\n", i+1, format.MemoryLine(s.Memory))
	}
	scene := strings.TrimSpace(rctx.RecentContext)
	if scene == "" {
		scene = rctx.QueryText()
	}
	reply, err := p.reranker.Rerank(ctx, RerankRequest{
		Scene:    scene,
		Numbered: strings.TrimRight(list.String(), "\n"),
		POV:      pov.Label(rctx.POVCharacters),
		Target:   target,
	})
	if err != nil {
		p.logger.Debug().Err(err).Msg("rerank call failed")
		return smartOutcome{reason: reasonRerankError}
	}
	idx, reason := parseSelection(reply, len(stage1))
	if reason != "" {
		return smartOutcome{reason: reason}
	}
	sort.Ints(idx)
	out := make([]engine.Scored, len(idx))
	for i, j := range idx {
		out[i] = stage1[j]
	}
	return smartOutcome{selection: out}
}
