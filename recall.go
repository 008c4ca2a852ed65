// Package recall selects and formats the long-term memories a conversational
// agent should see for the current scene.
package recall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	utcptools "github.com/universal-tool-calling-protocol/go-utcp/src/tools"

	"github.com/Protocol-Lattice/recall/pkg/config"
	"github.com/Protocol-Lattice/recall/pkg/memory/embed"
	"github.com/Protocol-Lattice/recall/pkg/memory/engine"
	"github.com/Protocol-Lattice/recall/pkg/memory/format"
	"github.com/Protocol-Lattice/recall/pkg/memory/model"
	"github.com/Protocol-Lattice/recall/pkg/memory/pov"
	"github.com/Protocol-Lattice/recall/pkg/memory/retrieval"
	"github.com/Protocol-Lattice/recall/pkg/memory/store"
	"github.com/Protocol-Lattice/recall/pkg/models"
	"github.com/Protocol-Lattice/recall/pkg/tools"
)

const defaultBudget = 2000

// Recall wires a snapshot source to the scoring service, the selection
// pipeline and the formatter.
type Recall struct {
	source   store.Source
	svc      *engine.Service
	pipeline *retrieval.Pipeline
	sizes    format.Sizes
	budget   int
	logger   zerolog.Logger

	mu       sync.Mutex
	lastChat string
	closers  []io.Closer
}

// Options configure a new Recall.
type Options struct {
	Source   store.Source
	Embedder embed.Embedder
	// Reranker enables smart mode when set.
	Reranker retrieval.Reranker
	Engine   engine.Options
	Sizes    format.Sizes
	// Budget is the token limit of the rendered block.
	Budget int
	Logger *zerolog.Logger
}

// Result is one retrieval: the injectable block plus what produced it.
type Result struct {
	Text      string
	Selection retrieval.Selection
	Rendered  format.Result
}

// New creates a Recall with the provided options.
func New(opts Options) (*Recall, error) {
	if opts.Source == nil {
		return nil, errors.New("recall requires a snapshot source")
	}
	logger := log.With().Str("component", "recall").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	budget := opts.Budget
	if budget <= 0 {
		budget = defaultBudget
	}
	engineOpts := opts.Engine
	if engineOpts == (engine.Options{}) {
		engineOpts = engine.DefaultOptions()
	}

	svc := engine.NewService(engineOpts).WithLogger(logger.With().Str("component", "engine").Logger())
	if opts.Embedder != nil {
		svc.WithEmbedder(opts.Embedder)
	}
	pipeline := retrieval.NewPipeline(svc).WithLogger(logger.With().Str("component", "retrieval").Logger())
	if opts.Reranker != nil {
		pipeline.WithReranker(opts.Reranker)
	}

	return &Recall{
		source:   opts.Source,
		svc:      svc,
		pipeline: pipeline,
		sizes:    opts.Sizes,
		budget:   budget,
		logger:   logger,
	}, nil
}

// FromConfig opens the configured store, embedding provider and re-rank
// model and builds a Recall that owns them.
func FromConfig(ctx context.Context, cfg *config.Config) (*Recall, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	closers := []io.Closer{backend}

	embedder, err := embed.New(ctx, cfg.Embedding)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	if c, ok := embedder.(io.Closer); ok {
		closers = append(closers, c)
	}

	var reranker retrieval.Reranker
	if cfg.Retrieval.Smart {
		llm, err := models.NewLLMProvider(ctx, cfg.Rerank.Provider, cfg.Rerank.Model, "")
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("rerank model: %w", err)
		}
		reranker = retrieval.NewLLMReranker(llm)
	}

	r, err := New(Options{
		Source:   backend,
		Embedder: embedder,
		Reranker: reranker,
		Engine: engine.Options{
			Params:    cfg.Scoring,
			Offload:   cfg.Worker.Offload,
			Timeout:   cfg.Worker.Timeout,
			CacheSize: cfg.Worker.CacheSize,
		},
		Sizes:  cfg.Formatter.Sizes,
		Budget: cfg.Formatter.Budget,
	})
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	if r.svc.Cache() != nil && cfg.Embedding.BatchWidth > 0 {
		r.svc.Cache().WithBatchWidth(cfg.Embedding.BatchWidth)
	}
	r.closers = closers
	return r, nil
}

// Service exposes the scoring service, mainly for metrics.
func (r *Recall) Service() *engine.Service { return r.svc }

// Pipeline exposes the selection pipeline, mainly for metrics.
func (r *Recall) Pipeline() *retrieval.Pipeline { return r.pipeline }

// Retrieve renders the memory block for the scene described by rctx. A
// conversation without stored memories yields the empty wrapper. Only
// failures to load the snapshot are returned as errors.
func (r *Recall) Retrieve(ctx context.Context, chatID string, rctx model.RetrievalContext) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.load(ctx, chatID)
	if err != nil {
		return Result{}, err
	}
	sel := r.pipeline.Select(ctx, snap.Memories, rctx, snap.Characters)
	rendered := format.Render(format.Request{
		Memories:   sel.Plain(),
		ChatLength: rctx.ChatLength,
		Present:    rctx.ActiveCharacters,
		Characters: snap.Characters,
		Budget:     r.budget,
		Sizes:      r.sizes,
	})
	r.logger.Debug().
		Str("chat_id", chatID).
		Str("mode", string(sel.Mode)).
		Int("candidates", len(snap.Memories)).
		Int("selected", len(sel.Memories)).
		Int("rendered", len(rendered.Included)).
		Int("tokens", rendered.Tokens).
		Msg("retrieval complete")
	return Result{Text: rendered.Text, Selection: sel, Rendered: rendered}, nil
}

// Rank scores every memory visible from rctx's point of view without
// applying budgets.
func (r *Recall) Rank(ctx context.Context, chatID string, rctx model.RetrievalContext) ([]engine.Scored, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	visible := pov.Filter(snap.Memories, rctx.POVCharacters, snap.Characters)
	if len(visible) == 0 {
		visible = snap.Memories
	}
	q := engine.Query{Text: rctx.QueryText(), ChatLength: rctx.ChatLength}
	scored, err := r.svc.Rank(ctx, visible, q)
	if err != nil {
		r.logger.Warn().Err(err).Msg("offloaded scoring failed; scoring in-process")
		scored = r.svc.RankSync(ctx, visible, q)
	}
	return scored, nil
}

// Backfill embeds and persists every memory of chatID still lacking a
// vector. It returns how many were embedded.
func (r *Recall) Backfill(ctx context.Context, chatID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.source.Load(ctx, chatID)
	if err != nil {
		return 0, err
	}
	updated := embed.Backfill(ctx, r.svc.Cache(), snap.Memories)
	if len(updated) == 0 {
		return 0, nil
	}
	if err := r.source.SaveEmbeddings(ctx, chatID, updated); err != nil {
		return 0, fmt.Errorf("save embeddings: %w", err)
	}
	r.svc.Invalidate()
	return len(updated), nil
}

// AsUTCPTool exposes Retrieve as a UTCP tool. Register it with
// tools.RegisterUTCPProvider.
func (r *Recall) AsUTCPTool(name, description string, defaults tools.Defaults) utcptools.Tool {
	return tools.RetrieveTool(name, description, tools.RetrieverFunc(
		func(ctx context.Context, chatID string, rctx model.RetrievalContext) (tools.RetrieveResult, error) {
			res, err := r.Retrieve(ctx, chatID, rctx)
			if err != nil {
				return tools.RetrieveResult{}, err
			}
			ids := make([]string, len(res.Rendered.Included))
			for i, m := range res.Rendered.Included {
				ids[i] = m.ID
			}
			return tools.RetrieveResult{Text: res.Text, Mode: string(res.Selection.Mode), Selected: ids}, nil
		}), defaults)
}

// load reads the snapshot and backfills missing embeddings. The worker's
// synced set is invalidated whenever the conversation or its vectors change
// since sync avoidance only compares set sizes.
func (r *Recall) load(ctx context.Context, chatID string) (store.Snapshot, error) {
	if strings.TrimSpace(chatID) == "" {
		return store.Snapshot{}, errors.New("chat id is empty")
	}
	snap, err := r.source.Load(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Snapshot{Characters: model.Characters{}}, nil
	}
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load %s: %w", chatID, err)
	}
	if chatID != r.lastChat {
		r.svc.Invalidate()
		r.lastChat = chatID
	}
	updated := embed.Backfill(ctx, r.svc.Cache(), snap.Memories)
	if len(updated) > 0 {
		r.svc.Invalidate()
		if err := r.source.SaveEmbeddings(ctx, chatID, updated); err != nil {
			r.logger.Warn().Err(err).Str("chat_id", chatID).Int("count", len(updated)).Msg("failed to persist embeddings")
		}
	}
	return snap, nil
}

// Close stops the scoring worker and releases owned resources.
func (r *Recall) Close() error {
	err := r.svc.Close()
	return errors.Join(err, closeAll(r.closers))
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
