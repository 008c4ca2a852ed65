package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Protocol-Lattice/recall/pkg/memory/embed"
	"github.com/Protocol-Lattice/recall/pkg/memory/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrWorkerTimeout  = errors.New("scoring worker timed out")
	ErrWorkerCrashed  = errors.New("scoring worker crashed")
	ErrMalformedReply = errors.New("malformed scoring worker reply")
	ErrServiceClosed  = errors.New("scoring service closed")
)

// Service ranks memories against a scene. It owns the query embedding
// cache, the background worker and the worker's sync state.
//
// Offloaded calls are serialised. Calls for different conversations share
// the sync state, so the caller must serialise retrieval per conversation.
type Service struct {
	opts    Options
	cache   *embed.Cache
	score   scoreFunc
	metrics *Metrics
	logger  zerolog.Logger

	callMu sync.Mutex

	mu          sync.Mutex
	worker      *worker
	state  WorkerState
	synced fingerprint
	closed bool
}

// NewService constructs a Service. Without WithEmbedder or WithCache no
// query embeddings are computed and the vector bonus is always zero.
func NewService(opts Options) *Service {
	opts = opts.withDefaults()
	return &Service{
		opts:    opts,
		cache:   embed.NewCache(nil, opts.CacheSize),
		score:   Score,
		metrics: &Metrics{},
		logger:  log.With().Str("component", "scoring").Logger(),
	}
}

// WithEmbedder replaces the cache with one backed by embedder.
func (s *Service) WithEmbedder(embedder embed.Embedder) *Service {
	if embedder != nil {
		s.cache = embed.NewCache(embedder, s.opts.CacheSize).WithLogger(s.logger)
	}
	return s
}

// WithCache shares an existing embedding cache.
func (s *Service) WithCache(c *embed.Cache) *Service {
	if c != nil {
		s.cache = c
	}
	return s
}

func (s *Service) WithLogger(logger zerolog.Logger) *Service {
	s.logger = logger
	return s
}

func (s *Service) Cache() *embed.Cache { return s.cache }

func (s *Service) Params() Params { return s.opts.Params }

// MetricsSnapshot returns a copy of the runtime counters.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// State reports the worker lifecycle state.
func (s *Service) State() WorkerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EmbedQuery returns the cached query embedding for scene text, or nil.
func (s *Service) EmbedQuery(ctx context.Context, text string) []float32 {
	if s.cache == nil {
		return nil
	}
	return s.cache.GetOrComputeQuery(ctx, text)
}

func (s *Service) prepare(ctx context.Context, q Query) Query {
	if len(q.Embedding) == 0 && q.Text != "" {
		q.Embedding = s.EmbedQuery(ctx, q.Text)
	}
	return q
}

// RankSync ranks memories on the caller's goroutine.
func (s *Service) RankSync(ctx context.Context, memories []model.Memory, q Query) []Scored {
	if len(memories) == 0 {
		return nil
	}
	s.metrics.IncRanks()
	return s.score(memories, s.prepare(ctx, q), s.opts.Params)
}

// Rank ranks memories, offloading to the background worker when enabled.
// A failed offloaded call tears the worker down and returns an error; the
// caller may retry with RankSync.
func (s *Service) Rank(ctx context.Context, memories []model.Memory, q Query) ([]Scored, error) {
	if len(memories) == 0 {
		return nil, nil
	}
	if !s.opts.Offload {
		return s.RankSync(ctx, memories, q), nil
	}
	s.metrics.IncRanks()
	q = s.prepare(ctx, q)

	s.callMu.Lock()
	defer s.callMu.Unlock()

	fp := fingerprintOf(memories)
	w, transfer, err := s.acquire(fp)
	if err != nil {
		return nil, err
	}
	s.metrics.IncOffloaded()

	req := request{
		ID:          uuid.NewString(),
		Sync:        transfer,
		Fingerprint: fp,
		Query:       q,
		Params:      s.opts.Params,
	}
	if transfer {
		req.Memories = append([]model.Memory(nil), memories...)
		s.metrics.IncSyncTransfers()
	} else {
		s.metrics.IncSyncSkipped()
	}

	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()

	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, fmt.Errorf("%w: worker reset before request", ErrWorkerCrashed)
	}

	select {
	case rep := <-w.replies:
		if rep.ID != req.ID {
			s.metrics.IncCrashes()
			s.teardown(w, WorkerCrashed)
			return nil, fmt.Errorf("%w: reply %q for request %q", ErrMalformedReply, rep.ID, req.ID)
		}
		if rep.Err != nil {
			s.metrics.IncCrashes()
			s.teardown(w, WorkerCrashed)
			s.logger.Warn().Err(rep.Err).Msg("scoring worker failed; tearing down")
			return nil, rep.Err
		}
		s.release(w, req)
		return rep.Results, nil
	case <-timer.C:
		s.metrics.IncTimeouts()
		s.teardown(w, WorkerCrashed)
		s.logger.Warn().Dur("timeout", s.opts.Timeout).Msg("scoring worker timed out; tearing down")
		return nil, fmt.Errorf("%w after %s", ErrWorkerTimeout, s.opts.Timeout)
	case <-ctx.Done():
		s.metrics.IncCancellations()
		s.teardown(w, WorkerCrashed)
		return nil, fmt.Errorf("rank cancelled: %w", ctx.Err())
	case <-w.quit:
		return nil, fmt.Errorf("%w: worker reset during call", ErrWorkerCrashed)
	}
}

// acquire returns the live worker, spawning one if needed, and reports
// whether the memory set must be transferred. The set is resent whenever
// its membership or contents differ from the worker's copy, so a caller
// never gets results for memories it did not pass in.
func (s *Service) acquire(fp fingerprint) (*worker, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrServiceClosed
	}
	if s.worker == nil {
		s.worker = spawnWorker(s.score)
		s.synced = fingerprint{}
		s.metrics.IncSpawns()
		s.logger.Debug().Msg("spawned scoring worker")
	}
	s.state = WorkerBusy
	return s.worker, fp != s.synced, nil
}

func (s *Service) release(w *worker, req request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.worker != w {
		return
	}
	if req.Sync {
		s.synced = req.Fingerprint
	}
	s.state = WorkerIdle
}

func (s *Service) teardown(w *worker, next WorkerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w == nil || s.worker != w {
		return
	}
	w.stop()
	s.worker = nil
	s.synced = fingerprint{}
	s.state = next
}

// Invalidate forces the next offloaded call to transfer the memory set,
// e.g. after embedding vectors were replaced in place.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced = fingerprint{}
}

// Reset tears the worker down so the next call starts from a clean slate.
// It is safe to call while an offloaded call is in flight; that call fails.
func (s *Service) Reset() {
	s.mu.Lock()
	w := s.worker
	s.mu.Unlock()
	s.teardown(w, WorkerIdle)
}

// Close releases the worker. Later offloaded calls fail with
// ErrServiceClosed; RankSync keeps working.
func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	w := s.worker
	s.mu.Unlock()
	s.teardown(w, WorkerIdle)
	return nil
}
