package engine

import (
	"fmt"
	"sync"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

// WorkerState is the lifecycle state of the offloaded scorer.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerBusy
	// WorkerCrashed means the last worker was torn down after a timeout,
	// error or malformed reply. The next call respawns it.
	WorkerCrashed
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerBusy:
		return "busy"
	case WorkerCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(s))
	}
}

type scoreFunc func([]model.Memory, Query, Params) []Scored

type request struct {
	ID string
	// Memories is set only when the worker's copy must be replaced.
	Memories    []model.Memory
	Sync        bool
	Fingerprint fingerprint
	Query       Query
	Params      Params
}

type reply struct {
	ID      string
	Results []Scored
	Err     error
}

// worker owns a private copy of the memory set and scores requests against
// it on its own goroutine.
type worker struct {
	requests chan request
	replies  chan reply
	quit     chan struct{}
	once     sync.Once
	score    scoreFunc

	memories []model.Memory
	held     fingerprint
}

func spawnWorker(score scoreFunc) *worker {
	w := &worker{
		requests: make(chan request, 1),
		replies:  make(chan reply, 1),
		quit:     make(chan struct{}),
		score:    score,
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	for {
		select {
		case <-w.quit:
			return
		case req := <-w.requests:
			rep := w.handle(req)
			select {
			case w.replies <- rep:
			case <-w.quit:
				return
			}
		}
	}
}

func (w *worker) handle(req request) (rep reply) {
	rep.ID = req.ID
	defer func() {
		if r := recover(); r != nil {
			rep = reply{ID: req.ID, Err: fmt.Errorf("%w: %v", ErrWorkerCrashed, r)}
		}
	}()
	if req.Sync {
		w.memories = req.Memories
		w.held = req.Fingerprint
	}
	if w.held != req.Fingerprint || len(w.memories) != req.Fingerprint.count {
		rep.Err = fmt.Errorf("%w: worker holds %d memories (%x), caller has %d (%x)",
			ErrWorkerCrashed, len(w.memories), w.held.sum, req.Fingerprint.count, req.Fingerprint.sum)
		return rep
	}
	rep.Results = w.score(w.memories, req.Query, req.Params)
	return rep
}

func (w *worker) stop() {
	w.once.Do(func() { close(w.quit) })
}
