package engine

import (
	"context"
	"sync"
	"time"

	"github.com/paritytech/command-bot-sub000/internal/pipeline"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

// handle is the live cancellation capability of one executing task.
type handle struct {
	id string
	// view is a snapshot taken at enqueue time, used for matching only.
	view *task.Task

	cancelPrep context.CancelFunc
	results    chan Result
	done       chan struct{}

	mu        sync.Mutex
	run       pipeline.Run
	cancelled bool
}

func newHandle(t *task.Task, cancelPrep context.CancelFunc) *handle {
	return &handle{
		id:         t.ID,
		view:       t.Clone(),
		cancelPrep: cancelPrep,
		results:    make(chan Result, 1),
		done:       make(chan struct{}),
	}
}

// attach records the task's pipeline run. A run attached after terminate
// was requested is terminated right away and attach reports false along
// with any error from terminating it.
func (h *handle) attach(run pipeline.Run) (bool, error) {
	h.mu.Lock()
	h.run = run
	cancelled := h.cancelled
	h.mu.Unlock()
	if !cancelled {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return false, run.Terminate(ctx)
}

// terminate stops the task wherever it is: preparation is aborted and a
// running pipeline is cancelled externally.
func (h *handle) terminate(ctx context.Context) error {
	h.mu.Lock()
	h.cancelled = true
	run := h.run
	h.mu.Unlock()

	h.cancelPrep()
	if run != nil {
		return run.Terminate(ctx)
	}
	return nil
}

func (h *handle) wasCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// registry maps task ids to live handles. It is process-local and empty
// after a restart; the task store is the source of truth.
type registry struct {
	mu      sync.Mutex
	handles map[string]*handle
}

func newRegistry() *registry {
	return &registry{handles: make(map[string]*handle)}
}

// add registers h unless a handle for the same id is live.
func (r *registry) add(h *handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[h.id]; ok {
		return false
	}
	r.handles[h.id] = h
	return true
}

func (r *registry) get(id string) *handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[id]
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

func (r *registry) match(pred func(*task.Task) bool) []*handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*handle
	for _, h := range r.handles {
		if pred(h.view) {
			out = append(out, h)
		}
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
