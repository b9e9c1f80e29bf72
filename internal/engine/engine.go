// Package engine owns the lifecycle of tasks: it persists them, runs them as
// CI pipelines, cancels them and recovers the ones a previous process left
// behind.
//
// The engine is the only component that writes both the task store and the
// handle registry. A task's store entry and handle are removed by execute
// and nowhere else, exactly once, whatever the outcome.
package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
	"github.com/paritytech/command-bot-sub000/internal/events"
	"github.com/paritytech/command-bot-sub000/internal/pipeline"
	"github.com/paritytech/command-bot-sub000/internal/report"
	"github.com/paritytech/command-bot-sub000/internal/storage"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

// Driver runs tasks as CI pipelines.
type Driver interface {
	Start(ctx context.Context, t *task.Task) (pipeline.Run, error)
	Attach(ctx context.Context, t *task.Task) (pipeline.Run, error)
}

// Workspace provides working copies. Mirror calls for one repository are
// serialized by the engine.
type Workspace interface {
	Mirror(ctx context.Context, owner, repo string) (string, error)
	Checkout(ctx context.Context, t *task.Task, mirror string) error
	Remove(t *task.Task) error
}

// Options configures an Engine.
type Options struct {
	Store     storage.TaskStore
	Driver    Driver
	Workspace Workspace
	Reporter  report.Reporter
	Publisher events.Publisher
	Logger    *slog.Logger

	// Version tags tasks enqueued by this process. Defaults to the start
	// time.
	Version string
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine schedules and tracks tasks. Construct one per process with New.
type Engine struct {
	store     storage.TaskStore
	driver    Driver
	workspace Workspace
	reporter  report.Reporter
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time

	version  string
	ids      *task.IDGenerator
	handles  *registry
	prepares singleflight.Group
}

// New creates an Engine.
func New(opts Options) *Engine {
	e := &Engine{
		store:     opts.Store,
		driver:    opts.Driver,
		workspace: opts.Workspace,
		reporter:  opts.Reporter,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		now:       opts.Now,
		version:   opts.Version,
		handles:   newRegistry(),
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.publisher == nil {
		e.publisher = events.NopPublisher{}
	}
	if e.version == "" {
		e.version = task.FormatDate(e.now())
	}
	e.ids = task.NewIDGeneratorWithClock(e.now)
	return e
}

// Version is the process-run version stamped on enqueued tasks.
func (e *Engine) Version() string {
	return e.version
}

// NextID returns a fresh task id.
func (e *Engine) NextID() string {
	return e.ids.Next()
}

// Result is the outcome of one task.
type Result struct {
	TaskID   string
	Status   pipeline.Status
	Pipeline *task.Pipeline
	Err      error
	Message  string
}

// Enqueued is returned by Enqueue. Done receives the task's result once.
type Enqueued struct {
	TaskID     string
	QueuedDate string
	Message    string
	Done       <-chan Result
}

// Enqueue persists t and starts executing it in the background. It returns
// once the task is stored; the returned message describes the queue as it
// was at that moment. The engine owns t afterwards.
func (e *Engine) Enqueue(ctx context.Context, t *task.Task) (*Enqueued, error) {
	t.Version = e.version
	if t.QueuedDate == "" {
		t.QueuedDate = task.FormatDate(e.now())
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithCancel(context.Background())
	h := newHandle(t, cancel)
	if !e.handles.add(h) {
		cancel()
		return nil, boterrors.ErrInvalidTask(t.ID, "a task with this id is already running")
	}

	if err := e.store.Put(ctx, t); err != nil {
		e.handles.remove(t.ID)
		cancel()
		// Release any Cancel that found the handle meanwhile.
		close(h.done)
		return nil, fmt.Errorf("persist task %s: %w", t.ID, err)
	}

	queued := t.QueuedDate
	message := e.queueMessage(ctx, t)
	e.publisher.Publish(events.NewEvent(events.EventQueued, t.ID, events.MessageData{Text: message}))
	e.logger.Info("task enqueued", "task_id", t.ID, "tag", t.Tag, "requeued", t.Counters.TimesRequeued)

	go e.execute(execCtx, h, t)

	return &Enqueued{TaskID: t.ID, QueuedDate: queued, Message: message, Done: h.results}, nil
}

// queueMessage reports how many stored tasks precede t.
func (e *Engine) queueMessage(ctx context.Context, t *task.Task) string {
	tasks, err := e.store.ListSorted(ctx)
	if err != nil {
		e.logger.Warn("list tasks for queue message", "task_id", t.ID, "error", err)
		return preparingMessage(t, -1)
	}
	ahead := slices.IndexFunc(tasks, func(other *task.Task) bool { return other.ID == t.ID })
	return preparingMessage(t, ahead)
}

// Cancel terminates the live task id and returns once its store entry and
// handle are gone. It fails with NotFound when no such task runs here.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	h := e.handles.get(id)
	if h == nil {
		return boterrors.ErrTaskNotFound(id)
	}
	return e.cancelHandles(ctx, []*handle{h})
}

// CancelMatching terminates every live task pred accepts and returns their
// ids. It fails with NotFound when none matches.
func (e *Engine) CancelMatching(ctx context.Context, pred func(*task.Task) bool) ([]string, error) {
	hs := e.handles.match(pred)
	if len(hs) == 0 {
		return nil, boterrors.ErrTaskNotFound("matching")
	}
	ids := make([]string, 0, len(hs))
	for _, h := range hs {
		ids = append(ids, h.id)
	}
	slices.Sort(ids)
	return ids, e.cancelHandles(ctx, hs)
}

func (e *Engine) cancelHandles(ctx context.Context, hs []*handle) error {
	for _, h := range hs {
		if err := h.terminate(ctx); err != nil {
			// The local task still ends; the pipeline may keep running.
			e.logger.Warn("cancel external pipeline failed", "task_id", h.id, "error", err)
		}
	}
	for _, h := range hs {
		select {
		case <-h.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Live returns snapshots of the tasks executing in this process, oldest
// first.
func (e *Engine) Live() []*task.Task {
	hs := e.handles.match(func(*task.Task) bool { return true })
	out := make([]*task.Task, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.view.Clone())
	}
	slices.SortFunc(out, func(a, b *task.Task) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Tasks lists the stored tasks in queue order.
func (e *Engine) Tasks(ctx context.Context) ([]*task.Task, error) {
	return e.store.ListSorted(ctx)
}

func (e *Engine) deliver(ctx context.Context, t *task.Task, message string) {
	e.publisher.Publish(events.NewEvent(events.EventMessage, t.ID, events.MessageData{Text: message}))
	if e.reporter == nil {
		return
	}
	if err := e.reporter.Deliver(ctx, t, message); err != nil {
		e.logger.Warn("deliver message failed", "task_id", t.ID, "error", err)
	}
}
