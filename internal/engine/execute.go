package engine

import (
	"context"
	"errors"
	"time"

	"github.com/paritytech/command-bot-sub000/internal/events"
	"github.com/paritytech/command-bot-sub000/internal/pipeline"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

// cleanupTimeout bounds the store and reporter calls made after a task ends.
const cleanupTimeout = time.Minute

// execute runs t to a terminal state. It is the only place that removes the
// task's store entry and handle.
func (e *Engine) execute(ctx context.Context, h *handle, t *task.Task) {
	started := e.now()
	logger := e.logger.With("task_id", t.ID)

	res := Result{TaskID: t.ID}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task execution panicked", "panic", r)
			res.Status = pipeline.StatusFailed
			res.Err = errors.New("internal error while running the task")
		}
		e.finish(h, t, started, res)
	}()

	run, attached, err := e.startOrAttach(ctx, h, t)
	if err != nil {
		res.Status, res.Err = e.failureStatus(h, err)
		logger.Warn("task did not reach CI", "error", err, "cancelled", h.wasCancelled())
		return
	}

	p := run.Pipeline()
	res.Pipeline = &p
	if ok, err := h.attach(run); !ok {
		if err != nil {
			logger.Warn("cancel external pipeline failed", "pipeline_id", p.ID, "error", err)
		}
		res.Status = pipeline.StatusCanceled
		return
	}

	if t.CI.Pipeline == nil {
		t.CI.Pipeline = &p
	}
	e.publisher.Publish(events.NewEvent(events.EventRunning, t.ID, events.PipelineData{
		ID: p.ID, ProjectID: p.ProjectID, JobWebURL: p.JobWebURL, Attached: attached,
	}))
	if !attached {
		e.deliver(context.Background(), t, startedMessage(t, p))
	}
	// Persist the pipeline and any comment id the reporter recorded.
	if err := e.store.Put(context.Background(), t); err != nil {
		logger.Error("persist pipeline", "error", err)
	}

	status, err := run.Wait(context.Background())
	res.Status, res.Err = status, err
	if h.wasCancelled() {
		res.Status = pipeline.StatusCanceled
	}
}

// startOrAttach prepares and starts a new pipeline, or re-attaches to the
// one an earlier process created.
func (e *Engine) startOrAttach(ctx context.Context, h *handle, t *task.Task) (pipeline.Run, bool, error) {
	t.BeginAttempt()

	if t.CI.Pipeline != nil {
		if err := e.store.Put(ctx, t); err != nil {
			return nil, false, err
		}
		run, err := e.driver.Attach(ctx, t)
		return run, true, err
	}

	e.publisher.Publish(events.NewEvent(events.EventPreparing, t.ID, nil))
	if err := e.prepare(ctx, t); err != nil {
		return nil, false, err
	}
	if err := e.store.Put(ctx, t); err != nil {
		return nil, false, err
	}
	if h.wasCancelled() {
		return nil, false, context.Canceled
	}
	run, err := e.driver.Start(ctx, t)
	return run, false, err
}

// prepare checks out t's working copy. Mirror refreshes of one repository
// are shared by concurrent tasks, so cancelling one task does not abort a
// refresh others wait on.
func (e *Engine) prepare(ctx context.Context, t *task.Task) error {
	if e.workspace == nil {
		return nil
	}
	up := t.GitRef.Upstream
	key := up.FullName()
	v, err, _ := e.prepares.Do(key, func() (any, error) {
		return e.workspace.Mirror(context.WithoutCancel(ctx), up.Owner, up.Repo)
	})
	if err != nil {
		return err
	}
	return e.workspace.Checkout(ctx, t, v.(string))
}

func (e *Engine) failureStatus(h *handle, err error) (pipeline.Status, error) {
	if h.wasCancelled() {
		return pipeline.StatusCanceled, nil
	}
	return pipeline.StatusFailed, err
}

// finish reports the outcome and removes every trace of the task.
func (e *Engine) finish(h *handle, t *task.Task, started time.Time, res Result) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	logger := e.logger.With("task_id", t.ID)

	elapsed := e.now().Sub(started)
	res.Message = finalMessage(t, res, elapsed)
	e.deliver(ctx, t, res.Message)

	if err := e.store.Delete(ctx, t.ID); err != nil {
		logger.Error("delete finished task", "error", err)
	}
	e.handles.remove(t.ID)
	h.cancelPrep()

	if e.workspace != nil {
		if err := e.workspace.Remove(t); err != nil {
			logger.Warn("remove working copy", "error", err)
		}
	}

	data := events.FinishedData{Duration: elapsed.Round(time.Second).String()}
	if res.Err != nil {
		data.Error = res.Err.Error()
	}
	e.publisher.Publish(events.NewEvent(finishedEvent(res.Status), t.ID, data))
	logger.Info("task finished", "status", res.Status, "elapsed", elapsed, "error", res.Err)

	h.results <- res
	close(h.done)
}

func finishedEvent(s pipeline.Status) events.EventType {
	switch s {
	case pipeline.StatusSuccess:
		return events.EventSucceeded
	case pipeline.StatusCanceled:
		return events.EventCancelled
	default:
		return events.EventFailed
	}
}
