package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
	"github.com/paritytech/command-bot-sub000/internal/events"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

// requeueConcurrency bounds how many leftover tasks are recovered at once.
const requeueConcurrency = 8

// RequeueUnterminated recovers tasks stored by an earlier process. Run it
// once at startup, before accepting commands. A task that was already
// requeued and whose requeued attempt never finished is dropped; every
// other leftover is counted and enqueued again under its own id.
//
// A failure to recover one task does not stop the others; the returned
// error joins all of them.
func (e *Engine) RequeueUnterminated(ctx context.Context) error {
	tasks, err := e.store.ListSorted(ctx)
	if err != nil {
		return fmt.Errorf("list leftover tasks: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(requeueConcurrency)
	for _, t := range tasks {
		if t.Version == e.version || e.handles.get(t.ID) != nil {
			continue
		}
		g.Go(func() error {
			if err := e.requeueOne(ctx, t); err != nil {
				e.logger.Error("requeue task", "task_id", t.ID, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("task %s: %w", t.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (e *Engine) requeueOne(ctx context.Context, t *task.Task) error {
	if t.IsExhausted() {
		if err := e.store.Delete(ctx, t.ID); err != nil {
			return err
		}
		e.logger.Warn("dropping task that did not finish after a restart", "task_id", t.ID, "times_requeued", t.Counters.TimesRequeued)
		e.publisher.Publish(events.NewEvent(events.EventCancelled, t.ID, events.FinishedData{Error: "not restarted again"}))
		e.deliver(ctx, t, exhaustedMessage(t))
		return nil
	}

	t.Counters.TimesRequeued++
	e.publisher.Publish(events.NewEvent(events.EventRequeued, t.ID, nil))
	e.deliver(ctx, t, requeuedMessage(t))
	if _, err := e.Enqueue(ctx, t); err != nil {
		// An invalid task can never run; keeping it would fail every restart.
		if errors.Is(err, boterrors.ErrValidation) {
			if delErr := e.store.Delete(ctx, t.ID); delErr != nil {
				return errors.Join(err, delErr)
			}
		}
		return err
	}
	return nil
}
