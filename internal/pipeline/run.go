package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

// Run is a live pipeline. Terminate and the status poller both settle the
// same outcome; whichever comes first wins.
type Run interface {
	Pipeline() task.Pipeline
	// Wait blocks until the pipeline settles or ctx is done.
	Wait(ctx context.Context) (Status, error)
	// Terminate cancels the external pipeline and settles the run as
	// canceled if it has not settled yet. Safe to call repeatedly and after
	// completion.
	Terminate(ctx context.Context) error
}

type outcome struct {
	status Status
	err    error
}

type run struct {
	pipeline task.Pipeline
	client   CIClient
	logger   *slog.Logger

	settleOnce sync.Once
	done       chan struct{}
	result     outcome

	stop chan struct{}

	cancelOnce sync.Once
	cancelErr  error
}

func newRun(p task.Pipeline, client CIClient, logger *slog.Logger) *run {
	return &run{
		pipeline: p,
		client:   client,
		logger:   logger.With("pipeline_id", p.ID, "project_id", p.ProjectID),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
}

// newSettledRun is a run whose pipeline finished before anyone attached.
func newSettledRun(p task.Pipeline, client CIClient, logger *slog.Logger, status Status) *run {
	r := newRun(p, client, logger)
	r.settle(status, nil)
	return r
}

func (r *run) Pipeline() task.Pipeline {
	return r.pipeline
}

func (r *run) settle(status Status, err error) {
	r.settleOnce.Do(func() {
		r.result = outcome{status: status, err: err}
		close(r.stop)
		close(r.done)
	})
}

func (r *run) Wait(ctx context.Context) (Status, error) {
	select {
	case <-r.done:
		return r.result.status, r.result.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *run) Terminate(ctx context.Context) error {
	r.settle(StatusCanceled, nil)
	r.cancelOnce.Do(func() {
		r.cancelErr = r.client.CancelPipeline(ctx, r.pipeline.ProjectID, r.pipeline.ID)
		if r.cancelErr != nil {
			r.logger.Warn("cancel pipeline failed", "error", r.cancelErr)
		}
	})
	return r.cancelErr
}

// poll checks the pipeline status every interval until it is terminal, the
// run is settled some other way, or more than maxErrors consecutive checks
// fail.
func (r *run) poll(interval time.Duration, maxErrors int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	failures := 0
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		status, err := r.client.PipelineStatus(ctx, r.pipeline.ProjectID, r.pipeline.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			r.logger.Warn("poll pipeline status failed", "consecutive_failures", failures, "error", err)
			if failures > maxErrors {
				r.settle(StatusFailed, boterrors.ErrPollingExhausted(r.pipeline.ID, failures, err))
				return
			}
			continue
		}

		failures = 0
		r.logger.Debug("pipeline status", "status", status)
		if status.IsTerminal() {
			r.settle(status, nil)
			return
		}
	}
}
