package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/paritytech/command-bot-sub000/internal/command"
	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

// Dispatch executes a structured command and returns the message for the
// requester. For Generic the message is the queue message; the task keeps
// running after Dispatch returns.
func (e *Engine) Dispatch(ctx context.Context, cmd command.Command) (string, error) {
	switch c := cmd.(type) {
	case command.Generic:
		t, err := c.Task(e.ids.Next())
		if err != nil {
			return "", boterrors.ErrInvalidTask("", err.Error())
		}
		enq, err := e.Enqueue(ctx, t)
		if err != nil {
			return "", err
		}
		return enq.Message, nil
	case command.Cancel:
		id, err := e.cancelTarget(c)
		if err != nil {
			return "", err
		}
		if err := e.Cancel(ctx, id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Task %s was cancelled.", id), nil
	default:
		return "", boterrors.ErrInvalidTask("", fmt.Sprintf("unsupported command %T", cmd))
	}
}

// cancelTarget resolves which task a Cancel addresses: its explicit id, or
// the newest live task issued on the same pull request.
func (e *Engine) cancelTarget(c command.Cancel) (string, error) {
	if c.TaskID != "" {
		return c.TaskID, nil
	}
	if c.PullRequest == nil {
		return "", boterrors.ErrInvalidTask("", "cancel needs a task id or a pull request")
	}
	pr := *c.PullRequest
	hs := e.handles.match(func(t *task.Task) bool {
		o := t.PullRequest
		return o != nil && o.Owner == pr.Owner && o.Repo == pr.Repo && o.Number == pr.Number
	})
	if len(hs) == 0 {
		return "", boterrors.ErrTaskNotFound(fmt.Sprintf("on %s/%s#%d", pr.Owner, pr.Repo, pr.Number))
	}
	ids := make([]string, 0, len(hs))
	for _, h := range hs {
		ids = append(ids, h.id)
	}
	return slices.Max(ids), nil
}
