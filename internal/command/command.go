// Package command defines the structured commands the engine accepts. Raw
// comment text is parsed elsewhere; nothing here looks at it.
package command

import (
	"errors"
	"fmt"

	"github.com/paritytech/command-bot-sub000/internal/task"
)

// Command is Generic or Cancel.
type Command interface {
	isCommand()
}

// JobSpec is the CI job requested by a command.
type JobSpec struct {
	Tags      []string
	Variables map[string]string
	// Image overrides the configured default image when set.
	Image string
}

// Generic runs an already expanded shell command in CI.
type Generic struct {
	Command   string
	Job       JobSpec
	Requester string
	GitRef    task.GitRef
	// Exactly one origin is set.
	PullRequest *task.PullRequestOrigin
	API         *task.APIOrigin
}

// Cancel stops a live task. Without a TaskID it targets the newest live
// task issued on PullRequest.
type Cancel struct {
	TaskID      string
	Requester   string
	PullRequest *task.PullRequestOrigin
}

func (Generic) isCommand() {}
func (Cancel) isCommand()  {}

// ErrNoOrigin is returned for a Generic command with no or both origins.
var ErrNoOrigin = errors.New("command needs exactly one origin")

// Task builds the task for c with the given id. The caller stamps the
// queued date and version.
func (c Generic) Task(id string) (*task.Task, error) {
	var t *task.Task
	switch {
	case c.PullRequest != nil && c.API == nil:
		t = task.NewPullRequestTask(id, *c.PullRequest)
	case c.API != nil && c.PullRequest == nil:
		t = task.NewAPITask(id, *c.API)
	default:
		return nil, fmt.Errorf("task %s: %w", id, ErrNoOrigin)
	}

	prNumber := t.GitRef.PRNumber
	t.GitRef = c.GitRef
	if prNumber != nil {
		t.GitRef.PRNumber = prNumber
	}
	t.Command = c.Command
	t.Requester = c.Requester
	t.CI.Job = task.Job{
		Tags:      c.Job.Tags,
		Image:     c.Job.Image,
		Variables: c.Job.Variables,
	}
	return t, nil
}
