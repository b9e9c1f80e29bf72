// Package task defines the unit of work tracked by command-bot.
//
// A Task is a tagged union over where its command came from: a pull request
// comment or an HTTP API call. Consumers that need to distinguish the two go
// through Visit with an OriginVisitor, so adding an origin kind breaks every
// consumer at compile time instead of falling through a switch.
package task

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Tag discriminates the task variants.
type Tag string

const (
	TagPullRequest Tag = "PullRequestTask"
	TagAPI         Tag = "ApiTask"
)

// RepoRef names a branch of a repository.
type RepoRef struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
}

// FullName returns "owner/repo".
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Repo
}

// GitRef identifies the code a command runs against.
type GitRef struct {
	Upstream    RepoRef `json:"upstream"`
	Contributor RepoRef `json:"contributor"`
	PRNumber    *int    `json:"pr_number,omitempty"`
}

// Counters track execution attempts across restarts.
type Counters struct {
	TimesRequeued int `json:"times_requeued"`
	// TimesRequeuedSnapshotBeforeExecution is TimesRequeued as it was when the
	// most recent attempt started.
	TimesRequeuedSnapshotBeforeExecution int `json:"times_requeued_snapshot_before_execution"`
	TimesExecuted                        int `json:"times_executed"`
}

// Job is the CI job requested for a task.
type Job struct {
	Tags      []string          `json:"tags"`
	Image     string            `json:"image,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Pipeline identifies the external CI pipeline of an execution attempt.
type Pipeline struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	JobWebURL string `json:"job_web_url"`
}

// ArtifactsURL is the browsable artifacts page of the pipeline's job.
func (p *Pipeline) ArtifactsURL() string {
	return p.JobWebURL + "/artifacts/browse"
}

// CI holds the job request and, once created, the pipeline running it.
type CI struct {
	Job      Job       `json:"job"`
	Pipeline *Pipeline `json:"pipeline"`
}

// PullRequestOrigin points at the PR comment that issued the command.
type PullRequestOrigin struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Number int    `json:"number"`
	// RequesterCommentID is the comment containing the command.
	RequesterCommentID  int64  `json:"requester_comment_id"`
	RequesterCommentURL string `json:"requester_comment_url,omitempty"`
	// CommentID is the bot's own status comment; zero until first delivery.
	CommentID int64 `json:"comment_id,omitempty"`
}

// APIOrigin is a notification-channel address for API callers.
type APIOrigin struct {
	MatrixRoom string `json:"matrix_room"`
}

// Task is one CI execution request, persisted while queued or running.
type Task struct {
	ID         string   `json:"id"`
	Tag        Tag      `json:"tag"`
	GitRef     GitRef   `json:"git_ref"`
	Command    string   `json:"command"`
	Requester  string   `json:"requester"`
	Counters   Counters `json:"counters"`
	RepoPath   string   `json:"repo_path"`
	QueuedDate string   `json:"queued_date"`
	CI         CI       `json:"ci"`

	// Version is the process-run version that last enqueued the task.
	Version string `json:"version"`

	PullRequest *PullRequestOrigin `json:"pull_request,omitempty"`
	API         *APIOrigin         `json:"api,omitempty"`
}

// DateLayout is the serialization format of QueuedDate.
const DateLayout = time.RFC3339Nano

// FormatDate serializes a queue timestamp.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// QueuedAt parses QueuedDate.
func (t *Task) QueuedAt() (time.Time, error) {
	ts, err := time.Parse(DateLayout, t.QueuedDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse queued date of task %s: %w", t.ID, err)
	}
	return ts, nil
}

// IsExhausted reports whether the task was already requeued and its requeued
// attempt never finished either.
func (t *Task) IsExhausted() bool {
	c := t.Counters
	return c.TimesRequeued > 0 && c.TimesRequeued == c.TimesRequeuedSnapshotBeforeExecution
}

// BeginAttempt records the start of an execution attempt.
func (t *Task) BeginAttempt() {
	t.Counters.TimesRequeuedSnapshotBeforeExecution = t.Counters.TimesRequeued
	t.Counters.TimesExecuted++
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	c := *t
	if t.GitRef.PRNumber != nil {
		n := *t.GitRef.PRNumber
		c.GitRef.PRNumber = &n
	}
	c.CI.Job.Tags = slices.Clone(t.CI.Job.Tags)
	c.CI.Job.Variables = maps.Clone(t.CI.Job.Variables)
	if t.CI.Pipeline != nil {
		p := *t.CI.Pipeline
		c.CI.Pipeline = &p
	}
	if t.PullRequest != nil {
		o := *t.PullRequest
		c.PullRequest = &o
	}
	if t.API != nil {
		o := *t.API
		c.API = &o
	}
	return &c
}

// String is used in log lines and messages.
func (t *Task) String() string {
	return fmt.Sprintf("%s (%s)", t.ID, t.Tag)
}
