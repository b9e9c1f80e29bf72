package task

import "fmt"

// OriginVisitor handles each task variant. Every implementation must cover
// all of them.
type OriginVisitor interface {
	VisitPullRequest(t *Task, o *PullRequestOrigin) error
	VisitAPI(t *Task, o *APIOrigin) error
}

// Visit dispatches t to the visitor method of its variant.
func (t *Task) Visit(v OriginVisitor) error {
	switch t.Tag {
	case TagPullRequest:
		if t.PullRequest == nil {
			return fmt.Errorf("task %s: %w", t.ID, ValidationError{Field: "pull_request", Message: "missing for " + string(TagPullRequest)})
		}
		return v.VisitPullRequest(t, t.PullRequest)
	case TagAPI:
		if t.API == nil {
			return fmt.Errorf("task %s: %w", t.ID, ValidationError{Field: "api", Message: "missing for " + string(TagAPI)})
		}
		return v.VisitAPI(t, t.API)
	default:
		return fmt.Errorf("task %s: %w", t.ID, ValidationError{Field: "tag", Value: string(t.Tag), Message: "unknown task tag"})
	}
}

// NewPullRequestTask builds a task originating from a PR comment.
func NewPullRequestTask(id string, origin PullRequestOrigin) *Task {
	n := origin.Number
	return &Task{
		ID:          id,
		Tag:         TagPullRequest,
		GitRef:      GitRef{PRNumber: &n},
		PullRequest: &origin,
	}
}

// NewAPITask builds a task originating from the HTTP API.
func NewAPITask(id string, origin APIOrigin) *Task {
	return &Task{
		ID:  id,
		Tag: TagAPI,
		API: &origin,
	}
}
