package task

import (
	"fmt"
	"strings"

	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (got %q)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Check collects every field problem of t.
func (t *Task) Check() ValidationErrors {
	var errs ValidationErrors
	add := func(field, value, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if t.ID == "" {
		add("id", "", "required")
	}
	if strings.TrimSpace(t.Command) == "" {
		add("command", "", "required")
	}
	if _, err := t.QueuedAt(); err != nil {
		add("queued_date", t.QueuedDate, "not an RFC3339 timestamp")
	}
	if t.GitRef.Upstream.Owner == "" || t.GitRef.Upstream.Repo == "" {
		add("git_ref.upstream", t.GitRef.Upstream.FullName(), "owner and repo are required")
	}

	switch t.Tag {
	case TagPullRequest:
		if t.PullRequest == nil {
			add("pull_request", "", "required for "+string(TagPullRequest))
		} else if t.PullRequest.Number <= 0 {
			add("pull_request.number", fmt.Sprint(t.PullRequest.Number), "must be positive")
		}
		if t.API != nil {
			add("api", "", "not allowed for "+string(TagPullRequest))
		}
	case TagAPI:
		if t.API == nil {
			add("api", "", "required for "+string(TagAPI))
		} else if t.API.MatrixRoom == "" {
			add("api.matrix_room", "", "required")
		}
		if t.PullRequest != nil {
			add("pull_request", "", "not allowed for "+string(TagAPI))
		}
	default:
		add("tag", string(t.Tag), "unknown task tag")
	}
	return errs
}

// Validate returns a VALIDATION_ERROR BotError describing every problem, or nil.
func (t *Task) Validate() error {
	errs := t.Check()
	if len(errs) == 0 {
		return nil
	}
	return boterrors.ErrInvalidTask(t.ID, errs.Error())
}
