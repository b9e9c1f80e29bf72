// Package errors provides structured error types for command-bot.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for command-bot.
const (
	// Task errors
	CodeTaskNotFound Code = "TASK_NOT_FOUND"
	CodeValidation   Code = "VALIDATION_ERROR"

	// External CI / git errors
	CodeTransientNetwork         Code = "TRANSIENT_NETWORK"
	CodeRegistrationTimeout      Code = "REGISTRATION_TIMEOUT"
	CodePipelinePollingExhausted Code = "PIPELINE_POLLING_EXHAUSTED"
	CodePipelineInvalidJobs      Code = "PIPELINE_INVALID_JOBS"
	CodeProcessSignal            Code = "PROCESS_SIGNAL"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"

	// API errors
	CodeUnauthorized Code = "UNAUTHORIZED"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryUnauthorized
	CategoryInternal
	CategoryTimeout
	CategoryUnavailable
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeTaskNotFound:             CategoryNotFound,
	CodeValidation:               CategoryBadRequest,
	CodeTransientNetwork:         CategoryUnavailable,
	CodeRegistrationTimeout:      CategoryTimeout,
	CodePipelinePollingExhausted: CategoryUnavailable,
	CodePipelineInvalidJobs:      CategoryInternal,
	CodeProcessSignal:            CategoryInternal,
	CodeConfigInvalid:            CategoryBadRequest,
	CodeConfigMissing:            CategoryBadRequest,
	CodeUnauthorized:             CategoryUnauthorized,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryUnauthorized:
		return 401
	case CategoryTimeout:
		return 504
	case CategoryUnavailable:
		return 503
	default:
		return 500
	}
}

// BotError is the structured error type for command-bot.
type BotError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *BotError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *BotError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the text shown to a requester in a PR comment or chat message.
func (e *BotError) UserMessage() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category for HTTP status mapping.
func (e *BotError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *BotError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *BotError) MarshalJSON() ([]byte, error) {
	type alias BotError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a BotError with the same code.
func (e *BotError) Is(target error) bool {
	t, ok := target.(*BotError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *BotError) WithCause(err error) *BotError {
	return &BotError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrNotFound                 = &BotError{Code: CodeTaskNotFound, What: "not found"}
	ErrValidation               = &BotError{Code: CodeValidation, What: "validation failed"}
	ErrTransientNetwork         = &BotError{Code: CodeTransientNetwork, What: "transient network error"}
	ErrRegistrationTimeout      = &BotError{Code: CodeRegistrationTimeout, What: "branch registration timed out"}
	ErrPipelinePollingExhausted = &BotError{Code: CodePipelinePollingExhausted, What: "pipeline polling exhausted"}
	ErrProcessSignal            = &BotError{Code: CodeProcessSignal, What: "process killed by signal"}
	ErrUnauthorized             = &BotError{Code: CodeUnauthorized, What: "unauthorized"}
)

// --- Error constructors ---

// ErrTaskNotFound returns an error when a task (or its live handle) doesn't exist.
func ErrTaskNotFound(id string) *BotError {
	return &BotError{
		Code: CodeTaskNotFound,
		What: fmt.Sprintf("task %s not found", id),
		Why:  "No queued or running task with this ID exists",
		Fix:  "List tasks with 'command-bot tasks' or GET /api/tasks",
	}
}

// ErrInvalidTask returns an error for a malformed task.
func ErrInvalidTask(id, reason string) *BotError {
	return &BotError{
		Code: CodeValidation,
		What: fmt.Sprintf("task %s is invalid", id),
		Why:  reason,
	}
}

// ErrTransient wraps an error from the CI service that is worth retrying.
func ErrTransient(op string, cause error) *BotError {
	return &BotError{
		Code:  CodeTransientNetwork,
		What:  op,
		Cause: cause,
	}
}

// ErrBranchNotRegistered returns an error when the CI service never saw the pushed branch.
func ErrBranchNotRegistered(branch string, attempts int) *BotError {
	return &BotError{
		Code: CodeRegistrationTimeout,
		What: fmt.Sprintf("branch %s was not registered by the CI service", branch),
		Why:  fmt.Sprintf("The branch did not appear after %d checks", attempts),
		Fix:  "Retry the command; if it keeps failing, check the CI mirror for push errors",
	}
}

// ErrPollingExhausted returns an error when pipeline status polling failed too many times in a row.
func ErrPollingExhausted(pipelineID int64, failures int, cause error) *BotError {
	return &BotError{
		Code:  CodePipelinePollingExhausted,
		What:  fmt.Sprintf("stopped waiting for pipeline %d", pipelineID),
		Why:   fmt.Sprintf("Status polling failed %d times in a row", failures),
		Cause: cause,
	}
}

// ErrInvalidJobs returns an error when a created pipeline has an unexpected job layout.
func ErrInvalidJobs(pipelineID int64, reason string) *BotError {
	return &BotError{
		Code: CodePipelineInvalidJobs,
		What: fmt.Sprintf("pipeline %d has an unexpected job layout", pipelineID),
		Why:  reason,
	}
}

// ErrKilled returns an error when a child process was terminated by a signal.
func ErrKilled(command, signal string) *BotError {
	return &BotError{
		Code: CodeProcessSignal,
		What: fmt.Sprintf("%s was killed", command),
		Why:  fmt.Sprintf("Received signal %s", signal),
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *BotError {
	return &BotError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check command-bot.yaml and the CMDBOT_* environment variables",
	}
}

// ErrConfigMissing returns an error for missing configuration.
func ErrConfigMissing(field string) *BotError {
	return &BotError{
		Code: CodeConfigMissing,
		What: fmt.Sprintf("missing required configuration: %s", field),
		Why:  "This field is required but not set in configuration",
		Fix:  fmt.Sprintf("Add '%s' to command-bot.yaml", field),
	}
}

// ErrInvalidToken returns an error for a missing or unknown API access token.
func ErrInvalidToken() *BotError {
	return &BotError{
		Code: CodeUnauthorized,
		What: "invalid access token",
		Fix:  "Send a valid token in the Authorization header",
	}
}

// AsBotError attempts to convert an error to a BotError.
// Returns nil if the error is not a BotError.
func AsBotError(err error) *BotError {
	var botErr *BotError
	if stderrors.As(err, &botErr) {
		return botErr
	}
	return nil
}

// Wrap wraps a generic error into a BotError with unknown code.
func Wrap(err error, what string) *BotError {
	return &BotError{
		Code:  Code("UNKNOWN"),
		What:  what,
		Cause: err,
	}
}
