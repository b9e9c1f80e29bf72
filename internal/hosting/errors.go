package hosting

import "errors"

// Hosting API errors.
var (
	// ErrAuthFailed is returned when no token is available or the API
	// rejects it.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
)
