// Package storage persists the task queue.
//
// The store is the single source of truth for which tasks exist: a task is
// written when it is enqueued and deleted exactly once when it reaches a
// terminal state.
package storage

import (
	"context"

	"github.com/paritytech/command-bot-sub000/internal/task"
)

// TaskStore is a durable map of task ID to task.
// All implementations must be safe for concurrent access.
type TaskStore interface {
	// Put inserts or replaces the task stored under t.ID.
	Put(ctx context.Context, t *task.Task) error
	// Get fails with a TASK_NOT_FOUND BotError if no task is stored under id.
	Get(ctx context.Context, id string) (*task.Task, error)
	// Delete removes the task. Deleting a missing task is not an error.
	Delete(ctx context.Context, id string) error
	// ListSorted returns every stored task ordered by (QueuedDate, ID).
	// Records that cannot be decoded or carry an invalid timestamp are
	// deleted and skipped.
	ListSorted(ctx context.Context) ([]*task.Task, error)

	Close() error
}
