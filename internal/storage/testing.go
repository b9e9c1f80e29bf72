package storage

import (
	"testing"

	"github.com/paritytech/command-bot-sub000/internal/db"
)

// NewTestStore creates an in-memory task store for testing.
// The store is closed when the test completes.
func NewTestStore(t testing.TB) *DatabaseStore {
	t.Helper()
	return NewDatabaseStore(db.NewTestDB(t), nil)
}
