package storage

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/paritytech/command-bot-sub000/internal/db"
	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

// DatabaseStore keeps tasks as JSON documents in the tasks table.
type DatabaseStore struct {
	db     *db.DB
	logger *slog.Logger
}

// NewDatabaseStore wraps an open, migrated database.
func NewDatabaseStore(d *db.DB, logger *slog.Logger) *DatabaseStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatabaseStore{db: d, logger: logger}
}

// DB returns the underlying database, shared with the access token handlers.
func (s *DatabaseStore) DB() *db.DB {
	return s.db
}

func (s *DatabaseStore) Put(ctx context.Context, t *task.Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	return s.db.PutTaskRecord(ctx, db.TaskRecord{
		ID:         t.ID,
		QueuedDate: t.QueuedDate,
		Payload:    payload,
	})
}

func (s *DatabaseStore) Get(ctx context.Context, id string) (*task.Task, error) {
	rec, err := s.db.GetTaskRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, boterrors.ErrTaskNotFound(id)
	}
	var t task.Task
	if err := json.Unmarshal(rec.Payload, &t); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

func (s *DatabaseStore) Delete(ctx context.Context, id string) error {
	return s.db.DeleteTaskRecord(ctx, id)
}

type sortable struct {
	task     *task.Task
	queuedAt time.Time
}

func (s *DatabaseStore) ListSorted(ctx context.Context) ([]*task.Task, error) {
	recs, err := s.db.ListTaskRecords(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]sortable, 0, len(recs))
	for _, rec := range recs {
		t, queuedAt, err := decodeRecord(rec)
		if err != nil {
			s.logger.Error("dropping corrupt task record", "task_id", rec.ID, "error", err)
			if delErr := s.db.DeleteTaskRecord(ctx, rec.ID); delErr != nil {
				s.logger.Error("delete corrupt task record", "task_id", rec.ID, "error", delErr)
			}
			continue
		}
		items = append(items, sortable{task: t, queuedAt: queuedAt})
	}

	slices.SortFunc(items, func(a, b sortable) int {
		if c := a.queuedAt.Compare(b.queuedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.task.ID, b.task.ID)
	})

	out := make([]*task.Task, len(items))
	for i, it := range items {
		out[i] = it.task
	}
	return out, nil
}

func decodeRecord(rec db.TaskRecord) (*task.Task, time.Time, error) {
	var t task.Task
	if err := json.Unmarshal(rec.Payload, &t); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode: %w", err)
	}
	if t.ID != rec.ID {
		return nil, time.Time{}, fmt.Errorf("payload id %q does not match key", t.ID)
	}
	queuedAt, err := t.QueuedAt()
	if err != nil {
		return nil, time.Time{}, err
	}
	return &t, queuedAt, nil
}

func (s *DatabaseStore) Close() error {
	return s.db.Close()
}
