package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TaskRecord is a raw row of the task queue. Payload is the JSON-encoded task;
// decoding and validation belong to the storage layer.
type TaskRecord struct {
	ID         string
	QueuedDate string
	Payload    []byte
}

// PutTaskRecord inserts or replaces a task row.
func (d *DB) PutTaskRecord(ctx context.Context, r TaskRecord) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO tasks (id, queued_date, payload)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			queued_date = excluded.queued_date,
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`, r.ID, r.QueuedDate, string(r.Payload))
	if err != nil {
		return fmt.Errorf("put task %s: %w", r.ID, err)
	}
	return nil
}

// GetTaskRecord returns the row for id, or nil if there is none.
func (d *DB) GetTaskRecord(ctx context.Context, id string) (*TaskRecord, error) {
	var r TaskRecord
	var payload string
	err := d.QueryRowContext(ctx, `SELECT id, queued_date, payload FROM tasks WHERE id = ?`, id).
		Scan(&r.ID, &r.QueuedDate, &payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	r.Payload = []byte(payload)
	return &r, nil
}

// DeleteTaskRecord removes a task row. Deleting a missing row is not an error.
func (d *DB) DeleteTaskRecord(ctx context.Context, id string) error {
	if _, err := d.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

// ListTaskRecords returns every task row. Order is unspecified.
func (d *DB) ListTaskRecords(ctx context.Context) ([]TaskRecord, error) {
	rows, err := d.QueryContext(ctx, `SELECT id, queued_date, payload FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TaskRecord
	for rows.Next() {
		var r TaskRecord
		var payload string
		if err := rows.Scan(&r.ID, &r.QueuedDate, &payload); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		r.Payload = []byte(payload)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}
