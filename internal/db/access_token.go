package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AccessToken grants access to the HTTP control surface.
type AccessToken struct {
	Token     string    `json:"token"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateAccessToken stores a new token.
func (d *DB) CreateAccessToken(ctx context.Context, token, label string) error {
	if _, err := d.ExecContext(ctx, `INSERT INTO access_tokens (token, label) VALUES (?, ?)`, token, label); err != nil {
		return fmt.Errorf("create access token: %w", err)
	}
	return nil
}

// AccessTokenExists reports whether token is registered.
func (d *DB) AccessTokenExists(ctx context.Context, token string) (bool, error) {
	var one int
	err := d.QueryRowContext(ctx, `SELECT 1 FROM access_tokens WHERE token = ?`, token).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup access token: %w", err)
	}
	return true, nil
}

// DeleteAccessToken removes a token and reports whether it existed.
func (d *DB) DeleteAccessToken(ctx context.Context, token string) (bool, error) {
	res, err := d.ExecContext(ctx, `DELETE FROM access_tokens WHERE token = ?`, token)
	if err != nil {
		return false, fmt.Errorf("delete access token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete access token: %w", err)
	}
	return n > 0, nil
}
