package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AddStrike increments the invalid-response counter for key and returns the
// new count.
func (s *Store) AddStrike(ctx context.Context, key, lastErr string) (int, error) {
	ctx = ensureContext(ctx)
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO strikes (key, count, last_error, updated_at) VALUES (?, 1, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET count = count + 1, last_error = excluded.last_error, updated_at = excluded.updated_at`,
		key, lastErr, s.stamp(),
	); err != nil {
		return 0, fmt.Errorf("add strike: %w", err)
	}
	return s.Strikes(ctx, key)
}

// Strikes returns the current counter for key, zero when absent.
func (s *Store) Strikes(ctx context.Context, key string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT count FROM strikes WHERE key = ?`, key).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read strikes: %w", err)
	}
	return count, nil
}

// ClearStrike resets the counter for key.
func (s *Store) ClearStrike(ctx context.Context, key string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM strikes WHERE key = ?`, key); err != nil {
		return fmt.Errorf("clear strike: %w", err)
	}
	return nil
}
