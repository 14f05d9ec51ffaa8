package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Outcome names how an annotation attempt ended.
type Outcome string

const (
	OutcomeTagged          Outcome = "tagged"
	OutcomeUnchanged       Outcome = "unchanged"
	OutcomeLowConfidence   Outcome = "low_confidence"
	OutcomeCached          Outcome = "cached"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeInvalidResponse Outcome = "invalid_response"
	OutcomeNetwork         Outcome = "network"
	OutcomeWriteFailed     Outcome = "write_failed"
)

// Attempt is one journal row.
type Attempt struct {
	ID        int64
	Key       string
	Outcome   Outcome
	TagsAdded []string
	Detail    string
	CreatedAt time.Time
}

// RecordAttempt appends an attempt. CreatedAt defaults to now.
func (s *Store) RecordAttempt(ctx context.Context, a Attempt) error {
	tags, err := encodeTags(a.TagsAdded)
	if err != nil {
		return err
	}
	created := s.stamp()
	if !a.CreatedAt.IsZero() {
		created = a.CreatedAt.UTC().UnixMilli()
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO attempts (key, outcome, tags_added, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.Key, string(a.Outcome), tags, a.Detail, created,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Recent returns up to n attempts, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Attempt, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, key, outcome, tags_added, detail, created_at FROM attempts ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a       Attempt
			outcome string
			tags    string
			created int64
		)
		if err := rows.Scan(&a.ID, &a.Key, &outcome, &tags, &a.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Outcome = Outcome(outcome)
		a.CreatedAt = time.UnixMilli(created).UTC()
		if a.TagsAdded, err = decodeTags(tags); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Summary counts attempts per outcome since the given time.
func (s *Store) Summary(ctx context.Context, since time.Time) (map[Outcome]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT outcome, COUNT(1) FROM attempts WHERE created_at >= ? GROUP BY outcome`, since.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("summarize attempts: %w", err)
	}
	defer rows.Close()

	out := make(map[Outcome]int)
	for rows.Next() {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out[Outcome(outcome)] = count
	}
	return out, rows.Err()
}

// Prune deletes attempts older than cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM attempts WHERE created_at < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}

func decodeTags(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}
