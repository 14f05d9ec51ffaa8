package journal

import (
	"context"
	"fmt"
)

// HashEntry is a cached perceptual hash with the tags found for it.
type HashEntry struct {
	Hash uint64
	Key  string
	Tags []string
}

// StoreHash records tags for a perceptual hash, replacing any earlier entry.
func (s *Store) StoreHash(ctx context.Context, hash uint64, key string, tags []string) error {
	encoded, err := encodeTags(tags)
	if err != nil {
		return err
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO image_hashes (hash, key, tags, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET key = excluded.key, tags = excluded.tags, created_at = excluded.created_at`,
		int64(hash), key, encoded, s.stamp(),
	); err != nil {
		return fmt.Errorf("store hash: %w", err)
	}
	return nil
}

// Hashes returns every cached hash.
func (s *Store) Hashes(ctx context.Context) ([]HashEntry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT hash, key, tags FROM image_hashes`)
	if err != nil {
		return nil, fmt.Errorf("query hashes: %w", err)
	}
	defer rows.Close()

	var out []HashEntry
	for rows.Next() {
		var (
			hash int64
			e    HashEntry
			tags string
		)
		if err := rows.Scan(&hash, &e.Key, &tags); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		e.Hash = uint64(hash)
		if e.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
