// Package dedup wraps an annotate.Annotator with a perceptual-hash cache so
// near-identical images reuse tags instead of spending remote quota.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"saucetag/internal/annotate"
	"saucetag/internal/journal"
	"saucetag/internal/logging"
)

// HashStore persists perceptual hashes and their tags.
type HashStore interface {
	StoreHash(ctx context.Context, hash uint64, key string, tags []string) error
	Hashes(ctx context.Context) ([]journal.HashEntry, error)
}

// Cache is an annotate.Annotator that answers from previously seen images
// within MaxDistance bits of difference-hash distance.
type Cache struct {
	next        annotate.Annotator
	store       HashStore
	maxDistance int
	logger      *slog.Logger

	mu      sync.Mutex
	loaded  bool
	entries []journal.HashEntry
}

// New wraps next with a hash cache backed by store.
func New(next annotate.Annotator, store HashStore, maxDistance int, logger *slog.Logger) *Cache {
	return &Cache{
		next:        next,
		store:       store,
		maxDistance: maxDistance,
		logger:      logging.NewComponentLogger(logger, "dedup"),
	}
}

// Annotate returns cached tags for a near-duplicate of path, or delegates to
// the wrapped annotator and caches a successful result. An image is never
// matched against its own cached entry so it can pick up new remote tags.
func (c *Cache) Annotate(ctx context.Context, path string) (annotate.Result, error) {
	hash, err := HashFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return annotate.Result{}, annotate.Wrap(annotate.ErrNotFound, "dedup", "open", filepath.Base(path), err)
		}
		c.logger.Debug("perceptual hash unavailable; skipping cache",
			logging.String("path", path),
			logging.Error(err),
		)
		return c.next.Annotate(ctx, path)
	}

	if err := c.ensureLoaded(ctx); err != nil {
		logging.WarnWithContext(c.logger, "hash cache load failed; calling remote", "dedup_load_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "duplicate images consume quota"),
		)
	} else if hit, ok := c.lookup(hash, path); ok {
		c.logger.Debug("perceptual hash hit",
			logging.String("path", path),
			logging.String("matched", hit.Key),
		)
		return annotate.Result{
			Tags:   append([]string(nil), hit.Tags...),
			Cached: true,
			Source: "cache:" + hit.Key,
		}, nil
	}

	result, err := c.next.Annotate(ctx, path)
	if err != nil || result.LowConfidence || len(result.Tags) == 0 {
		return result, err
	}
	c.remember(ctx, hash, path, result.Tags)
	return result, nil
}

func (c *Cache) ensureLoaded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	entries, err := c.store.Hashes(ctx)
	if err != nil {
		return err
	}
	c.entries = entries
	c.loaded = true
	return nil
}

func (c *Cache) lookup(hash uint64, path string) (journal.HashEntry, bool) {
	target := goimagehash.NewImageHash(hash, goimagehash.DHash)
	c.mu.Lock()
	defer c.mu.Unlock()

	best := -1
	var bestEntry journal.HashEntry
	for _, e := range c.entries {
		if e.Key == path {
			continue
		}
		d, err := target.Distance(goimagehash.NewImageHash(e.Hash, goimagehash.DHash))
		if err != nil || d > c.maxDistance {
			continue
		}
		if best < 0 || d < best {
			best = d
			bestEntry = e
		}
	}
	return bestEntry, best >= 0
}

func (c *Cache) remember(ctx context.Context, hash uint64, path string, tags []string) {
	if err := c.store.StoreHash(ctx, hash, path, tags); err != nil {
		logging.WarnWithContext(c.logger, "hash cache store failed", "dedup_store_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "future duplicates of this image will call remote"),
		)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := journal.HashEntry{Hash: hash, Key: path, Tags: append([]string(nil), tags...)}
	for i := range c.entries {
		if c.entries[i].Hash == hash {
			c.entries[i] = entry
			return
		}
	}
	c.entries = append(c.entries, entry)
}

// HashFile decodes the image at path and returns its difference hash.
func HashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}
	h, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return 0, fmt.Errorf("difference hash: %w", err)
	}
	return h.GetHash(), nil
}
