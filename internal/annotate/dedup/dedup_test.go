package dedup_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"saucetag/internal/annotate"
	"saucetag/internal/annotate/dedup"
	"saucetag/internal/logging"
	"saucetag/internal/quota"
	"saucetag/internal/testsupport"
)

type countingAnnotator struct {
	calls  int
	result annotate.Result
	err    error
}

func (c *countingAnnotator) Annotate(context.Context, string) (annotate.Result, error) {
	c.calls++
	return c.result, c.err
}

func TestCacheServesNearDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)

	first := filepath.Join(cfg.Paths.AlbumPath, "first.png")
	copyPath := filepath.Join(cfg.Paths.AlbumPath, "sub", "copy.png")
	testsupport.WritePNG(t, first, 0)
	testsupport.WritePNG(t, copyPath, 0)

	remote := &countingAnnotator{result: annotate.Result{Tags: []string{"sky"}, Quota: &quota.State{LongLimit: 100, LongRemaining: 90}}}
	cache := dedup.New(remote, store, 4, logging.NewNop())
	ctx := context.Background()

	res, err := cache.Annotate(ctx, first)
	if err != nil {
		t.Fatalf("first Annotate: %v", err)
	}
	if res.Cached || remote.calls != 1 {
		t.Fatalf("expected remote call, got cached=%v calls=%d", res.Cached, remote.calls)
	}

	res, err = cache.Annotate(ctx, copyPath)
	if err != nil {
		t.Fatalf("second Annotate: %v", err)
	}
	if !res.Cached || res.Quota != nil || remote.calls != 1 {
		t.Fatalf("expected cached hit without quota, got %+v calls=%d", res, remote.calls)
	}
	if len(res.Tags) != 1 || res.Tags[0] != "sky" {
		t.Fatalf("unexpected cached tags %v", res.Tags)
	}

	entries, err := store.Hashes(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one stored hash, got %d (%v)", len(entries), err)
	}
}

func TestCacheSkipsSelfMatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	path := filepath.Join(cfg.Paths.AlbumPath, "a.png")
	testsupport.WritePNG(t, path, 1)

	remote := &countingAnnotator{result: annotate.Result{Tags: []string{"x"}}}
	cache := dedup.New(remote, store, 4, logging.NewNop())
	for i := 0; i < 2; i++ {
		if _, err := cache.Annotate(context.Background(), path); err != nil {
			t.Fatalf("Annotate: %v", err)
		}
	}
	if remote.calls != 2 {
		t.Fatalf("expected both calls to reach remote, got %d", remote.calls)
	}
}

func TestCacheDoesNotStoreLowConfidenceOrErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	path := filepath.Join(cfg.Paths.AlbumPath, "a.png")
	testsupport.WritePNG(t, path, 2)
	ctx := context.Background()

	low := &countingAnnotator{result: annotate.Result{LowConfidence: true}}
	if _, err := dedup.New(low, store, 4, logging.NewNop()).Annotate(ctx, path); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	failing := &countingAnnotator{err: annotate.Wrap(annotate.ErrNetwork, "test", "", "", errors.New("down"))}
	if _, err := dedup.New(failing, store, 4, logging.NewNop()).Annotate(ctx, path); annotate.KindOf(err) != annotate.KindNetwork {
		t.Fatalf("expected network error passthrough, got %v", err)
	}

	entries, err := store.Hashes(ctx)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected no stored hashes, got %d (%v)", len(entries), err)
	}
}

func TestCacheMissingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	remote := &countingAnnotator{}

	_, err := dedup.New(remote, store, 4, logging.NewNop()).Annotate(context.Background(), filepath.Join(cfg.Paths.AlbumPath, "gone.png"))
	if annotate.KindOf(err) != annotate.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if remote.calls != 0 {
		t.Fatal("remote should not be called for a missing file")
	}
}

func TestCacheUndecodableFilePassesThrough(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	path := filepath.Join(cfg.Paths.AlbumPath, "broken.jpg")
	testsupport.WriteFile(t, path, []byte("not an image"))

	remote := &countingAnnotator{result: annotate.Result{Tags: []string{"y"}}}
	res, err := dedup.New(remote, store, 4, logging.NewNop()).Annotate(context.Background(), path)
	if err != nil || remote.calls != 1 || len(res.Tags) != 1 {
		t.Fatalf("expected passthrough, got %+v err=%v calls=%d", res, err, remote.calls)
	}
}
