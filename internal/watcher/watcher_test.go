package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"saucetag/internal/logging"
	"saucetag/internal/scanner"
	"saucetag/internal/testsupport"
	"saucetag/internal/watcher"
	"saucetag/internal/worktable"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T) (*watcher.Watcher, *worktable.Table, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	root := cfg.Paths.AlbumPath
	tbl := worktable.New()
	w := watcher.New(scanner.New(root, nil, logging.NewNop()), tbl, 20*time.Millisecond, logging.NewNop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, tbl, root
}

func TestWatcherInsertsNewImages(t *testing.T) {
	_, tbl, root := startWatcher(t)

	testsupport.WriteFile(t, filepath.Join(root, "ignore.txt"), []byte("x"))
	testsupport.WriteFile(t, filepath.Join(root, "new.jpg"), []byte("x"))

	waitFor(t, func() bool { return tbl.Contains("new.jpg") })
	if tbl.Contains("ignore.txt") {
		t.Fatal("non-image inserted")
	}
	if p, _ := tbl.Priority("new.jpg"); p != 0 {
		t.Fatalf("priority = %d, want 0", p)
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	_, tbl, root := startWatcher(t)

	staged := filepath.Join(t.TempDir(), "batch")
	testsupport.WriteFile(t, filepath.Join(staged, "moved.png"), []byte("x"))
	if err := os.Rename(staged, filepath.Join(root, "batch")); err != nil {
		t.Fatalf("move dir: %v", err)
	}
	waitFor(t, func() bool { return tbl.Contains("batch/moved.png") })

	testsupport.WriteFile(t, filepath.Join(root, "batch", "later.webp"), []byte("x"))
	waitFor(t, func() bool { return tbl.Contains("batch/later.webp") })
}

func TestWatcherNeverOverwritesPriority(t *testing.T) {
	_, tbl, root := startWatcher(t)
	tbl.InsertIfAbsent("known.jpg", 3)

	testsupport.WriteFile(t, filepath.Join(root, "known.jpg"), []byte("x"))
	testsupport.WriteFile(t, filepath.Join(root, "marker.jpg"), []byte("x"))
	waitFor(t, func() bool { return tbl.Contains("marker.jpg") })
	time.Sleep(50 * time.Millisecond)

	if p, _ := tbl.Priority("known.jpg"); p != 3 {
		t.Fatalf("priority = %d, want 3", p)
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, _, _ := startWatcher(t)
	w.Stop()
	w.Stop()
	if w.Running() {
		t.Fatal("expected watcher stopped")
	}
}
