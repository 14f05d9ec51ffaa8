package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"

	"saucetag/internal/config"
	"saucetag/internal/metadata"
	"saucetag/internal/persist"
	"saucetag/internal/scanner"
	"saucetag/internal/worktable"
)

// ErrLocked is returned when another saucetag process holds the instance lock.
var ErrLocked = errors.New("another saucetag instance is running")

// ScanResult summarizes a one-shot scan.
type ScanResult struct {
	Stats     scanner.Stats
	Recovered int
	Covered   int
	Total     int
}

// ScanOnce loads the table, scans the library, and flushes, without
// contacting any remote service. It refuses to run alongside a daemon.
func ScanOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ScanResult, error) {
	var result ScanResult
	if err := cfg.EnsureDirectories(); err != nil {
		return result, err
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return result, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return result, ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	pm := persist.New(cfg.Paths.TablePath, cfg.ShadowPath(), logger)
	loaded, err := pm.Load()
	if err != nil {
		return result, fmt.Errorf("load table: %w", err)
	}
	result.Recovered = loaded.Recovered

	tbl := worktable.New()
	tbl.Load(loaded.Entries)
	result.Stats, err = scanner.New(cfg.Paths.AlbumPath, metadata.QuickReader{}, logger).Scan(ctx, tbl)
	if err != nil {
		return result, err
	}
	if err := pm.Flush(tbl.Snapshot()); err != nil {
		return result, fmt.Errorf("flush table: %w", err)
	}
	result.Covered, result.Total = tbl.Coverage()
	return result, nil
}
