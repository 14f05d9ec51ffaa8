package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// RunLogPattern matches the per-run log files the daemon writes into
// state_dir. The saucetag.log pointer does not match it.
const RunLogPattern = "saucetag-*.log"

type runLog struct {
	path    string
	modTime time.Time
}

// PruneRunLogs deletes per-run logs in dir last written more than
// retentionDays ago and returns the removed paths, oldest first. Files named
// in keep are never removed. A retentionDays of 0 disables pruning.
func PruneRunLogs(logger *slog.Logger, dir string, retentionDays int, keep ...string) []string {
	if retentionDays <= 0 || dir == "" {
		return nil
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	kept := make(map[string]bool, len(keep))
	for _, path := range keep {
		kept[filepath.Base(path)] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Debug("log directory unreadable; nothing pruned", String("dir", dir), Error(err))
		return nil
	}
	var stale []runLog
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || kept[name] {
			continue
		}
		if ok, _ := filepath.Match(RunLogPattern, name); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		stale = append(stale, runLog{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}
	slices.SortFunc(stale, func(a, b runLog) int { return a.modTime.Compare(b.modTime) })

	removed := make([]string, 0, len(stale))
	for _, f := range stale {
		if err := os.Remove(f.path); err != nil {
			WarnWithContext(logger, "run log not pruned", "log_retention_failed",
				String("path", f.path),
				Error(err),
				String(FieldErrorHint, "check state_dir ownership"),
				String(FieldImpact, "old run log stays on disk"),
			)
			continue
		}
		removed = append(removed, f.path)
	}
	if len(removed) > 0 {
		logger.Info("pruned run logs",
			Int("removed", len(removed)),
			Int("retention_days", retentionDays),
			String(FieldEventType, "logs_pruned"),
		)
	}
	return removed
}
