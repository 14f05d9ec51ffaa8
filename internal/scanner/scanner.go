// Package scanner walks the image library and seeds the priority table.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"saucetag/internal/logging"
	"saucetag/internal/metadata"
)

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
	".webp": {},
}

// syntheticDirs are thumbnail and index folders created by NAS software.
var syntheticDirs = map[string]struct{}{
	"@eaDir": {},
}

// Inserter is the table surface the scanner needs.
type Inserter interface {
	InsertIfAbsent(key string, priority int) bool
}

// Stats summarizes one scan.
type Stats struct {
	Images   int
	Inserted int
	Skipped  int
	Elapsed  time.Duration
}

// Scanner seeds a table from the library rooted at Root.
type Scanner struct {
	root    string
	checker metadata.TagChecker
	logger  *slog.Logger
}

// New returns a Scanner for root. checker decides each new file's initial
// priority.
func New(root string, checker metadata.TagChecker, logger *slog.Logger) *Scanner {
	return &Scanner{
		root:    root,
		checker: checker,
		logger:  logging.NewComponentLogger(logger, "scanner"),
	}
}

// Root returns the library root.
func (s *Scanner) Root() string { return s.root }

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// SkipDir reports whether a directory is excluded from scanning.
func SkipDir(name string) bool {
	if _, ok := syntheticDirs[name]; ok {
		return true
	}
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// Key converts an absolute path under root into a table key.
func Key(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	if rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("%s is outside %s", path, root)
	}
	return filepath.ToSlash(rel), nil
}

// Path converts a table key back into an absolute path under root.
func Path(root, key string) string {
	return filepath.Join(root, filepath.FromSlash(key))
}

// InitialPriority is 1 for images that already carry keywords and 0
// otherwise, so untagged images are processed first.
func (s *Scanner) InitialPriority(path string) int {
	if s.checker == nil {
		return 0
	}
	has, err := s.checker.HasTags(path)
	if err != nil {
		s.logger.Debug("keyword probe failed; treating as untagged",
			logging.String("path", path),
			logging.Error(err),
		)
		return 0
	}
	if has {
		return 1
	}
	return 0
}

// Add inserts a single image path if it is absent from tbl.
func (s *Scanner) Add(tbl Inserter, path string) (bool, error) {
	key, err := Key(s.root, path)
	if err != nil {
		return false, err
	}
	return tbl.InsertIfAbsent(key, s.InitialPriority(path)), nil
}

// Scan walks the library and inserts every image not already in tbl.
// Unreadable subdirectories are skipped with a warning.
func (s *Scanner) Scan(ctx context.Context, tbl Inserter) (Stats, error) {
	started := time.Now()
	var stats Stats

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == s.root {
				return walkErr
			}
			logging.WarnWithContext(s.logger, "skipping unreadable path", "scan_path_unreadable",
				logging.String("path", path),
				logging.Error(walkErr),
				logging.String(logging.FieldErrorHint, "check permissions under album_path"),
				logging.String(logging.FieldImpact, "images below this path are not tagged"),
			)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != s.root && SkipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsImage(d.Name()) {
			return nil
		}

		stats.Images++
		key, err := Key(s.root, path)
		if err != nil {
			stats.Skipped++
			return nil
		}
		if tbl.InsertIfAbsent(key, s.InitialPriority(path)) {
			stats.Inserted++
		}
		return nil
	})
	stats.Elapsed = time.Since(started)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return stats, err
		}
		return stats, fmt.Errorf("scan %s: %w", s.root, err)
	}

	s.logger.Info("library scan complete",
		logging.Int("images", stats.Images),
		logging.Int("inserted", stats.Inserted),
		logging.Duration("elapsed", stats.Elapsed),
		logging.String(logging.FieldEventType, "scan_complete"),
	)
	return stats, nil
}
