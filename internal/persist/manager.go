// Package persist saves and restores the priority table.
//
// The canonical table file is rewritten atomically at epoch boundaries.
// Between those flushes the scheduler checkpoints the entries it has
// requeued into a shadow file beside the table. After a crash, Load overlays
// the shadow onto the canonical table and immediately flushes the result, so
// completed attempts are neither lost nor repeated.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"saucetag/internal/fileutil"
	"saucetag/internal/logging"
)

const fileMode = 0o644

// Manager owns the table and shadow files.
type Manager struct {
	tablePath  string
	shadowPath string
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex
	// dirtyAll is set when a table-wide change (decrement-all) happened
	// since the last full flush; a shadow cannot describe it.
	dirtyAll bool
	// shadow accumulates requeued entries since the last full flush.
	shadow map[string]int
}

// New returns a Manager for the table at tablePath and the shadow at
// shadowPath.
func New(tablePath, shadowPath string, logger *slog.Logger) *Manager {
	return &Manager{
		tablePath:  tablePath,
		shadowPath: shadowPath,
		logger:     logging.NewComponentLogger(logger, "persist"),
		now:        time.Now,
		shadow:     make(map[string]int),
	}
}

// LoadResult describes what Load found on disk.
type LoadResult struct {
	Entries map[string]int
	// Recovered is the number of shadow entries applied on top of the table.
	Recovered int
	// CorruptPath is where an unreadable table was moved, if any.
	CorruptPath string
}

// Load reads the table, applying any shadow left by an interrupted run. A
// missing table yields an empty map. An unreadable table is moved aside and
// loading continues from empty. When a shadow was applied the merged table
// is flushed before Load returns.
func (m *Manager) Load() (LoadResult, error) {
	result := LoadResult{Entries: map[string]int{}}

	entries, err := readTable(m.tablePath)
	switch {
	case err == nil:
		result.Entries = entries
	case errors.Is(err, fs.ErrNotExist):
	case isDecodeError(err):
		moved, mvErr := fileutil.MoveAside(m.tablePath, "corrupt", m.now())
		if mvErr != nil {
			return result, fmt.Errorf("move corrupt table aside: %w", mvErr)
		}
		result.CorruptPath = moved
		logging.ErrorWithContext(m.logger, "priority table unreadable; starting empty", "table_corrupt",
			logging.String("path", m.tablePath),
			logging.String("moved_to", moved),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the moved file; the next scan rebuilds the table"),
		)
	default:
		return result, fmt.Errorf("read table: %w", err)
	}

	shadow, err := readTable(m.shadowPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		return result, nil
	case isDecodeError(err):
		// A torn shadow never replaced a good one; the previous flush is intact.
		logging.WarnWithContext(m.logger, "shadow table unreadable; discarding", "shadow_corrupt",
			logging.String("path", m.shadowPath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "attempts since the last checkpoint will be repeated"),
		)
		if rmErr := fileutil.RemoveDurable(m.shadowPath); rmErr != nil {
			return result, fmt.Errorf("remove corrupt shadow: %w", rmErr)
		}
		return result, nil
	default:
		return result, fmt.Errorf("read shadow: %w", err)
	}

	for k, p := range shadow {
		result.Entries[k] = p
	}
	result.Recovered = len(shadow)
	if err := m.Flush(result.Entries); err != nil {
		return result, fmt.Errorf("flush recovered table: %w", err)
	}
	m.logger.Info("recovered checkpoint",
		logging.Int("entries", len(result.Entries)),
		logging.Int("recovered", result.Recovered),
		logging.String(logging.FieldEventType, "table_recovered"),
	)
	return result, nil
}

// Flush atomically writes snapshot as the canonical table and removes the
// shadow.
func (m *Manager) Flush(snapshot map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked(snapshot)
}

func (m *Manager) flushLocked(snapshot map[string]int) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(m.tablePath, data, fileMode); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	if err := fileutil.RemoveDurable(m.shadowPath); err != nil {
		return fmt.Errorf("remove shadow: %w", err)
	}
	m.shadow = make(map[string]int)
	m.dirtyAll = false
	return nil
}

// Track records a requeued entry for the next checkpoint.
func (m *Manager) Track(key string, priority int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shadow[key] = priority
}

// Forget drops key from the pending shadow, for entries removed from the table.
func (m *Manager) Forget(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shadow, key)
}

// MarkRotated notes that every entry changed, forcing the next checkpoint to
// be a full flush.
func (m *Manager) MarkRotated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirtyAll = true
}

// Checkpoint persists the work done since the last flush. It writes the
// shadow file, or a full table when a rotation made the shadow insufficient.
// snapshot is only called for a full flush. It reports whether a full flush
// happened.
func (m *Manager) Checkpoint(snapshot func() map[string]int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirtyAll {
		return true, m.flushLocked(snapshot())
	}
	if len(m.shadow) == 0 {
		return false, nil
	}
	data, err := encode(m.shadow)
	if err != nil {
		return false, err
	}
	if err := fileutil.WriteFileAtomic(m.shadowPath, data, fileMode); err != nil {
		return false, fmt.Errorf("write shadow: %w", err)
	}
	return false, nil
}

// Pending returns how many requeued entries await the next flush.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.shadow)
}

// Peek returns the table as Load would see it, shadow applied, without
// touching any file. Unreadable files are reported rather than moved.
func (m *Manager) Peek() (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := readTable(m.tablePath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		entries = map[string]int{}
	default:
		return nil, err
	}
	shadow, err := readTable(m.shadowPath)
	switch {
	case err == nil:
		for k, p := range shadow {
			entries[k] = p
		}
	case errors.Is(err, fs.ErrNotExist), isDecodeError(err):
	default:
		return nil, err
	}
	return entries, nil
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode table: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var de *decodeError
	return errors.As(err, &de)
}

func readTable(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries := map[string]int{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &decodeError{err: err}
	}
	return entries, nil
}

func encode(entries map[string]int) ([]byte, error) {
	if entries == nil {
		entries = map[string]int{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode table: %w", err)
	}
	return append(data, '\n'), nil
}
