package metadata

import (
	"fmt"
	"os"
	"time"
)

// Store reads and writes embedded keyword tags.
type Store interface {
	ReadTags(path string) ([]string, error)
	WriteTags(path string, tags []string) error
}

// TagChecker reports whether an image already carries keyword tags.
type TagChecker interface {
	HasTags(path string) (bool, error)
}

// mtimeBump is added to the original modification time after a write so
// sync tools notice the change while sort-by-date order is kept.
const mtimeBump = time.Second

// WriteTagsPreservingMtime writes tags and then sets the file's modification
// time to its pre-write value plus one second.
func WriteTagsPreservingMtime(store Store, path string, tags []string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat before write: %w", err)
	}
	original := info.ModTime()
	if err := store.WriteTags(path, tags); err != nil {
		return err
	}
	restored := original.Add(mtimeBump)
	if err := os.Chtimes(path, restored, restored); err != nil {
		return fmt.Errorf("restore mtime: %w", err)
	}
	return nil
}

// MergeTags adds the remote tags path lacks and returns what was added. When
// nothing is missing the file is left untouched.
func MergeTags(store Store, path string, remote []string) ([]string, error) {
	local, err := store.ReadTags(path)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}
	added := Missing(local, remote)
	if len(added) == 0 {
		return nil, nil
	}
	if err := WriteTagsPreservingMtime(store, path, Union(local, remote)); err != nil {
		return nil, fmt.Errorf("write tags: %w", err)
	}
	return added, nil
}
