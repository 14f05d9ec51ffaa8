// Package worktable holds the in-memory priority table of library images.
//
// Entries are ordered by (priority, key) so the lowest-priority image is
// always popped first, with ties broken by ascending key. The table is safe
// for concurrent use; the scheduler pops and requeues while the library
// watcher inserts newly discovered files.
package worktable
