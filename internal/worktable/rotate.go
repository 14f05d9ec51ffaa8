package worktable

// Requeue reinserts a popped item after a completed attempt and returns its
// new priority. The item must not be present in the table.
//
// The priority advances by one. When that reaches MaxPriority every other
// entry is decremented first, and rotated reports true so callers can tell a
// table-wide change happened.
func (t *Table) Requeue(item Item) (priority int, rotated bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := item.Priority + 1
	if next >= MaxPriority {
		t.decrementAllLocked()
		rotated = true
		next = MaxPriority
	}
	t.setLocked(item.Key, next)
	return next, rotated
}

// Restore reinserts a popped item at its original priority.
func (t *Table) Restore(item Item) {
	t.Set(item.Key, item.Priority)
}
