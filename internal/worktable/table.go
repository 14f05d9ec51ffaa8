package worktable

import (
	"sync"

	"github.com/google/btree"
)

// MaxPriority is the highest priority an entry can hold. Reaching it triggers
// a decrement of every other entry so the table never saturates.
const MaxPriority = 4

const btreeDegree = 32

// Item is one image awaiting annotation.
type Item struct {
	Key      string
	Priority int
}

func lessItem(a, b Item) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Key < b.Key
}

// Table is a unique-key min-priority table.
type Table struct {
	mu    sync.Mutex
	tree  *btree.BTreeG[Item]
	index map[string]int
}

// New returns an empty table.
func New() *Table {
	return &Table{
		tree:  btree.NewG(btreeDegree, lessItem),
		index: make(map[string]int),
	}
}

// InsertIfAbsent adds key at the given priority unless it is already present.
// It reports whether an insert happened.
func (t *Table) InsertIfAbsent(key string, priority int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[key]; ok {
		return false
	}
	t.insertLocked(key, priority)
	return true
}

// Set inserts key or moves it to priority if already present.
func (t *Table) Set(key string, priority int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLocked(key, priority)
}

func (t *Table) setLocked(key string, priority int) {
	if prev, ok := t.index[key]; ok {
		t.tree.Delete(Item{Key: key, Priority: prev})
		delete(t.index, key)
	}
	t.insertLocked(key, priority)
}

func (t *Table) insertLocked(key string, priority int) {
	priority = clamp(priority)
	t.index[key] = priority
	t.tree.ReplaceOrInsert(Item{Key: key, Priority: priority})
}

// PopMin removes and returns the entry with the lowest priority.
func (t *Table) PopMin() (Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.tree.DeleteMin()
	if !ok {
		return Item{}, false
	}
	delete(t.index, item.Key)
	return item, true
}

// Contains reports whether key is present.
func (t *Table) Contains(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.index[key]
	return ok
}

// Priority returns the current priority of key.
func (t *Table) Priority(key string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.index[key]
	return p, ok
}

// Remove deletes key and reports whether it was present.
func (t *Table) Remove(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.index[key]
	if !ok {
		return false
	}
	t.tree.Delete(Item{Key: key, Priority: p})
	delete(t.index, key)
	return true
}

// DecrementAll lowers every entry by one, stopping at zero. Relative order
// among entries above zero is unchanged.
func (t *Table) DecrementAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decrementAllLocked()
}

func (t *Table) decrementAllLocked() {
	next := btree.NewG(btreeDegree, lessItem)
	t.tree.Ascend(func(item Item) bool {
		if item.Priority > 0 {
			item.Priority--
		}
		t.index[item.Key] = item.Priority
		next.ReplaceOrInsert(item)
		return true
	})
	t.tree = next
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.index)
}

// IsEmpty reports whether the table has no entries.
func (t *Table) IsEmpty() bool {
	return t.Len() == 0
}

// Snapshot returns a copy of the key → priority mapping.
func (t *Table) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.index))
	for k, p := range t.index {
		out[k] = p
	}
	return out
}

// Lowest returns up to n entries in pop order.
func (t *Table) Lowest(n int) []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Item, 0, min(n, len(t.index)))
	t.tree.Ascend(func(item Item) bool {
		if len(out) >= n {
			return false
		}
		out = append(out, item)
		return true
	})
	return out
}

// Coverage returns how many entries have been annotated at least once
// (priority above zero) and the total entry count.
func (t *Table) Coverage() (covered, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.index {
		if p > 0 {
			covered++
		}
	}
	return covered, len(t.index)
}

// Load replaces the table contents with entries.
func (t *Table) Load(entries map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tree.Clear(false)
	t.index = make(map[string]int, len(entries))
	for k, p := range entries {
		t.insertLocked(k, p)
	}
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > MaxPriority:
		return MaxPriority
	default:
		return p
	}
}
