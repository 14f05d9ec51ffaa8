package persist

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"saucetag/internal/logging"
	"saucetag/internal/worktable"
)

func newManager(t *testing.T) (*Manager, string, string) {
	t.Helper()
	dir := t.TempDir()
	table := filepath.Join(dir, "table.json")
	shadow := table + ".shadow"
	return New(table, shadow, logging.NewNop()), table, shadow
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestLoadMissingTableIsEmpty(t *testing.T) {
	m, _, _ := newManager(t)
	res, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Entries) != 0 || res.Recovered != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestFlushRoundTripAndRemovesShadow(t *testing.T) {
	m, table, shadow := newManager(t)
	m.Track("a.jpg", 1)
	if _, err := m.Checkpoint(nil); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if !exists(shadow) {
		t.Fatal("expected shadow after checkpoint")
	}

	want := map[string]int{"a.jpg": 1, "b.jpg": 0}
	if err := m.Flush(want); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if exists(shadow) {
		t.Fatal("flush should remove the shadow")
	}
	if m.Pending() != 0 {
		t.Fatalf("flush should clear pending entries, got %d", m.Pending())
	}

	res, err := New(table, shadow, logging.NewNop()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(res.Entries, want) {
		t.Fatalf("entries = %v, want %v", res.Entries, want)
	}
}

func TestCrashBeforeCheckpointRestoresCanonical(t *testing.T) {
	m, table, shadow := newManager(t)
	initial := map[string]int{"a": 0, "b": 0, "c": 0}
	if err := m.Flush(initial); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	tbl := worktable.New()
	tbl.Load(initial)
	item, _ := tbl.PopMin()
	p, _ := tbl.Requeue(item)
	m.Track(item.Key, p)
	// Crash: no checkpoint, no flush.

	res, err := New(table, shadow, logging.NewNop()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(res.Entries, initial) {
		t.Fatalf("entries = %v, want %v", res.Entries, initial)
	}
}

func TestCrashAfterCheckpointAppliesShadow(t *testing.T) {
	m, table, shadow := newManager(t)
	if err := m.Flush(map[string]int{"a": 0, "b": 0, "c": 0}); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	m.Track("a", 1)
	m.Track("b", 1)
	if full, err := m.Checkpoint(nil); err != nil || full {
		t.Fatalf("Checkpoint full=%v err=%v", full, err)
	}

	res, err := New(table, shadow, logging.NewNop()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]int{"a": 1, "b": 1, "c": 0}
	if !reflect.DeepEqual(res.Entries, want) {
		t.Fatalf("entries = %v, want %v", res.Entries, want)
	}
	if res.Recovered != 2 {
		t.Fatalf("recovered = %d, want 2", res.Recovered)
	}
	if exists(shadow) {
		t.Fatal("recovery should flush and remove the shadow")
	}
	data, err := os.ReadFile(table)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"a": 1`) {
		t.Fatalf("recovered state not flushed to canonical table: %s", data)
	}
}

func TestCheckpointAfterRotationFlushesFullTable(t *testing.T) {
	m, table, shadow := newManager(t)
	m.Track("a", 4)
	m.MarkRotated()

	snapshot := map[string]int{"a": 4, "b": 1}
	full, err := m.Checkpoint(func() map[string]int { return snapshot })
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if !full {
		t.Fatal("expected rotation to force a full flush")
	}
	if exists(shadow) {
		t.Fatal("full flush should leave no shadow")
	}
	res, err := New(table, shadow, logging.NewNop()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(res.Entries, snapshot) {
		t.Fatalf("entries = %v, want %v", res.Entries, snapshot)
	}

	if full, err := m.Checkpoint(nil); err != nil || full {
		t.Fatalf("second checkpoint should be a no-op, full=%v err=%v", full, err)
	}
}

func TestForgetDropsPendingEntry(t *testing.T) {
	m, _, shadow := newManager(t)
	m.Track("gone.jpg", 1)
	m.Forget("gone.jpg")
	if _, err := m.Checkpoint(nil); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if exists(shadow) {
		t.Fatal("empty checkpoint should not write a shadow")
	}
}

func TestLoadCorruptTableMovesAside(t *testing.T) {
	m, table, _ := newManager(t)
	if err := os.WriteFile(table, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Fatalf("expected empty entries, got %v", res.Entries)
	}
	if res.CorruptPath == "" || !exists(res.CorruptPath) {
		t.Fatalf("expected corrupt file preserved, got %q", res.CorruptPath)
	}
	if exists(table) {
		t.Fatal("corrupt table should have been moved")
	}
}

func TestLoadCorruptShadowIsDiscarded(t *testing.T) {
	m, table, shadow := newManager(t)
	if err := m.Flush(map[string]int{"a": 2}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(shadow, []byte("[broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := New(table, shadow, logging.NewNop()).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Entries["a"] != 2 || res.Recovered != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if exists(shadow) {
		t.Fatal("corrupt shadow should be removed")
	}
}

func TestPeekAppliesShadowWithoutWriting(t *testing.T) {
	m, table, shadow := newManager(t)
	if err := m.Flush(map[string]int{"a": 0, "b": 0}); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	m.Track("a", 2)
	if _, err := m.Checkpoint(nil); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	got, err := New(table, shadow, logging.NewNop()).Peek()
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if want := map[string]int{"a": 2, "b": 0}; !reflect.DeepEqual(got, want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	if !exists(shadow) {
		t.Fatal("Peek must leave the shadow in place")
	}
}

func TestPeekReportsCorruptTable(t *testing.T) {
	m, table, _ := newManager(t)
	if err := os.WriteFile(table, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Peek(); err == nil {
		t.Fatal("expected decode error")
	}
	if !exists(table) {
		t.Fatal("Peek must not move the table")
	}
}
