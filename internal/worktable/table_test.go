package worktable

import (
	"fmt"
	"sync"
	"testing"
)

func TestInsertIfAbsentKeepsKeysUnique(t *testing.T) {
	tbl := New()
	if !tbl.InsertIfAbsent("a.jpg", 0) {
		t.Fatal("expected first insert to succeed")
	}
	if tbl.InsertIfAbsent("a.jpg", 3) {
		t.Fatal("expected duplicate insert to be rejected")
	}
	if p, _ := tbl.Priority("a.jpg"); p != 0 {
		t.Fatalf("duplicate insert changed priority to %d", p)
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", tbl.Len())
	}
}

func TestPopMinOrdersByPriorityThenKey(t *testing.T) {
	tbl := New()
	tbl.InsertIfAbsent("c.jpg", 1)
	tbl.InsertIfAbsent("b.jpg", 0)
	tbl.InsertIfAbsent("a.jpg", 1)
	tbl.InsertIfAbsent("d.jpg", 0)

	want := []string{"b.jpg", "d.jpg", "a.jpg", "c.jpg"}
	for i, key := range want {
		item, ok := tbl.PopMin()
		if !ok {
			t.Fatalf("pop %d: table unexpectedly empty", i)
		}
		if item.Key != key {
			t.Fatalf("pop %d: got %q, want %q", i, item.Key, key)
		}
	}
	if _, ok := tbl.PopMin(); ok {
		t.Fatal("expected empty table after draining")
	}
	if !tbl.IsEmpty() {
		t.Fatal("IsEmpty should report true")
	}
}

func TestRemoveAndContains(t *testing.T) {
	tbl := New()
	tbl.InsertIfAbsent("a.jpg", 2)
	if !tbl.Contains("a.jpg") {
		t.Fatal("expected key present")
	}
	if !tbl.Remove("a.jpg") {
		t.Fatal("expected remove to report true")
	}
	if tbl.Remove("a.jpg") {
		t.Fatal("expected second remove to report false")
	}
	if tbl.Contains("a.jpg") {
		t.Fatal("expected key absent")
	}
	if _, ok := tbl.PopMin(); ok {
		t.Fatal("removed key still in ordering")
	}
}

func TestDecrementAllClampsAtZero(t *testing.T) {
	tbl := New()
	tbl.Load(map[string]int{"a": 0, "b": 1, "c": 3})
	tbl.DecrementAll()

	got := tbl.Snapshot()
	want := map[string]int{"a": 0, "b": 0, "c": 2}
	for k, p := range want {
		if got[k] != p {
			t.Fatalf("%s: got %d, want %d", k, got[k], p)
		}
	}
	item, _ := tbl.PopMin()
	if item.Key != "a" {
		t.Fatalf("tie after decrement should break by key, got %q", item.Key)
	}
}

func TestLoadClampsOutOfRangePriorities(t *testing.T) {
	tbl := New()
	tbl.Load(map[string]int{"neg": -3, "big": 99})
	if p, _ := tbl.Priority("neg"); p != 0 {
		t.Fatalf("neg: got %d", p)
	}
	if p, _ := tbl.Priority("big"); p != MaxPriority {
		t.Fatalf("big: got %d", p)
	}
}

func TestRequeueAdvancesAndRotates(t *testing.T) {
	tbl := New()
	tbl.Load(map[string]int{"a": 3, "b": 2, "c": 0})

	item, _ := tbl.PopMin() // c
	if p, rotated := tbl.Requeue(item); p != 1 || rotated {
		t.Fatalf("c requeue: got priority %d rotated=%v", p, rotated)
	}

	tbl.Remove("a")
	p, rotated := tbl.Requeue(Item{Key: "a", Priority: 3})
	if p != MaxPriority || !rotated {
		t.Fatalf("a requeue: got priority %d rotated=%v", p, rotated)
	}
	got := tbl.Snapshot()
	if got["b"] != 1 || got["c"] != 0 || got["a"] != MaxPriority {
		t.Fatalf("unexpected table after rotation: %v", got)
	}
}

func TestRequeueConservesEntries(t *testing.T) {
	tbl := New()
	keys := map[string]int{}
	for i := 0; i < 20; i++ {
		keys[fmt.Sprintf("img-%02d.jpg", i)] = i % 3
	}
	tbl.Load(keys)

	for i := 0; i < 500; i++ {
		item, ok := tbl.PopMin()
		if !ok {
			t.Fatal("table drained unexpectedly")
		}
		tbl.Requeue(item)
		if tbl.Len() != len(keys) {
			t.Fatalf("after %d pops: got %d entries, want %d", i, tbl.Len(), len(keys))
		}
	}
}

func TestRotationLiveness(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			tbl := New()
			last := make(map[string]int, n)
			for i := 0; i < n; i++ {
				key := fmt.Sprintf("k%03d", i)
				tbl.InsertIfAbsent(key, 0)
				last[key] = -1
			}
			for step := 0; step < 60*n; step++ {
				item, _ := tbl.PopMin()
				if gap := step - last[item.Key]; gap > 2*n {
					t.Fatalf("%s waited %d pops, bound is %d", item.Key, gap, 2*n)
				}
				last[item.Key] = step
				tbl.Requeue(item)
			}
			end := 60 * n
			for key, step := range last {
				if end-step > 2*n {
					t.Fatalf("%s starved: last popped at %d of %d", key, step, end)
				}
			}
		})
	}
}

func TestLowestAndCoverage(t *testing.T) {
	tbl := New()
	tbl.Load(map[string]int{"a": 2, "b": 0, "c": 1, "d": 0})

	lowest := tbl.Lowest(3)
	if len(lowest) != 3 || lowest[0].Key != "b" || lowest[1].Key != "d" || lowest[2].Key != "c" {
		t.Fatalf("unexpected lowest entries: %+v", lowest)
	}
	covered, total := tbl.Coverage()
	if covered != 2 || total != 4 {
		t.Fatalf("coverage: got %d/%d", covered, total)
	}
}

func TestConcurrentInsertDuringPop(t *testing.T) {
	tbl := New()
	for i := 0; i < 100; i++ {
		tbl.InsertIfAbsent(fmt.Sprintf("seed-%03d", i), 0)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			tbl.InsertIfAbsent(fmt.Sprintf("new-%03d", i%50), 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if item, ok := tbl.PopMin(); ok {
				tbl.Requeue(item)
			}
		}
	}()
	wg.Wait()

	if tbl.Len() != 150 {
		t.Fatalf("expected 150 unique entries, got %d", tbl.Len())
	}
}
