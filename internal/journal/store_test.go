package journal_test

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"saucetag/internal/journal"
	"saucetag/internal/testsupport"
)

func TestRecordAndRecent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	if err := store.RecordAttempt(ctx, journal.Attempt{Key: "a.jpg", Outcome: journal.OutcomeTagged, TagsAdded: []string{"sky", "sea"}}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if err := store.RecordAttempt(ctx, journal.Attempt{Key: "b.jpg", Outcome: journal.OutcomeLowConfidence, Detail: "similarity 40"}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(recent))
	}
	if recent[0].Key != "b.jpg" || recent[0].Detail != "similarity 40" {
		t.Fatalf("expected newest first, got %+v", recent[0])
	}
	if !reflect.DeepEqual(recent[1].TagsAdded, []string{"sky", "sea"}) {
		t.Fatalf("unexpected tags %v", recent[1].TagsAdded)
	}
	if recent[1].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
}

func TestSummaryAndPrune(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	for _, a := range []journal.Attempt{
		{Key: "old.jpg", Outcome: journal.OutcomeTagged, CreatedAt: old},
		{Key: "a.jpg", Outcome: journal.OutcomeTagged},
		{Key: "b.jpg", Outcome: journal.OutcomeTagged},
		{Key: "c.jpg", Outcome: journal.OutcomeNetwork},
	} {
		if err := store.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	summary, err := store.Summary(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary[journal.OutcomeTagged] != 2 || summary[journal.OutcomeNetwork] != 1 {
		t.Fatalf("unexpected summary %v", summary)
	}

	removed, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned row, got %d", removed)
	}
}

func TestStrikes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := store.AddStrike(ctx, "bad.webp", "status -4")
		if err != nil {
			t.Fatalf("AddStrike: %v", err)
		}
		if got != want {
			t.Fatalf("strike count = %d, want %d", got, want)
		}
	}
	if err := store.ClearStrike(ctx, "bad.webp"); err != nil {
		t.Fatalf("ClearStrike: %v", err)
	}
	if n, err := store.Strikes(ctx, "bad.webp"); err != nil || n != 0 {
		t.Fatalf("expected 0 strikes after clear, got %d (%v)", n, err)
	}
}

func TestHashesRoundTripHighBit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	const hash = uint64(0xF0F0_0000_0000_0001)
	if err := store.StoreHash(ctx, hash, "a.png", []string{"x"}); err != nil {
		t.Fatalf("StoreHash: %v", err)
	}
	if err := store.StoreHash(ctx, hash, "b.png", []string{"y", "z"}); err != nil {
		t.Fatalf("StoreHash overwrite: %v", err)
	}

	entries, err := store.Hashes(ctx)
	if err != nil {
		t.Fatalf("Hashes: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Hash != hash || entries[0].Key != "b.png" || len(entries[0].Tags) != 2 {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.JournalPath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	_, err = journal.Open(cfg)
	if !errors.Is(err, journal.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
