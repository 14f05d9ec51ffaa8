package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"saucetag/internal/journal"
	"saucetag/internal/testsupport"
)

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithSauceNAOKey("abcdef123456"))

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}

	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "loaded from "+env.configPath)
	requireContains(t, out, "****3456")
	if strings.Contains(out, "abcdef123456") {
		t.Fatalf("api key leaked in output: %q", out)
	}
	requireContains(t, out, env.cfg.Paths.AlbumPath)
}

func TestScanThenTable(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WritePNG(t, filepath.Join(env.cfg.Paths.AlbumPath, "a.png"), 0)
	testsupport.WritePNG(t, filepath.Join(env.cfg.Paths.AlbumPath, "set", "b.png"), 1)

	out, _, err := runCLI(t, []string{"scan"}, env.configPath)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	requireContains(t, out, "Scanned 2 images")
	requireContains(t, out, "Added 2 new entries")

	out, _, err = runCLI(t, []string{"table", "--limit", "5"}, env.configPath)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	requireContains(t, out, "Covered: 0 of 2 entries")
	requireContains(t, out, "set/b.png")
	requireContains(t, out, "Next up")
}

func TestTableEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"table"}, env.configPath)
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	requireContains(t, out, "Table is empty")
}

func TestScanRefusesWhileDaemonHoldsLock(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := env.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	lock := flock.New(env.cfg.LockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock ok=%v err=%v", ok, err)
	}
	defer lock.Unlock()

	_, _, err := runCLI(t, []string{"scan"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "rescans every") {
		t.Fatalf("err = %v, want lock refusal", err)
	}
}

func TestHistoryListsAttempts(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenJournal(t, env.cfg)
	ctx := context.Background()
	if err := store.RecordAttempt(ctx, journal.Attempt{Key: "a.png", Outcome: journal.OutcomeTagged, TagsAdded: []string{"sky", "sea"}}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if err := store.RecordAttempt(ctx, journal.Attempt{Key: "b.png", Outcome: journal.OutcomeLowConfidence, Detail: "similarity 41.20"}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "a.png")
	requireContains(t, out, "similarity 41.20")
	requireContains(t, out, "low_confidence")
	requireContains(t, out, "total")
}

func TestHistoryEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No attempts recorded yet")
}

func TestDoctor(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "Album directory")
	requireContains(t, out, "All checks passed")
}

func TestDoctorReportsMissingKey(t *testing.T) {
	t.Setenv("SAUCENAO_API_KEY", "")
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries(), testsupport.WithSauceNAOKey(""))
	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err == nil {
		t.Fatal("expected doctor to fail without an api key")
	}
	requireContains(t, out, "missing api key")
}

func TestStatusAndStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "stopped")
	requireContains(t, out, "0 entries, 0 covered")
	requireContains(t, out, "none")

	out, _, err = runCLI(t, []string{"stop"}, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
