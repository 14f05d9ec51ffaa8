package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"saucetag/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("SAUCENAO_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantTable := filepath.Join(tempHome, ".local", "share", "saucetag", "table.json")
	if cfg.Paths.TablePath != wantTable {
		t.Fatalf("unexpected table path: got %q want %q", cfg.Paths.TablePath, wantTable)
	}
	if cfg.Paths.AlbumPath != filepath.Join(tempHome, "Pictures") {
		t.Fatalf("unexpected album path: %q", cfg.Paths.AlbumPath)
	}
	if cfg.SauceNAO.APIKey != "test-key" {
		t.Fatalf("expected SauceNAO key from env, got %q", cfg.SauceNAO.APIKey)
	}
	if cfg.Quota.PreserveQuotaPercent != 25 {
		t.Fatalf("unexpected preserve quota percent: %v", cfg.Quota.PreserveQuotaPercent)
	}
	if cfg.Workflow.FlushEveryNItems != 3 {
		t.Fatalf("unexpected flush cadence: %d", cfg.Workflow.FlushEveryNItems)
	}
	if !cfg.Dedup.Enabled {
		t.Fatal("expected dedup enabled by default")
	}
	if cfg.ShadowPath() != wantTable+".shadow" {
		t.Fatalf("unexpected shadow path: %q", cfg.ShadowPath())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.StateDir); err != nil || !info.IsDir() {
		t.Fatalf("expected state dir to exist: %v", err)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "saucetag.toml")

	type payload struct {
		Paths struct {
			AlbumPath string `toml:"album_path"`
			TablePath string `toml:"table_path"`
		} `toml:"paths"`
		SauceNAO struct {
			APIKey              string  `toml:"api_key"`
			SimilarityThreshold float64 `toml:"similarity_threshold"`
		} `toml:"saucenao"`
		Workflow struct {
			RescanIntervalMinutes int `toml:"rescan_interval_minutes"`
			FlushEveryNItems      int `toml:"flush_every_n_items"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Paths.AlbumPath = filepath.Join(tempDir, "album")
	custom.Paths.TablePath = filepath.Join(tempDir, "state", "table.json")
	custom.SauceNAO.APIKey = "abc123"
	custom.SauceNAO.SimilarityThreshold = 80
	custom.Workflow.RescanIntervalMinutes = 15
	custom.Workflow.FlushEveryNItems = 10
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.SauceNAO.APIKey != "abc123" {
		t.Fatalf("expected key from file, got %q", cfg.SauceNAO.APIKey)
	}
	if cfg.SauceNAO.SimilarityThreshold != 80 {
		t.Fatalf("expected similarity threshold 80, got %v", cfg.SauceNAO.SimilarityThreshold)
	}
	if cfg.RescanInterval().Minutes() != 15 {
		t.Fatalf("expected 15 minute rescan, got %v", cfg.RescanInterval())
	}
	if cfg.Workflow.FlushEveryNItems != 10 {
		t.Fatalf("expected flush cadence 10, got %d", cfg.Workflow.FlushEveryNItems)
	}
	if cfg.SauceNAO.DBIndex != 25 {
		t.Fatalf("expected default db index to survive partial file, got %d", cfg.SauceNAO.DBIndex)
	}
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"preserve at 100", func(c *config.Config) { c.Quota.PreserveQuotaPercent = 100 }, "preserve_quota_percent"},
		{"negative preserve", func(c *config.Config) { c.Quota.PreserveQuotaPercent = -1 }, "preserve_quota_percent"},
		{"similarity above 100", func(c *config.Config) { c.SauceNAO.SimilarityThreshold = 101 }, "similarity_threshold"},
		{"negative rescan", func(c *config.Config) { c.Workflow.RescanIntervalMinutes = -5 }, "rescan_interval_minutes"},
		{"zero rescan", func(c *config.Config) { c.Workflow.RescanIntervalMinutes = 0 }, "rescan_interval_minutes"},
		{"zero quota ttl", func(c *config.Config) { c.Quota.StateTTLMinutes = 0 }, "state_ttl_minutes"},
		{"missing album", func(c *config.Config) { c.Paths.AlbumPath = "" }, "album_path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Workflow.InvalidStrikeLimit != 3 {
		t.Fatalf("unexpected strike limit: %d", cfg.Workflow.InvalidStrikeLimit)
	}
}
