package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"saucetag/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The album directory is created; the table file is not.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.SauceNAO.APIKey = "test"
	cfgVal.Paths.AlbumPath = filepath.Join(base, "album")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.TablePath = filepath.Join(base, "state", "table.json")
	cfgVal.Quota.ShortWindowSeconds = 0
	cfgVal.Workflow.WatchSettleSeconds = 0

	if err := os.MkdirAll(cfgVal.Paths.AlbumPath, 0o755); err != nil {
		t.Fatalf("mkdir album: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithSauceNAOKey sets the SauceNAO API key on the test config.
func WithSauceNAOKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.SauceNAO.APIKey = key
	}
}

// WithFlushEvery overrides the checkpoint cadence.
func WithFlushEvery(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.FlushEveryNItems = n
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, exiftool is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"exiftool"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.AlbumPath)
}
