package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the library, table, and state locations.
type Paths struct {
	AlbumPath string `toml:"album_path"`
	TablePath string `toml:"table_path"`
	StateDir  string `toml:"state_dir"`
}

// SauceNAO contains configuration for the reverse image search service.
type SauceNAO struct {
	APIKey              string  `toml:"api_key"`
	BaseURL             string  `toml:"base_url"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	DBIndex             int     `toml:"db_index"`
	TimeoutSeconds      int     `toml:"timeout_seconds"`
}

// Gelbooru contains configuration for the tag lookup service.
type Gelbooru struct {
	BaseURL           string  `toml:"base_url"`
	APIKey            string  `toml:"api_key"`
	UserID            string  `toml:"user_id"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Quota contains the rate-limit accounting knobs.
type Quota struct {
	// PreserveQuotaPercent is the share of the daily limit kept in reserve.
	PreserveQuotaPercent float64 `toml:"preserve_quota_percent"`
	// ShortWindowSeconds is the pacing budget divided across the remaining
	// short-window allowance after each call.
	ShortWindowSeconds int `toml:"short_window_seconds"`
	// StateTTLMinutes is how long an observed quota is trusted across epochs
	// before the next epoch spends a call to re-read it.
	StateTTLMinutes int `toml:"state_ttl_minutes"`
}

// Workflow contains configuration for scheduler timing.
type Workflow struct {
	RescanIntervalMinutes int  `toml:"rescan_interval_minutes"`
	FlushEveryNItems      int  `toml:"flush_every_n_items"`
	InvalidStrikeLimit    int  `toml:"invalid_strike_limit"`
	Watch                 bool `toml:"watch"`
	WatchSettleSeconds    int  `toml:"watch_settle_seconds"`
}

// Metadata contains configuration for the embedded keyword store.
type Metadata struct {
	ExiftoolPath string `toml:"exiftool_path"`
}

// Dedup contains configuration for the perceptual duplicate cache.
type Dedup struct {
	Enabled     bool `toml:"enabled"`
	MaxDistance int  `toml:"max_distance"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for saucetag.
//
// Configuration sections by subsystem:
//   - Paths: album root, priority table file, and state directory
//   - SauceNAO: reverse image search credentials and match threshold
//   - Gelbooru: tag lookup endpoint and request rate
//   - Quota: daily reserve and short-window pacing
//   - Workflow: rescan interval, checkpoint cadence, and watcher
//   - Metadata: exiftool location
//   - Dedup: perceptual duplicate cache
//   - Logging: log format, level, and retention
type Config struct {
	Paths    Paths    `toml:"paths"`
	SauceNAO SauceNAO `toml:"saucenao"`
	Gelbooru Gelbooru `toml:"gelbooru"`
	Quota    Quota    `toml:"quota"`
	Workflow Workflow `toml:"workflow"`
	Metadata Metadata `toml:"metadata"`
	Dedup    Dedup    `toml:"dedup"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("saucetag.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state directory and the table's parent
// directory. The album itself is never created; a missing album is reported
// by preflight instead.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, filepath.Dir(c.Paths.TablePath)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// JournalPath returns the location of the sqlite attempt journal.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "journal.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "saucetag.lock")
}

// PIDPath returns where the running daemon records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "saucetag.pid")
}

// ShadowPath returns the crash-recovery shadow table location.
func (c *Config) ShadowPath() string {
	return c.Paths.TablePath + ".shadow"
}

// ExiftoolBinary returns the exiftool executable name or path.
func (c *Config) ExiftoolBinary() string {
	if p := strings.TrimSpace(c.Metadata.ExiftoolPath); p != "" {
		return p
	}
	return "exiftool"
}

// RescanInterval returns the sleep between epochs.
func (c *Config) RescanInterval() time.Duration {
	return time.Duration(c.Workflow.RescanIntervalMinutes) * time.Minute
}

// QuotaStateTTL returns how long an observed quota stays usable across epochs.
func (c *Config) QuotaStateTTL() time.Duration {
	return time.Duration(c.Quota.StateTTLMinutes) * time.Minute
}

// ShortWindow returns the pacing budget divided across the short-window allowance.
func (c *Config) ShortWindow() time.Duration {
	return time.Duration(c.Quota.ShortWindowSeconds) * time.Second
}

// SauceNAOTimeout returns the client-side HTTP timeout for search calls.
func (c *Config) SauceNAOTimeout() time.Duration {
	return time.Duration(c.SauceNAO.TimeoutSeconds) * time.Second
}

// WatchSettle returns how long the watcher waits before reading a new file.
func (c *Config) WatchSettle() time.Duration {
	return time.Duration(c.Workflow.WatchSettleSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}
