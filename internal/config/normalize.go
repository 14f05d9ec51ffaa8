package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSauceNAO()
	c.normalizeGelbooru()
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.Metadata.ExiftoolPath = strings.TrimSpace(c.Metadata.ExiftoolPath)
	if c.Dedup.MaxDistance < 0 {
		c.Dedup.MaxDistance = 0
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.AlbumPath, err = expandPath(strings.TrimSpace(c.Paths.AlbumPath)); err != nil {
		return fmt.Errorf("paths.album_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TablePath) == "" {
		c.Paths.TablePath = defaultTablePath
	}
	if c.Paths.TablePath, err = expandPath(c.Paths.TablePath); err != nil {
		return fmt.Errorf("paths.table_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeSauceNAO() {
	c.SauceNAO.APIKey = strings.TrimSpace(c.SauceNAO.APIKey)
	if c.SauceNAO.APIKey == "" {
		if value, ok := os.LookupEnv("SAUCENAO_API_KEY"); ok {
			c.SauceNAO.APIKey = strings.TrimSpace(value)
		}
	}
	c.SauceNAO.BaseURL = strings.TrimRight(strings.TrimSpace(c.SauceNAO.BaseURL), "/")
	if c.SauceNAO.BaseURL == "" {
		c.SauceNAO.BaseURL = defaultSauceNAOBaseURL
	}
	if c.SauceNAO.DBIndex <= 0 {
		c.SauceNAO.DBIndex = defaultSauceNAODBIndex
	}
	if c.SauceNAO.TimeoutSeconds <= 0 {
		c.SauceNAO.TimeoutSeconds = defaultSauceNAOTimeout
	}
}

func (c *Config) normalizeGelbooru() {
	c.Gelbooru.BaseURL = strings.TrimRight(strings.TrimSpace(c.Gelbooru.BaseURL), "/")
	if c.Gelbooru.BaseURL == "" {
		c.Gelbooru.BaseURL = defaultGelbooruBaseURL
	}
	c.Gelbooru.APIKey = strings.TrimSpace(c.Gelbooru.APIKey)
	if c.Gelbooru.APIKey == "" {
		if value, ok := os.LookupEnv("GELBOORU_API_KEY"); ok {
			c.Gelbooru.APIKey = strings.TrimSpace(value)
		}
	}
	c.Gelbooru.UserID = strings.TrimSpace(c.Gelbooru.UserID)
	if c.Gelbooru.UserID == "" {
		if value, ok := os.LookupEnv("GELBOORU_USER_ID"); ok {
			c.Gelbooru.UserID = strings.TrimSpace(value)
		}
	}
	if c.Gelbooru.RequestsPerSecond <= 0 {
		c.Gelbooru.RequestsPerSecond = defaultGelbooruRate
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Quota.ShortWindowSeconds <= 0 {
		c.Quota.ShortWindowSeconds = defaultShortWindowSeconds
	}
	if c.Workflow.FlushEveryNItems <= 0 {
		c.Workflow.FlushEveryNItems = defaultFlushEveryNItems
	}
	if c.Workflow.InvalidStrikeLimit <= 0 {
		c.Workflow.InvalidStrikeLimit = defaultInvalidStrikeLimit
	}
	if c.Workflow.WatchSettleSeconds < 0 {
		c.Workflow.WatchSettleSeconds = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
