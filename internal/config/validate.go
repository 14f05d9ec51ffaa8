package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSauceNAO(); err != nil {
		return err
	}
	if err := c.validateQuota(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.AlbumPath) == "" {
		return errors.New("paths.album_path must be set")
	}
	if strings.TrimSpace(c.Paths.TablePath) == "" {
		return errors.New("paths.table_path must be set")
	}
	rel, err := filepath.Rel(c.Paths.AlbumPath, c.Paths.TablePath)
	if err == nil && rel == "." {
		return errors.New("paths.table_path must be a file, not the album directory")
	}
	return nil
}

func (c *Config) validateSauceNAO() error {
	if c.SauceNAO.SimilarityThreshold < 0 || c.SauceNAO.SimilarityThreshold > 100 {
		return fmt.Errorf("saucenao.similarity_threshold must be within [0, 100], got %v", c.SauceNAO.SimilarityThreshold)
	}
	return nil
}

func (c *Config) validateQuota() error {
	if c.Quota.PreserveQuotaPercent < 0 || c.Quota.PreserveQuotaPercent >= 100 {
		return fmt.Errorf("quota.preserve_quota_percent must be within [0, 100), got %v", c.Quota.PreserveQuotaPercent)
	}
	if c.Quota.StateTTLMinutes < 1 {
		return fmt.Errorf("quota.state_ttl_minutes must be at least 1, got %d", c.Quota.StateTTLMinutes)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.RescanIntervalMinutes < 1 {
		return fmt.Errorf("workflow.rescan_interval_minutes must be at least 1, got %d", c.Workflow.RescanIntervalMinutes)
	}
	return nil
}
