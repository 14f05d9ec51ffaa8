package preflight

import (
	"context"
	"path/filepath"

	"saucetag/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for cfg. Remote probes are only run
// when probe is set, since they count against nothing but still need network.
func RunAll(ctx context.Context, cfg *config.Config, probe bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Album directory", cfg.Paths.AlbumPath),
		CheckDirectoryAccess("Table directory", filepath.Dir(cfg.Paths.TablePath)),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckExiftool(ctx, cfg.ExiftoolBinary()),
		CheckSauceNAOKey(cfg.SauceNAO.APIKey),
	}
	if probe {
		results = append(results, CheckGelbooru(ctx, cfg.Gelbooru.BaseURL, cfg.Gelbooru.APIKey, cfg.Gelbooru.UserID))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
