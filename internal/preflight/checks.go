package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"saucetag/internal/config"
	"saucetag/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckExiftool verifies the metadata writer is installed.
func CheckExiftool(ctx context.Context, binary string) Result {
	const name = "exiftool"
	status := deps.CheckBinaries(ctx, []deps.Requirement{exiftoolRequirement(binary)})[0]
	if !status.Available {
		return Result{Name: name, Detail: status.Detail}
	}
	if status.Version == "" {
		return Result{Name: name, Passed: true, Detail: status.Path}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (version %s)", status.Path, status.Version)}
}

// CheckSauceNAOKey verifies an API key is configured. The key itself is not
// probed because every search call spends quota.
func CheckSauceNAOKey(apiKey string) Result {
	const name = "SauceNAO"
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "missing api key (saucenao.api_key)"}
	}
	return Result{Name: name, Passed: true, Detail: "api key configured"}
}

// CheckGelbooru verifies the tag source answers post queries.
func CheckGelbooru(ctx context.Context, baseURL, apiKey, userID string) Result {
	const name = "Gelbooru"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := url.Values{}
	query.Set("page", "dapi")
	query.Set("s", "post")
	query.Set("q", "index")
	query.Set("json", "1")
	query.Set("limit", "1")
	if strings.TrimSpace(apiKey) != "" {
		query.Set("api_key", strings.TrimSpace(apiKey))
		query.Set("user_id", strings.TrimSpace(userID))
	}

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/index.php?"+query.Encode(), nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("probe failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (check gelbooru.api_key and user_id)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("probe failed (%d)", resp.StatusCode)}
	}
}

// CheckSystemDeps reports every external executable with its version.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(ctx, []deps.Requirement{exiftoolRequirement(cfg.ExiftoolBinary())})
}

func exiftoolRequirement(binary string) deps.Requirement {
	return deps.Requirement{
		Name:        "exiftool",
		Command:     binary,
		Description: "Required for reading and writing keywords",
		VersionArgs: []string{"-ver"},
	}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "probe timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "probe timed out (host unreachable)"
	}
	return err.Error()
}
