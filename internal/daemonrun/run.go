// Package daemonrun hosts the foreground process behind "saucetag run".
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"saucetag/internal/config"
	"saucetag/internal/daemon"
	"saucetag/internal/logging"
	"saucetag/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Build overrides collaborators; zero value builds the real clients.
	Build BuildOptions
}

// Run starts the saucetag daemon and blocks until a signal arrives or the
// scheduler fails.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	sessionID := uuid.NewString()
	logPath := filepath.Join(cfg.Paths.StateDir, fmt.Sprintf("saucetag-%s.log", runID))

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	console, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout"},
		Development: opts.Development,
		SessionID:   sessionID,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	// The per-run file is always JSON so it can be filtered by item_key or epoch.
	runLog, err := logging.New(logging.Options{
		Level:       level,
		Format:      "json",
		OutputPaths: []string{logPath},
		Development: opts.Development,
		SessionID:   sessionID,
	})
	if err != nil {
		return fmt.Errorf("init run log: %w", err)
	}
	logger := logging.TeeLogger(console, runLog.Handler())

	if err := ensureCurrentLogPointer(cfg.Paths.StateDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update saucetag.log link: %v\n", err)
	}
	logging.PruneRunLogs(logger, cfg.Paths.StateDir, cfg.Logging.RetentionDays, logPath)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	if err := checkReady(signalCtx, logger, cfg, opts.Build); err != nil {
		return err
	}

	rt, err := Build(cfg, logger, opts.Build)
	if err != nil {
		logger.Error("assemble runtime", logging.Error(err))
		return err
	}
	defer rt.Close()
	pruneJournal(signalCtx, logger, rt, cfg.Logging.RetentionDays)

	deps := daemon.Deps{
		Scheduler:   rt.Scheduler,
		Table:       rt.Table,
		Tracker:     rt.Tracker,
		JournalPath: rt.Journal.Path(),
		Logger:      logger,
		Prepare:     rt.Prepare,
	}
	if rt.Watcher != nil {
		deps.Watcher = rt.Watcher
	}
	d, err := daemon.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	select {
	case <-signalCtx.Done():
		logger.Info("saucetag daemon shutting down",
			logging.String(logging.FieldEventType, "daemon_shutdown"),
		)
	case <-d.Done():
	}
	d.Stop()
	return d.Err()
}

// checkReady runs preflight. Checks for collaborators replaced through
// BuildOptions are skipped.
func checkReady(ctx context.Context, logger *slog.Logger, cfg *config.Config, build BuildOptions) error {
	var failed []preflight.Result
	for _, r := range preflight.Failed(preflight.RunAll(ctx, cfg, false)) {
		if r.Name == "exiftool" && build.Tags != nil {
			continue
		}
		if r.Name == "SauceNAO" && build.Annotator != nil {
			continue
		}
		failed = append(failed, r)
	}
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run saucetag doctor for details"),
		)
		names = append(names, r.Name)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
}

func pruneJournal(ctx context.Context, logger *slog.Logger, rt *Runtime, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed, err := rt.Journal.Prune(ctx, cutoff)
	if err != nil {
		logger.Warn("journal prune failed", logging.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("pruned journal attempts",
			logging.Int64("removed", removed),
			logging.Int("retention_days", retentionDays),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "saucetag.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
