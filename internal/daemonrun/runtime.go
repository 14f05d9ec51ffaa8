package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"saucetag/internal/annotate"
	"saucetag/internal/annotate/dedup"
	"saucetag/internal/annotate/gelbooru"
	"saucetag/internal/annotate/saucenao"
	"saucetag/internal/config"
	"saucetag/internal/journal"
	"saucetag/internal/logging"
	"saucetag/internal/metadata"
	"saucetag/internal/persist"
	"saucetag/internal/quota"
	"saucetag/internal/scanner"
	"saucetag/internal/tagging"
	"saucetag/internal/watcher"
	"saucetag/internal/worktable"
)

// Runtime is the assembled set of collaborators for one daemon process.
type Runtime struct {
	Config    *config.Config
	Table     *worktable.Table
	Tracker   *quota.Tracker
	Journal   *journal.Store
	Persist   *persist.Manager
	Scanner   *scanner.Scanner
	Scheduler *tagging.Scheduler
	Watcher   *watcher.Watcher

	logger  *slog.Logger
	closers []func() error
}

// BuildOptions replaces individual collaborators, mainly for tests.
type BuildOptions struct {
	Annotator annotate.Annotator
	Tags      metadata.Store
}

// Build wires the scheduler and its collaborators from cfg. Nothing on disk
// besides the journal is touched until Prepare runs.
func Build(cfg *config.Config, logger *slog.Logger, opts BuildOptions) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	rt := &Runtime{
		Config:  cfg,
		Table:   worktable.New(),
		Tracker: quota.NewTracker(cfg.Quota.PreserveQuotaPercent, cfg.ShortWindow(), cfg.QuotaStateTTL()),
		Persist: persist.New(cfg.Paths.TablePath, cfg.ShadowPath(), logger),
		Scanner: scanner.New(cfg.Paths.AlbumPath, metadata.QuickReader{}, logger),
		logger:  logging.NewComponentLogger(logger, "runtime"),
	}

	store, err := journal.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	rt.Journal = store
	rt.closers = append(rt.closers, store.Close)

	tags := opts.Tags
	if tags == nil {
		exif, err := metadata.NewExiftoolStore(cfg.ExiftoolBinary())
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("start exiftool: %w", err)
		}
		rt.closers = append(rt.closers, exif.Close)
		tags = exif
	}

	ann := opts.Annotator
	if ann == nil {
		ann, err = buildAnnotator(cfg, store, logger)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
	}

	sched, err := tagging.New(tagging.Deps{
		Table:     rt.Table,
		Tracker:   rt.Tracker,
		Annotator: ann,
		Tags:      tags,
		Journal:   store,
		Persist:   rt.Persist,
		Scanner:   rt.Scanner,
		Logger:    logger,
	}, tagging.Options{
		Root:           cfg.Paths.AlbumPath,
		FlushEvery:     cfg.Workflow.FlushEveryNItems,
		StrikeLimit:    cfg.Workflow.InvalidStrikeLimit,
		RescanInterval: cfg.RescanInterval(),
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	rt.Scheduler = sched

	if cfg.Workflow.Watch {
		rt.Watcher = watcher.New(rt.Scanner, rt.Table, cfg.WatchSettle(), logger)
	}
	return rt, nil
}

func buildAnnotator(cfg *config.Config, store *journal.Store, logger *slog.Logger) (annotate.Annotator, error) {
	tags, err := gelbooru.New(gelbooru.Config{
		BaseURL:           cfg.Gelbooru.BaseURL,
		APIKey:            cfg.Gelbooru.APIKey,
		UserID:            cfg.Gelbooru.UserID,
		RequestsPerSecond: cfg.Gelbooru.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("create gelbooru client: %w", err)
	}
	search, err := saucenao.New(saucenao.Config{
		APIKey:              cfg.SauceNAO.APIKey,
		BaseURL:             cfg.SauceNAO.BaseURL,
		DBIndex:             cfg.SauceNAO.DBIndex,
		SimilarityThreshold: cfg.SauceNAO.SimilarityThreshold,
		Timeout:             cfg.SauceNAOTimeout(),
		Tags:                tags,
	})
	if err != nil {
		return nil, fmt.Errorf("create saucenao client: %w", err)
	}
	if !cfg.Dedup.Enabled {
		return search, nil
	}
	return dedup.New(search, store, cfg.Dedup.MaxDistance, logger), nil
}

// Prepare loads the persisted table, runs the initial scan, and flushes the
// result. It must run while the instance lock is held.
func (rt *Runtime) Prepare(ctx context.Context) error {
	loaded, err := rt.Persist.Load()
	if err != nil {
		return fmt.Errorf("load table: %w", err)
	}
	rt.Table.Load(loaded.Entries)

	stats, err := rt.Scanner.Scan(ctx, rt.Table)
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}
	if err := rt.Persist.Flush(rt.Table.Snapshot()); err != nil {
		return fmt.Errorf("flush table: %w", err)
	}

	covered, total := rt.Table.Coverage()
	rt.logger.Info("table ready",
		logging.Int("entries", total),
		logging.Int("covered", covered),
		logging.Int("recovered", loaded.Recovered),
		logging.Int("inserted", stats.Inserted),
		logging.String(logging.FieldEventType, "table_ready"),
	)
	return nil
}

// Close releases the journal and the exiftool process.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
