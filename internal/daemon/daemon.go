package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"saucetag/internal/config"
	"saucetag/internal/logging"
	"saucetag/internal/quota"
	"saucetag/internal/tagging"
	"saucetag/internal/worktable"
)

// Scheduler is the loop the daemon drives.
type Scheduler interface {
	Run(ctx context.Context) error
	State() tagging.State
	LastEpoch() tagging.EpochStats
}

// Watcher reacts to new files between rescans.
type Watcher interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
}

// Deps are the collaborators assembled by the caller.
type Deps struct {
	Scheduler   Scheduler
	Watcher     Watcher
	Table       *worktable.Table
	Tracker     *quota.Tracker
	JournalPath string
	Logger      *slog.Logger
	// Prepare runs after the lock is held and before the scheduler starts.
	// Table loading and the initial scan belong here so they never race a
	// second instance.
	Prepare func(ctx context.Context) error
}

// Daemon runs the scheduler and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	scheduler Scheduler
	watcher   Watcher
	table     *worktable.Table
	tracker   *quota.Tracker
	journal   string
	prepare   func(ctx context.Context) error

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Watching     bool
	State        tagging.State
	LastEpoch    tagging.EpochStats
	Quota        quota.State
	QuotaSeen    time.Time
	QuotaKnown   bool
	Covered      int
	Total        int
	JournalPath  string
	LockFilePath string
}

// New constructs a daemon. The watcher is optional.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.Scheduler == nil || deps.Table == nil || deps.Tracker == nil {
		return nil, errors.New("daemon requires config, scheduler, table, and quota tracker")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(deps.Logger, "daemon"),
		scheduler: deps.Scheduler,
		watcher:   deps.Watcher,
		table:     deps.Table,
		tracker:   deps.Tracker,
		journal:   deps.JournalPath,
		prepare:   deps.Prepare,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the lock and launches the scheduler loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another saucetag instance is already running")
	}

	if d.prepare != nil {
		if err := d.prepare(ctx); err != nil {
			_ = d.lock.Unlock()
			return fmt.Errorf("prepare: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	if d.watcher != nil {
		if err := d.watcher.Start(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "library watcher unavailable", "watcher_start_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check inotify limits or disable workflow.watch"),
				logging.String(logging.FieldImpact, "new images wait for the next rescan"),
			)
		}
	}

	done := make(chan struct{})
	d.mu.Lock()
	d.cancel = cancel
	d.done = done
	d.runErr = nil
	d.mu.Unlock()

	go func() {
		defer close(done)
		err := d.scheduler.Run(runCtx)
		if err != nil {
			logging.ErrorWithContext(d.logger, "scheduler stopped", "scheduler_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that table_path is writable"),
				logging.String(logging.FieldImpact, "tagging halted until restart"),
			)
		}
		d.mu.Lock()
		d.runErr = err
		d.mu.Unlock()
	}()

	d.running.Store(true)
	d.logger.Info("saucetag daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Done is closed when the scheduler loop returns. It is nil before Start.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Err returns the error the scheduler loop ended with, if any.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Stop cancels the loop, waits for the final flush, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if done != nil {
		<-done
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("saucetag daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
}

// Close stops the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	covered, total := d.table.Coverage()
	q, seen, known := d.tracker.Last()
	status := Status{
		Running:      d.running.Load(),
		State:        d.scheduler.State(),
		LastEpoch:    d.scheduler.LastEpoch(),
		Quota:        q,
		QuotaSeen:    seen,
		QuotaKnown:   known,
		Covered:      covered,
		Total:        total,
		JournalPath:  d.journal,
		LockFilePath: d.lockPath,
	}
	if d.watcher != nil {
		status.Watching = d.watcher.Running()
	}
	return status
}
