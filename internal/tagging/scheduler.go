package tagging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"saucetag/internal/annotate"
	"saucetag/internal/journal"
	"saucetag/internal/logging"
	"saucetag/internal/metadata"
	"saucetag/internal/persist"
	"saucetag/internal/quota"
	"saucetag/internal/scanner"
	"saucetag/internal/worktable"
)

// Journal records attempts and invalid-response strikes.
type Journal interface {
	RecordAttempt(ctx context.Context, a journal.Attempt) error
	AddStrike(ctx context.Context, key, lastErr string) (int, error)
	ClearStrike(ctx context.Context, key string) error
}

// Rescanner re-walks the library between epochs.
type Rescanner interface {
	Scan(ctx context.Context, tbl scanner.Inserter) (scanner.Stats, error)
}

// Options tunes the loop.
type Options struct {
	// Root is the library root that table keys are relative to.
	Root string
	// FlushEvery is the number of processed items between checkpoints.
	FlushEvery int
	// StrikeLimit is how many consecutive invalid responses defer an item
	// before the next one counts as an attempt.
	StrikeLimit int
	// RescanInterval is the pause between epochs in Run.
	RescanInterval time.Duration
}

// Deps are the scheduler's collaborators.
type Deps struct {
	Table     *worktable.Table
	Tracker   *quota.Tracker
	Annotator annotate.Annotator
	Tags      metadata.Store
	Journal   Journal
	Persist   *persist.Manager
	Scanner   Rescanner
	Logger    *slog.Logger
}

// Scheduler drives annotation epochs over the shared table.
type Scheduler struct {
	table     *worktable.Table
	tracker   *quota.Tracker
	annotator annotate.Annotator
	tags      metadata.Store
	journal   Journal
	persist   *persist.Manager
	scanner   Rescanner
	opts      Options
	logger    *slog.Logger

	sleep func(context.Context, time.Duration) error

	// deferred holds entries popped this epoch and held out of the table
	// until drain. Only the epoch loop touches it.
	deferred []worktable.Item

	mu        sync.Mutex
	state     State
	epoch     int64
	lastEpoch EpochStats
}

// New validates deps and returns a Scheduler.
func New(deps Deps, opts Options) (*Scheduler, error) {
	switch {
	case deps.Table == nil:
		return nil, errors.New("tagging: table is required")
	case deps.Tracker == nil:
		return nil, errors.New("tagging: quota tracker is required")
	case deps.Annotator == nil:
		return nil, errors.New("tagging: annotator is required")
	case deps.Tags == nil:
		return nil, errors.New("tagging: metadata store is required")
	case deps.Journal == nil:
		return nil, errors.New("tagging: journal is required")
	case deps.Persist == nil:
		return nil, errors.New("tagging: persistence manager is required")
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 1
	}
	if opts.StrikeLimit < 0 {
		opts.StrikeLimit = 0
	}
	return &Scheduler{
		table:     deps.Table,
		tracker:   deps.Tracker,
		annotator: deps.Annotator,
		tags:      deps.Tags,
		journal:   deps.Journal,
		persist:   deps.Persist,
		scanner:   deps.Scanner,
		opts:      opts,
		logger:    logging.NewComponentLogger(deps.Logger, "scheduler"),
		sleep:     quota.SleepWithContext,
		state:     StateIdle,
	}, nil
}

// State returns the current loop position.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastEpoch returns the stats of the most recently finished epoch.
func (s *Scheduler) LastEpoch() EpochStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEpoch
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run alternates epochs with rescans until ctx is cancelled. The table is
// flushed at the end of every epoch, including the one interrupted by
// cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.setState(StateIdle)
	for {
		if _, err := s.RunEpoch(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		s.setState(StateSleeping)
		s.logger.Debug("sleeping until next epoch",
			logging.Duration("interval", s.opts.RescanInterval),
		)
		if err := s.sleep(ctx, s.opts.RescanInterval); err != nil {
			return nil
		}
		if err := s.rescan(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.WarnWithContext(s.logger, "rescan failed; continuing with current table", "rescan_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check album_path is mounted and readable"),
				logging.String(logging.FieldImpact, "new images are picked up on a later rescan"),
			)
		}
	}
}

func (s *Scheduler) rescan(ctx context.Context) error {
	if s.scanner == nil {
		return nil
	}
	stats, err := s.scanner.Scan(ctx, s.table)
	if err != nil {
		return err
	}
	if stats.Inserted > 0 {
		if err := s.persist.Flush(s.table.Snapshot()); err != nil {
			return fmt.Errorf("flush after rescan: %w", err)
		}
	}
	return nil
}

// RunEpoch processes entries until the quota, the remote, or the epoch
// budget stops it, then drains: deferred entries are restored and the table
// is flushed. Only a failed final flush is returned as an error.
func (s *Scheduler) RunEpoch(ctx context.Context) (EpochStats, error) {
	s.mu.Lock()
	s.epoch++
	stats := EpochStats{Epoch: s.epoch}
	s.mu.Unlock()

	ctx = logging.WithEpoch(ctx, stats.Epoch)
	logger := logging.WithContext(ctx, s.logger)

	s.tracker.BeginEpoch()
	budget := s.table.Len()
	s.deferred = s.deferred[:0]
	sinceCheckpoint := 0

	for {
		if stop, ok := s.shouldStop(ctx, stats.Calls, budget); ok {
			stats.Stop = stop
			break
		}

		s.setState(StatePopping)
		item, ok := s.table.PopMin()
		if !ok {
			stats.Stop = StopEmpty
			break
		}

		s.setState(StateCalling)
		path := scanner.Path(s.opts.Root, item.Key)
		res, err := s.annotator.Annotate(ctx, path)
		stats.Calls++
		remote := !res.Cached && annotate.KindOf(err) != annotate.KindNotFound
		if remote {
			s.tracker.Record(res.Quota)
		}

		stop := s.handle(ctx, item, path, res, err, &stats)
		sinceCheckpoint++
		if sinceCheckpoint >= s.opts.FlushEvery {
			sinceCheckpoint = 0
			s.checkpoint(ctx)
		}
		if stop != "" {
			stats.Stop = stop
			break
		}

		if remote && s.tracker.ShouldContinue(s.table.Len()) && stats.Calls < budget {
			if err := s.sleep(ctx, s.tracker.PacingDelay()); err != nil {
				stats.Stop = StopCancelled
				break
			}
		}
	}

	err := s.drain(logger, &stats)
	s.mu.Lock()
	s.lastEpoch = stats
	s.mu.Unlock()
	s.setState(StateIdle)
	return stats, err
}

func (s *Scheduler) shouldStop(ctx context.Context, calls, budget int) (StopReason, bool) {
	switch {
	case ctx.Err() != nil:
		return StopCancelled, true
	case s.table.IsEmpty():
		return StopEmpty, true
	case calls >= budget:
		return StopBudget, true
	case s.tracker.Available() <= 0:
		return StopQuota, true
	}
	return "", false
}

// handle applies one annotation outcome to the table and journal. A non-empty
// return ends the epoch.
func (s *Scheduler) handle(ctx context.Context, item worktable.Item, path string, res annotate.Result, err error, stats *EpochStats) StopReason {
	ctx = logging.WithItemKey(ctx, item.Key)
	logger := logging.WithContext(ctx, s.logger)

	switch annotate.KindOf(err) {
	case annotate.KindNone:
		if res.Cached {
			stats.Cached++
		}
		if s.complete(ctx, logger, item, path, res) {
			stats.Tagged++
		}
		s.clearStrike(ctx, logger, item.Key)
		return ""

	case annotate.KindNotFound:
		s.persist.Forget(item.Key)
		stats.Dropped++
		logger.Info("image gone; dropped from table",
			logging.String(logging.FieldEventType, "item_dropped"),
		)
		s.record(ctx, logger, item.Key, journal.OutcomeNotFound, nil, err.Error())
		s.clearStrike(ctx, logger, item.Key)
		return ""

	case annotate.KindRateLimited:
		s.table.Restore(item)
		s.tracker.Exhaust()
		logging.WarnWithContext(logger, "remote refused request; ending epoch", "rate_limited",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "quota resets on the remote's schedule; check api_key if this repeats"),
			logging.String(logging.FieldImpact, "tagging resumes after the rescan interval"),
		)
		s.record(ctx, logger, item.Key, journal.OutcomeRateLimited, nil, err.Error())
		return StopRateLimited

	case annotate.KindInvalidResponse:
		strikes, serr := s.journal.AddStrike(context.WithoutCancel(ctx), item.Key, err.Error())
		if serr != nil {
			logging.WarnWithContext(logger, "strike not recorded", "journal_write_failed",
				logging.Error(serr),
				logging.String(logging.FieldImpact, "item is deferred without counting toward its strike limit"),
			)
		}
		s.record(ctx, logger, item.Key, journal.OutcomeInvalidResponse, nil, err.Error())
		if strikes > s.opts.StrikeLimit {
			logging.WarnWithContext(logger, "repeated invalid responses; advancing priority", "invalid_strike_limit",
				logging.Int("strikes", strikes),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the file may be unsupported or too large for the remote"),
				logging.String(logging.FieldImpact, "image is retried less often"),
			)
			s.requeue(item)
			s.clearStrike(ctx, logger, item.Key)
			return ""
		}
		logger.Info("invalid response; deferring to epoch end",
			logging.Int("strikes", strikes),
			logging.Error(err),
			logging.String(logging.FieldEventType, "item_deferred"),
		)
		s.deferred = append(s.deferred, item)
		stats.Deferred++
		return ""

	default:
		s.table.Restore(item)
		if ctx.Err() != nil {
			return StopCancelled
		}
		logging.WarnWithContext(logger, "remote unreachable; ending epoch", "network_failure",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check network connectivity and the service status"),
			logging.String(logging.FieldImpact, "tagging resumes after the rescan interval"),
		)
		s.record(ctx, logger, item.Key, journal.OutcomeNetwork, nil, err.Error())
		return StopNetwork
	}
}

// complete merges tags, requeues the item, and journals the attempt. It
// reports whether tags were written.
func (s *Scheduler) complete(ctx context.Context, logger *slog.Logger, item worktable.Item, path string, res annotate.Result) bool {
	outcome := journal.OutcomeUnchanged
	detail := res.Source
	var added []string

	switch {
	case res.LowConfidence:
		outcome = journal.OutcomeLowConfidence
		detail = "similarity " + strconv.FormatFloat(res.Similarity, 'f', 2, 64)
	case len(res.Tags) > 0:
		s.setState(StateMerging)
		var err error
		added, err = metadata.MergeTags(s.tags, path, res.Tags)
		if err != nil {
			outcome = journal.OutcomeWriteFailed
			detail = err.Error()
			logging.WarnWithContext(logger, "tag write failed; counted as attempted", "tag_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check file permissions and that exiftool supports this format"),
				logging.String(logging.FieldImpact, "tags for this image are retried on its next turn"),
			)
		} else if len(added) > 0 {
			outcome = journal.OutcomeTagged
		}
	}
	if res.Cached && outcome == journal.OutcomeUnchanged {
		outcome = journal.OutcomeCached
	}

	priority := s.requeue(item)
	logger.Info("annotation complete",
		logging.String("outcome", string(outcome)),
		logging.Int("tags_added", len(added)),
		logging.Int("priority", priority),
		logging.Bool("cached", res.Cached),
		logging.String(logging.FieldEventType, "item_processed"),
	)
	s.record(ctx, logger, item.Key, outcome, added, detail)
	return outcome == journal.OutcomeTagged
}

func (s *Scheduler) requeue(item worktable.Item) int {
	s.setState(StateRequeuing)
	priority, rotated := s.table.Requeue(item)
	s.persist.Track(item.Key, priority)
	if rotated {
		// Deferred entries take part in the rotation as if still queued.
		for i := range s.deferred {
			if s.deferred[i].Priority > 0 {
				s.deferred[i].Priority--
			}
		}
		s.persist.MarkRotated()
	}
	return priority
}

// durableSnapshot is the table as it should survive a crash: the live
// entries plus those deferred to the end of the epoch.
func (s *Scheduler) durableSnapshot() map[string]int {
	snap := s.table.Snapshot()
	for _, item := range s.deferred {
		snap[item.Key] = item.Priority
	}
	return snap
}

func (s *Scheduler) checkpoint(ctx context.Context) {
	s.setState(StateFlushing)
	full, err := s.persist.Checkpoint(s.durableSnapshot)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "checkpoint failed", "checkpoint_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions for table_path"),
			logging.String(logging.FieldImpact, "a crash now would repeat recent attempts"),
		)
		return
	}
	s.logger.Debug("checkpoint written",
		logging.Bool("full", full),
		logging.Int("shadow_entries", s.persist.Pending()),
		logging.Int("deferred", len(s.deferred)),
	)
}

func (s *Scheduler) drain(logger *slog.Logger, stats *EpochStats) error {
	s.setState(StateDraining)
	for _, item := range s.deferred {
		s.table.Restore(item)
	}
	s.deferred = s.deferred[:0]
	if err := s.persist.Flush(s.table.Snapshot()); err != nil {
		logging.ErrorWithContext(logger, "table flush failed", "table_flush_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions for table_path"),
		)
		return fmt.Errorf("flush table: %w", err)
	}
	stats.Covered, stats.Total = s.table.Coverage()

	attrs := []logging.Attr{
		logging.String("stop", string(stats.Stop)),
		logging.Int("calls", stats.Calls),
		logging.Int("cached", stats.Cached),
		logging.Int("tagged", stats.Tagged),
		logging.Int("dropped", stats.Dropped),
		logging.Int("deferred", stats.Deferred),
		logging.String("covered", fmt.Sprintf("%d/%d", stats.Covered, stats.Total)),
		logging.String(logging.FieldEventType, "epoch_complete"),
	}
	if q, _, ok := s.tracker.Last(); ok {
		attrs = append(attrs, logging.Int("long_remaining", q.LongRemaining))
	}
	logger.Info("epoch complete", logging.Args(attrs...)...)
	return nil
}

func (s *Scheduler) record(ctx context.Context, logger *slog.Logger, key string, outcome journal.Outcome, added []string, detail string) {
	// Journal writes must survive cancellation of the run context.
	if err := s.journal.RecordAttempt(context.WithoutCancel(ctx), journal.Attempt{
		Key:       key,
		Outcome:   outcome,
		TagsAdded: added,
		Detail:    detail,
	}); err != nil {
		logging.WarnWithContext(logger, "journal write failed", "journal_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "attempt missing from history"),
		)
	}
}

func (s *Scheduler) clearStrike(ctx context.Context, logger *slog.Logger, key string) {
	if err := s.journal.ClearStrike(context.WithoutCancel(ctx), key); err != nil {
		logger.Debug("strike reset failed", logging.Error(err))
	}
}
