package rolesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/setup/config"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned when a pass is triggered before Start.
	ErrNotStarted = errors.New("scheduler not started")
	// ErrPassInProgress is returned when a pass is triggered while another is running.
	ErrPassInProgress = errors.New("sync pass already in progress")
	// ErrPassPanicked indicates the pass orchestration panicked.
	ErrPassPanicked = errors.New("sync pass panicked")
)

// Options configures the scheduler timing and fan-out.
type Options struct {
	Interval         time.Duration
	InitialDelay     time.Duration
	RetryDelay       time.Duration
	GuildConcurrency int
	HistoryRetention time.Duration
}

// OptionsFromConfig converts the sync configuration into scheduler options.
func OptionsFromConfig(cfg *config.Sync) Options {
	return Options{
		Interval:         cfg.Interval(),
		InitialDelay:     time.Duration(cfg.InitialDelay) * time.Second,
		RetryDelay:       time.Duration(cfg.RetryDelay) * time.Minute,
		GuildConcurrency: cfg.GuildConcurrency,
		HistoryRetention: time.Duration(cfg.HistoryRetentionDays) * 24 * time.Hour,
	}
}

// ProgressReporter receives pass progress for the worker heartbeat.
type ProgressReporter interface {
	UpdateStatus(task string, progress int)
	SetHealthy(healthy bool)
}

// StatusSink stores the scheduler status for other processes.
type StatusSink interface {
	Publish(ctx context.Context, status Status) error
}

// PassSummary aggregates the outcome of one pass.
type PassSummary struct {
	Guilds          int           `json:"guilds"`
	GuildsSucceeded int           `json:"guildsSucceeded"`
	GuildsFailed    int           `json:"guildsFailed"`
	UsersProcessed  int           `json:"usersProcessed"`
	RolesAdded      int           `json:"rolesAdded"`
	RolesRemoved    int           `json:"rolesRemoved"`
	Repositories    ResolverStats `json:"repositories"`
	HistoryPurged   int64         `json:"historyPurged"`
	Duration        time.Duration `json:"duration"`
}

// add folds a finished guild history into the summary.
func (s *PassSummary) add(history *types.SyncHistory) {
	if history.Success {
		s.GuildsSucceeded++
	} else {
		s.GuildsFailed++
	}

	s.UsersProcessed += history.UsersProcessed
	s.RolesAdded += history.RolesAdded
	s.RolesRemoved += history.RolesRemoved
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running         bool         `json:"running"`
	InProgress      bool         `json:"inProgress"`
	LastStartedAt   time.Time    `json:"lastStartedAt"`
	LastCompletedAt time.Time    `json:"lastCompletedAt"`
	NextRunAt       time.Time    `json:"nextRunAt"`
	LastError       string       `json:"lastError,omitempty"`
	LastSummary     *PassSummary `json:"lastSummary,omitempty"`
}

// Scheduler runs sync passes on a timer. The next pass is armed only after the
// current one returns, so passes never overlap.
type Scheduler struct {
	store      Store
	fetcher    Fetcher
	reconciler *Reconciler
	reporter   ProgressReporter
	sink       StatusSink
	opts       Options
	logger     *zap.Logger

	passMu sync.Mutex

	mu         sync.Mutex
	started    bool
	generation int
	ctx        context.Context
	timer      *time.Timer
	status     Status
}

// NewScheduler creates a Scheduler. Reporter and sink may be nil.
func NewScheduler(
	store Store, fetcher Fetcher, reconciler *Reconciler,
	reporter ProgressReporter, sink StatusSink, opts Options, logger *zap.Logger,
) *Scheduler {
	if opts.GuildConcurrency <= 0 {
		opts.GuildConcurrency = 1
	}

	return &Scheduler{
		store:      store,
		fetcher:    fetcher,
		reconciler: reconciler,
		reporter:   reporter,
		sink:       sink,
		opts:       opts,
		logger:     logger.Named("scheduler"),
	}
}

// Start arms the first pass after the initial delay. Calling it while running has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	s.started = true
	s.generation++
	s.ctx = ctx
	s.status.Running = true
	s.scheduleLocked(s.opts.InitialDelay)

	s.logger.Info("Scheduler started",
		zap.Duration("initialDelay", s.opts.InitialDelay),
		zap.Duration("interval", s.opts.Interval))
}

// Stop cancels the pending pass. A pass already running finishes but is not rescheduled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	s.started = false
	s.status.Running = false
	s.status.NextRunAt = time.Time{}

	s.logger.Info("Scheduler stopped")
}

// Wait blocks until any running pass has returned.
func (s *Scheduler) Wait() {
	s.passMu.Lock()
	defer s.passMu.Unlock()
}

// TriggerSync runs a pass immediately and waits for it.
// accepted is false when the scheduler was never started or a pass is already running;
// err reports a failure of the pass orchestration.
func (s *Scheduler) TriggerSync(ctx context.Context) (accepted bool, err error) {
	if !s.isStarted() {
		return false, nil
	}

	if !s.passMu.TryLock() {
		return false, nil
	}
	defer s.passMu.Unlock()

	_, err = s.runPass(ctx)

	return true, err
}

// TriggerAsync starts a pass in the background on the scheduler context.
func (s *Scheduler) TriggerAsync() error {
	s.mu.Lock()
	started, ctx := s.started, s.ctx
	s.mu.Unlock()

	if !started {
		return ErrNotStarted
	}

	if !s.passMu.TryLock() {
		return ErrPassInProgress
	}

	go func() {
		defer s.passMu.Unlock()

		if _, err := s.runPass(ctx); err != nil {
			s.logger.Error("Triggered sync pass failed", zap.Error(err))
		}
	}()

	return nil
}

// Status returns the current scheduler status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

func (s *Scheduler) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.started
}

func (s *Scheduler) scheduleLocked(delay time.Duration) {
	generation := s.generation
	s.timer = time.AfterFunc(delay, func() {
		s.runScheduled(generation)
	})
	s.status.NextRunAt = time.Now().Add(delay)
}

// runScheduled is the timer callback. It rearms the timer once the pass returns.
// Timers armed before a Stop and restart belong to an old generation and do nothing.
func (s *Scheduler) runScheduled(generation int) {
	s.mu.Lock()
	if !s.started || s.generation != generation {
		s.mu.Unlock()
		return
	}

	ctx := s.ctx
	s.status.NextRunAt = time.Time{}
	s.mu.Unlock()

	var err error
	if s.passMu.TryLock() {
		_, err = s.runPass(ctx)
		s.passMu.Unlock()
	} else {
		s.logger.Info("Skipping scheduled pass, another pass is running")
	}

	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.generation != generation {
		return
	}

	delay := s.opts.Interval
	if err != nil {
		delay = s.opts.RetryDelay
	}

	s.scheduleLocked(delay)

	s.logger.Debug("Next pass scheduled", zap.Duration("delay", delay))
}

// runPass reconciles every eligible guild. The caller must hold passMu.
func (s *Scheduler) runPass(ctx context.Context) (summary *PassSummary, err error) {
	startedAt := time.Now()
	s.beginPass(ctx, startedAt)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPassPanicked, r)
			s.logger.Error("Sync pass panicked", zap.Any("panic", r), zap.Stack("stack"))
		}

		if summary != nil {
			summary.Duration = time.Since(startedAt)
		}

		s.endPass(ctx, summary, err)
	}()

	guilds, err := s.store.GetEligibleGuildConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible guilds: %w", err)
	}

	summary = &PassSummary{Guilds: len(guilds)}
	resolver := NewResolver(s.store, s.fetcher, s.logger)

	var (
		mu   sync.Mutex
		done int
	)

	p := pool.New().WithMaxGoroutines(s.opts.GuildConcurrency)

	for _, guild := range guilds {
		p.Go(func() {
			history, _ := s.reconciler.Reconcile(ctx, guild, resolver)

			mu.Lock()
			defer mu.Unlock()

			summary.add(history)
			done++
			s.reportProgress("Syncing guilds", done*100/len(guilds))
		})
	}

	p.Wait()

	summary.Repositories = resolver.Stats()

	purged, purgeErr := s.store.PurgeExpiredHistory(ctx, s.opts.HistoryRetention)
	if purgeErr != nil {
		s.logger.Error("Failed to purge sync history", zap.Error(purgeErr))
	}

	summary.HistoryPurged = purged

	return summary, nil
}

func (s *Scheduler) beginPass(ctx context.Context, startedAt time.Time) {
	s.mu.Lock()
	s.status.InProgress = true
	s.status.LastStartedAt = startedAt
	status := s.status
	s.mu.Unlock()

	s.reportProgress("Syncing guilds", 0)
	s.publish(ctx, status)

	s.logger.Info("Sync pass started")
}

func (s *Scheduler) endPass(ctx context.Context, summary *PassSummary, err error) {
	s.mu.Lock()
	s.status.InProgress = false
	s.status.LastCompletedAt = time.Now()
	s.status.LastSummary = summary

	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
	}

	status := s.status
	s.mu.Unlock()

	if s.reporter != nil {
		s.reporter.SetHealthy(err == nil)
		s.reporter.UpdateStatus("Idle", 0)
	}

	s.publish(context.WithoutCancel(ctx), status)

	if err != nil {
		s.logger.Error("Sync pass failed", zap.Error(err))
		return
	}

	s.logger.Info("Sync pass completed",
		zap.Int("guilds", summary.Guilds),
		zap.Int("guildsSucceeded", summary.GuildsSucceeded),
		zap.Int("guildsFailed", summary.GuildsFailed),
		zap.Int("usersProcessed", summary.UsersProcessed),
		zap.Int("rolesAdded", summary.RolesAdded),
		zap.Int("rolesRemoved", summary.RolesRemoved),
		zap.Int("repositoriesFetched", summary.Repositories.Fetched),
		zap.Int("repositoriesNotModified", summary.Repositories.NotModified),
		zap.Int("repositoriesFailed", summary.Repositories.Failed),
		zap.Int64("historyPurged", summary.HistoryPurged),
		zap.Duration("duration", summary.Duration))
}

func (s *Scheduler) reportProgress(task string, progress int) {
	if s.reporter != nil {
		s.reporter.UpdateStatus(task, progress)
	}
}

func (s *Scheduler) publish(ctx context.Context, status Status) {
	if s.sink == nil {
		return
	}

	if err := s.sink.Publish(ctx, status); err != nil {
		s.logger.Warn("Failed to publish scheduler status", zap.Error(err))
	}
}
