package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/journeyd/internal/guard"
	"github.com/fyrsmithlabs/journeyd/internal/journey"
	"github.com/fyrsmithlabs/journeyd/internal/stage"
)

const (
	// JobStability is the nightly stability-day counting job.
	JobStability = "stability"
	// JobReconciliation is the snapshot reconciliation sweep.
	JobReconciliation = "reconciliation"

	defaultInterval   = 24 * time.Hour
	defaultBatchSize  = 200
	defaultRunTimeout = 10 * time.Minute
)

// StabilityUpdater counts one stability day for a user. The stage engine
// implements it.
type StabilityUpdater interface {
	UpdateStability(ctx context.Context, userID string, days int) (*stage.StabilityResult, error)
}

// SnapshotSweeper reconciles cache snapshots. The consistency guard
// implements it.
type SnapshotSweeper interface {
	Sweep(ctx context.Context) (*guard.SweepResult, error)
}

// JobResult reports one batch job run.
type JobResult struct {
	Job    string `json:"job"`
	Window string `json:"window"`

	// Claimed is false when another invocation already ran this window;
	// the run did nothing.
	Claimed bool `json:"claimed"`

	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Scheduler drives the periodic batch jobs.
//
// All public methods are safe for concurrent use; the running state is
// guarded by a mutex so Start and Stop cannot race.
type Scheduler struct {
	store    journey.Store
	updater  StabilityUpdater
	sweeper  SnapshotSweeper
	logger   *zap.Logger
	now      func() time.Time
	interval time.Duration
	batch    int
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the time between job runs. Defaults to 24 hours.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize sets the user page size for the stability job.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithRunTimeout bounds a single scheduled run.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the scheduler's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a batch scheduler. It does not start
// automatically; call Start.
func NewScheduler(store journey.Store, updater StabilityUpdater, sweeper SnapshotSweeper, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if updater == nil {
		return nil, errors.New("stability updater is required")
	}
	if sweeper == nil {
		return nil, errors.New("snapshot sweeper is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		store:    store,
		updater:  updater,
		sweeper:  sweeper,
		logger:   logger,
		now:      time.Now,
		interval: defaultInterval,
		batch:    defaultBatchSize,
		timeout:  defaultRunTimeout,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins the background job loop. Calling Start on a running
// scheduler returns an error without starting a second goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler is already running")
	}

	s.stopCh = make(chan struct{})
	s.running = true

	s.logger.Info("batch scheduler started", zap.Duration("interval", s.interval))
	go s.run()
	return nil
}

// Stop signals the background loop to exit. Idempotent.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.logger.Info("stopping batch scheduler")
	s.running = false
	close(s.stopCh)
	return nil
}

func (s *Scheduler) run() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler goroutine panicked, recovering",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRunOnce()
		case <-s.stopCh:
			return
		}
	}
}

// safeRunOnce wraps a scheduled run with panic recovery so one bad run
// cannot kill the loop.
func (s *Scheduler) safeRunOnce() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled run panicked, continuing",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.RunStability(ctx); err != nil {
		s.logger.Error("stability job failed", zap.Error(err))
	}
	if _, err := s.RunReconciliation(ctx); err != nil {
		s.logger.Error("reconciliation job failed", zap.Error(err))
	}
}

// RunStability counts one stability day for every tracked user, at most
// once per calendar day across all invocations.
func (s *Scheduler) RunStability(ctx context.Context) (*JobResult, error) {
	window := journey.DayKey(s.now())
	result := &JobResult{Job: JobStability, Window: window}

	claimed, err := s.store.ClaimJobWindow(ctx, JobStability, window)
	if err != nil {
		return result, fmt.Errorf("claim stability window %s: %w", window, err)
	}
	if !claimed {
		s.logger.Info("stability window already processed", zap.String("window", window))
		return result, nil
	}
	result.Claimed = true

	offset := 0
	for {
		users, err := s.store.Users(ctx, offset, s.batch)
		if err != nil {
			return result, fmt.Errorf("list users at offset %d: %w", offset, err)
		}
		if len(users) == 0 {
			break
		}

		for _, userID := range users {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}

			st, err := s.updater.UpdateStability(ctx, userID, 1)
			switch {
			case errors.Is(err, journey.ErrStabilityAlreadyCounted):
				// Counted earlier today through another path.
				result.Skipped++
			case err != nil:
				result.Errors++
				s.logger.Error("stability update failed",
					zap.String("user_id", userID),
					zap.Error(err),
				)
			case !st.Counted:
				result.Skipped++
			default:
				result.Processed++
			}
		}
		offset += len(users)
	}

	s.logger.Info("stability job complete",
		zap.String("window", window),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors),
	)
	return result, nil
}

// RunReconciliation sweeps snapshots for drift, at most once per
// calendar day across all invocations.
func (s *Scheduler) RunReconciliation(ctx context.Context) (*JobResult, error) {
	window := journey.DayKey(s.now())
	result := &JobResult{Job: JobReconciliation, Window: window}

	claimed, err := s.store.ClaimJobWindow(ctx, JobReconciliation, window)
	if err != nil {
		return result, fmt.Errorf("claim reconciliation window %s: %w", window, err)
	}
	if !claimed {
		s.logger.Info("reconciliation window already processed", zap.String("window", window))
		return result, nil
	}
	result.Claimed = true

	sweep, err := s.sweeper.Sweep(ctx)
	if err != nil {
		return result, fmt.Errorf("reconciliation sweep: %w", err)
	}

	result.Processed = sweep.Repaired
	result.Skipped = sweep.Checked - sweep.Inconsistent
	result.Errors = sweep.Errors
	return result, nil
}
