// Package scheduler drives the run controller and the retention cleaner on fixed
// intervals, with an on-demand kick for immediate drain ticks.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"variant-merger/internal/models"
	"variant-merger/internal/service"
)

// ErrSchedulerAlreadyRunning is returned when Run is called on a running scheduler
var ErrSchedulerAlreadyRunning = errors.New("scheduler already running")

const (
	// DefaultDrainInterval is the period between drain ticks
	DefaultDrainInterval = 60 * time.Second
	// DefaultSweepInterval is the period between automatic catalog sweeps
	DefaultSweepInterval = time.Hour
	// DefaultCleanupInterval is the period between retention passes
	DefaultCleanupInterval = 24 * time.Hour
)

// Controller is the part of the run controller the scheduler drives
type Controller interface {
	Tick(ctx context.Context) (service.TickResult, error)
	Sweep(ctx context.Context) error
}

// Cleaner applies the retention policy
type Cleaner interface {
	Run(ctx context.Context) (service.CleanupResult, error)
}

// Config holds the scheduler intervals
type Config struct {
	DrainInterval   time.Duration
	SweepInterval   time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns the default intervals
func DefaultConfig() Config {
	return Config{
		DrainInterval:   DefaultDrainInterval,
		SweepInterval:   DefaultSweepInterval,
		CleanupInterval: DefaultCleanupInterval,
	}
}

var _ service.Trigger = (*Scheduler)(nil)

// Scheduler runs drain ticks, automatic sweeps and cleanup on one goroutine,
// so no two of them ever overlap within a process.
type Scheduler struct {
	controller Controller
	cleaner    Cleaner
	config     Config
	logger     *zap.Logger

	kick    chan struct{}
	running bool
	mu      sync.Mutex
}

// New creates a scheduler. Zero intervals take the defaults.
func New(controller Controller, cleaner Cleaner, config Config, logger *zap.Logger) *Scheduler {
	defaults := DefaultConfig()
	if config.DrainInterval <= 0 {
		config.DrainInterval = defaults.DrainInterval
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		controller: controller,
		cleaner:    cleaner,
		config:     config,
		logger:     logger,
		kick:       make(chan struct{}, 1),
	}
}

// Kick requests a drain tick as soon as the loop is free. Repeated kicks
// before the tick runs collapse into one.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Cancel discards a pending kick
func (s *Scheduler) Cancel() {
	select {
	case <-s.kick:
	default:
	}
}

// IsRunning returns whether the loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run blocks, dispatching ticks until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("scheduler started",
		zap.Duration("drain_interval", s.config.DrainInterval),
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("cleanup_interval", s.config.CleanupInterval))

	drain := time.NewTicker(s.config.DrainInterval)
	defer drain.Stop()
	sweep := time.NewTicker(s.config.SweepInterval)
	defer sweep.Stop()
	cleanup := time.NewTicker(s.config.CleanupInterval)
	defer cleanup.Stop()

	// resume a run left running by a previous process
	s.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-s.kick:
			s.drain(ctx)
		case <-drain.C:
			s.drain(ctx)
		case <-sweep.C:
			s.sweep(ctx)
		case <-cleanup.C:
			s.cleanup(ctx)
		}
	}
}

func (s *Scheduler) drain(ctx context.Context) {
	result, err := s.controller.Tick(ctx)
	if err != nil {
		s.logger.Error("drain tick failed", zap.Error(err))
		return
	}
	if result.Skipped {
		return
	}

	s.logger.Debug("drain tick",
		zap.String("status", string(result.Status)),
		zap.Int("swept", result.Swept),
		zap.Int("queued", result.Queued),
		zap.Int("claimed", result.Drain.Claimed))

	// keep going without waiting for the ticker while there is work
	if result.Status == models.RunRunning && (result.Drain.Claimed > 0 || result.Swept > 0) {
		s.Kick()
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	err := s.controller.Sweep(ctx)
	switch {
	case err == nil:
		s.logger.Info("automatic sweep started")
	case errors.Is(err, service.ErrAlreadyRunning), errors.Is(err, service.ErrRunStopped):
		s.logger.Debug("automatic sweep skipped", zap.Error(err))
	default:
		s.logger.Error("automatic sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) cleanup(ctx context.Context) {
	if _, err := s.cleaner.Run(ctx); err != nil {
		s.logger.Error("queue cleanup failed", zap.Error(err))
	}
}
