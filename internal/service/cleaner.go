package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"variant-merger/internal/metrics"
	"variant-merger/internal/models"
	"variant-merger/internal/repository"
	"variant-merger/internal/tracing"
)

// Retention controls how long finished jobs are kept and when processing jobs count as stuck
type Retention struct {
	Completed time.Duration
	Failed    time.Duration
	Stuck     time.Duration
}

// DefaultRetention keeps completed jobs 7 days, failed jobs 30 days and reclaims after 24 hours
func DefaultRetention() Retention {
	return Retention{
		Completed: 7 * 24 * time.Hour,
		Failed:    30 * 24 * time.Hour,
		Stuck:     24 * time.Hour,
	}
}

// CleanupResult counts the jobs one cleanup pass touched
type CleanupResult struct {
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Stuck     int64 `json:"stuck"`
}

// Total is the number of jobs cleaned across all categories
func (r CleanupResult) Total() int64 {
	return r.Completed + r.Failed + r.Stuck
}

// Cleaner applies the queue retention policy
type Cleaner struct {
	queue     repository.QueueRepository
	retention Retention
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewCleaner creates a cleaner. Zero retention fields take the defaults.
func NewCleaner(queue repository.QueueRepository, retention Retention, m *metrics.Metrics, logger *zap.Logger) *Cleaner {
	defaults := DefaultRetention()
	if retention.Completed <= 0 {
		retention.Completed = defaults.Completed
	}
	if retention.Failed <= 0 {
		retention.Failed = defaults.Failed
	}
	if retention.Stuck <= 0 {
		retention.Stuck = defaults.Stuck
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{queue: queue, retention: retention, metrics: m, logger: logger}
}

// Run is the scheduled pass: stuck jobs are reclaimed first, then aged jobs are purged
func (c *Cleaner) Run(ctx context.Context) (CleanupResult, error) {
	ctx, span := tracing.StartSpan(ctx, "service.Cleaner.Run")
	defer span.End()

	var result CleanupResult
	var err error

	if result.Stuck, err = c.reclaim(ctx, c.retention.Stuck); err != nil {
		tracing.Fail(span, err)
		return result, err
	}
	if result.Completed, err = c.queue.PurgeCompleted(ctx, c.retention.Completed); err != nil {
		tracing.Fail(span, err)
		return result, err
	}
	if result.Failed, err = c.queue.PurgeFailed(ctx, c.retention.Failed); err != nil {
		tracing.Fail(span, err)
		return result, err
	}

	c.logger.Info("queue cleanup complete",
		zap.Int64("completed", result.Completed),
		zap.Int64("failed", result.Failed),
		zap.Int64("stuck", result.Stuck))
	return result, nil
}

// Cleanup is the operator-triggered pass. Completed and failed jobs are removed
// regardless of age; stuck jobs use the regular threshold.
func (c *Cleaner) Cleanup(ctx context.Context, cleanupType models.CleanupType) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "service.Cleaner.Cleanup")
	defer span.End()

	var (
		result CleanupResult
		err    error
	)

	switch cleanupType {
	case models.CleanupCompleted:
		result.Completed, err = c.queue.PurgeCompleted(ctx, 0)
	case models.CleanupFailed:
		result.Failed, err = c.queue.PurgeFailed(ctx, 0)
	case models.CleanupStuck:
		result.Stuck, err = c.reclaim(ctx, c.retention.Stuck)
	case models.CleanupAll:
		if result.Completed, err = c.queue.PurgeCompleted(ctx, 0); err != nil {
			break
		}
		if result.Failed, err = c.queue.PurgeFailed(ctx, 0); err != nil {
			break
		}
		result.Stuck, err = c.reclaim(ctx, c.retention.Stuck)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCleanupType, cleanupType)
	}
	if err != nil {
		tracing.Fail(span, err)
		return result.Total(), err
	}

	c.logger.Info("manual queue cleanup", zap.String("type", string(cleanupType)), zap.Int64("cleaned", result.Total()))
	return result.Total(), nil
}

func (c *Cleaner) reclaim(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := c.queue.ReclaimStuck(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.metrics.AddTimedOutJobs(n)
		c.logger.Warn("reclaimed stuck jobs", zap.Int64("count", n), zap.Duration("threshold", olderThan))
	}
	return n, nil
}

// ParseCleanupType validates an operator supplied cleanup type
func ParseCleanupType(s string) (models.CleanupType, error) {
	switch t := models.CleanupType(s); t {
	case models.CleanupAll, models.CleanupCompleted, models.CleanupFailed, models.CleanupStuck:
		return t, nil
	case "":
		return models.CleanupAll, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCleanupType, s)
	}
}
