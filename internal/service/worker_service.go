package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"variant-merger/internal/merge"
	"variant-merger/internal/metrics"
	"variant-merger/internal/models"
	"variant-merger/internal/repository"
	"variant-merger/internal/tracing"
)

// DefaultClaimBatchSize bounds how many jobs one drain pass merges
const DefaultClaimBatchSize = 5

// DrainResult summarizes one drain pass
type DrainResult struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

// WorkerService claims queued merge jobs and runs them through the executor
type WorkerService struct {
	queue    repository.QueueRepository
	state    repository.RunStateRepository
	executor *merge.Executor
	runLog   *RunLog
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewWorkerService creates a new worker service
func NewWorkerService(
	queue repository.QueueRepository,
	state repository.RunStateRepository,
	executor *merge.Executor,
	m *metrics.Metrics,
	logger *zap.Logger,
) *WorkerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerService{
		queue:    queue,
		state:    state,
		executor: executor,
		runLog:   NewRunLog(state, logger),
		metrics:  m,
		logger:   logger,
	}
}

// Drain claims up to limit jobs and processes them one after another.
// Jobs already claimed are always finished, even if ctx is cancelled midway,
// so nothing is left in processing until the stuck-job sweep.
func (s *WorkerService) Drain(ctx context.Context, limit int, threshold float64) (DrainResult, error) {
	ctx, span := tracing.StartSpan(ctx, "service.WorkerService.Drain", attribute.Int("limit", limit))
	defer span.End()

	if limit <= 0 {
		limit = DefaultClaimBatchSize
	}

	jobs, err := s.queue.Claim(ctx, limit)
	if err != nil {
		tracing.Fail(span, err)
		return DrainResult{}, fmt.Errorf("failed to claim jobs: %w", err)
	}

	result := DrainResult{Claimed: len(jobs)}
	if len(jobs) == 0 {
		return result, nil
	}
	s.metrics.AddClaimedJobs(len(jobs))

	work := context.WithoutCancel(ctx)
	for _, job := range jobs {
		switch s.processJob(work, job, threshold) {
		case models.StatusCompleted:
			result.Completed++
		case models.StatusPending:
			result.Retried++
		case models.StatusFailed:
			result.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("completed", result.Completed),
		attribute.Int("retried", result.Retried),
		attribute.Int("failed", result.Failed))
	return result, nil
}

// processJob merges a single job's group and records the outcome
func (s *WorkerService) processJob(ctx context.Context, job models.QueueJob, threshold float64) models.JobStatus {
	ctx, span := tracing.StartSpan(ctx, "service.WorkerService.processJob",
		attribute.String("job_id", job.ID),
		attribute.Int("attempt", job.Attempts))
	defer span.End()

	log := s.logger.With(zap.String("job_id", job.ID), zap.Strings("item_ids", job.ItemIDs))
	log.Debug("job claimed", zap.Int("attempt", job.Attempts), zap.Int("max_attempts", job.MaxAttempts))

	result, err := s.executor.Merge(ctx, job.ItemIDs, threshold)
	if err != nil {
		tracing.Fail(span, err)
		return s.handleJobFailure(ctx, job, err)
	}

	if err := s.queue.Complete(ctx, job.ID); err != nil {
		// The merge is done and the sources are superseded; a retry would fail validation.
		log.Error("error marking job completed", zap.String("combined_id", result.CombinedID), zap.Error(err))
	}

	if err := s.state.AddStats(ctx, models.RunStats{Processed: int64(len(job.ItemIDs)), Created: 1}); err != nil {
		log.Error("error updating run stats", zap.Error(err))
	}

	s.metrics.IncrementCompletedJobs()
	s.runLog.Info(ctx, "Successfully created variable product #%s from %d products", result.CombinedID, len(job.ItemIDs))
	return models.StatusCompleted
}

// handleJobFailure returns the job to pending while attempts remain, otherwise fails it terminally
func (s *WorkerService) handleJobFailure(ctx context.Context, job models.QueueJob, cause error) models.JobStatus {
	log := s.logger.With(zap.String("job_id", job.ID), zap.Strings("item_ids", job.ItemIDs))

	var verr *merge.ValidationError
	if errors.As(cause, &verr) {
		log = log.With(zap.String("reason", string(verr.Reason)))
	}

	status, err := s.queue.Fail(ctx, job.ID, cause.Error())
	if err != nil {
		log.Error("error recording job failure", zap.Error(err), zap.NamedError("cause", cause))
		status = models.StatusFailed
	}

	if err := s.state.AddStats(ctx, models.RunStats{Failed: 1}); err != nil {
		log.Error("error updating run stats", zap.Error(err))
	}

	if status == models.StatusPending {
		s.metrics.IncrementRetriedJobs()
		log.Warn("job failed, retrying", zap.Int("attempt", job.Attempts), zap.Int("max_attempts", job.MaxAttempts), zap.Error(cause))
		s.runLog.Error(ctx, "Failed to merge products %v (attempt %d/%d): %s", job.ItemIDs, job.Attempts, job.MaxAttempts, cause)
		return status
	}

	s.metrics.IncrementFailedJobs()
	log.Error("job failed permanently", zap.Int("attempts", job.Attempts), zap.Error(cause))
	s.runLog.Error(ctx, "Failed to merge products %v after %d attempts: %s", job.ItemIDs, job.Attempts, cause)
	return models.StatusFailed
}
