package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"variant-merger/internal/merge"
	"variant-merger/internal/metrics"
	"variant-merger/internal/models"
	"variant-merger/internal/repository"
	"variant-merger/internal/similarity"
	"variant-merger/internal/tracing"
)

const (
	// DefaultCandidateBatchSize is how many catalog items one sweep step classifies
	DefaultCandidateBatchSize = 100
	// DefaultStatusLogTail is how many log entries a status read returns
	DefaultStatusLogTail = 50
)

// Trigger schedules an immediate drain tick. The scheduler implements it.
type Trigger interface {
	Kick()
	Cancel()
}

// ControllerConfig sizes the controller's per-tick work
type ControllerConfig struct {
	CandidateBatchSize int
	ClaimBatchSize     int
	StatusLogTail      int
}

// TickResult summarizes one controller tick
type TickResult struct {
	Skipped bool             `json:"skipped"`
	Swept   int              `json:"swept"`
	Queued  int              `json:"queued"`
	Drain   DrainResult      `json:"drain"`
	Status  models.RunStatus `json:"status"`
}

// RunController drives the merge run state machine: idle, running, stopped.
// The persisted status is the only coordination between manual and automatic
// triggers; every transition is a compare-and-swap on the run state row.
type RunController struct {
	queue    repository.QueueRepository
	state    repository.RunStateRepository
	settings repository.SettingsRepository
	catalog  merge.Catalog
	worker   *WorkerService
	runLog   *RunLog
	metrics  *metrics.Metrics
	logger   *zap.Logger
	config   ControllerConfig

	tickMu  sync.Mutex
	trigger Trigger
}

// NewRunController creates a run controller
func NewRunController(
	queue repository.QueueRepository,
	state repository.RunStateRepository,
	settings repository.SettingsRepository,
	catalog merge.Catalog,
	worker *WorkerService,
	m *metrics.Metrics,
	config ControllerConfig,
	logger *zap.Logger,
) *RunController {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.CandidateBatchSize <= 0 {
		config.CandidateBatchSize = DefaultCandidateBatchSize
	}
	if config.ClaimBatchSize <= 0 {
		config.ClaimBatchSize = DefaultClaimBatchSize
	}
	if config.StatusLogTail <= 0 {
		config.StatusLogTail = DefaultStatusLogTail
	}

	return &RunController{
		queue:    queue,
		state:    state,
		settings: settings,
		catalog:  catalog,
		worker:   worker,
		runLog:   NewRunLog(state, logger),
		metrics:  m,
		logger:   logger,
		config:   config,
	}
}

// SetTrigger registers the scheduler that Start and Stop kick and cancel
func (c *RunController) SetTrigger(t Trigger) {
	c.trigger = t
}

// Start queues candidate groups and moves the run to running. With item ids only
// those items are classified; without, the catalog is swept page by page until a
// group is queued or the catalog is exhausted. Returns ErrNothingToQueue, leaving
// the status unchanged, when no group was queued.
func (c *RunController) Start(ctx context.Context, itemIDs []string) (*models.StartResult, error) {
	ctx, span := tracing.StartSpan(ctx, "service.RunController.Start", attribute.Int("item_ids", len(itemIDs)))
	defer span.End()

	settings, err := c.settings.GetSettings(ctx)
	if err != nil {
		tracing.Fail(span, err)
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	classifier := similarity.NewClassifier(settings.TitleSimilarity)

	var queued, considered int
	if len(itemIDs) > 0 {
		items, err := c.loadCandidates(ctx, itemIDs)
		if err != nil {
			tracing.Fail(span, err)
			return nil, err
		}
		considered = len(items)
		if queued, err = c.enqueueGroups(ctx, classifier.Classify(items)); err != nil {
			tracing.Fail(span, err)
			return nil, err
		}
	} else {
		if queued, considered, err = c.sweepUntilQueued(ctx, classifier); err != nil {
			tracing.Fail(span, err)
			return nil, err
		}
	}

	if queued == 0 {
		c.logger.Info("start found nothing to queue", zap.Int("items", considered))
		return nil, ErrNothingToQueue
	}

	changed, err := c.state.CompareAndSetStatus(ctx, []models.RunStatus{models.RunIdle, models.RunStopped}, models.RunRunning)
	if err != nil {
		tracing.Fail(span, err)
		return nil, err
	}
	if changed && len(itemIDs) > 0 {
		// an explicit selection is not a sweep
		if err := c.state.SetSweep(ctx, "", true); err != nil {
			return nil, err
		}
	}

	c.runLog.Info(ctx, "Processing started: %d groups queued from %d products", queued, considered)
	c.kick()

	return &models.StartResult{
		Message:     "Processing started",
		QueuedItems: queued,
		ItemCount:   considered,
	}, nil
}

// Stop moves the run to stopped and cancels any pending kick. A merge already
// executing in the current tick runs to completion.
func (c *RunController) Stop(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "service.RunController.Stop")
	defer span.End()

	if c.trigger != nil {
		c.trigger.Cancel()
	}

	if _, err := c.state.CompareAndSetStatus(ctx,
		[]models.RunStatus{models.RunIdle, models.RunRunning, models.RunStopped}, models.RunStopped); err != nil {
		tracing.Fail(span, err)
		return err
	}

	c.runLog.Info(ctx, "Processing stopped")
	return nil
}

// Status aggregates run state, queue counts and the newest log entries
func (c *RunController) Status(ctx context.Context) (*models.StatusResponse, error) {
	state, err := c.state.Get(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := c.queue.Counts(ctx)
	if err != nil {
		return nil, err
	}
	logs, err := c.state.RecentLogs(ctx, c.config.StatusLogTail)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.LogEntry{}
	}

	c.metrics.SetQueueCounts(counts)

	return &models.StatusResponse{
		Status: state.Status,
		Stats:  state.Stats,
		Queue:  counts,
		Logs:   logs,
	}, nil
}

// ResetStats zeroes the run counters
func (c *RunController) ResetStats(ctx context.Context) error {
	if err := c.state.ResetStats(ctx); err != nil {
		return err
	}
	c.runLog.Info(ctx, "Statistics reset")
	return nil
}

// Sweep starts an unattended full catalog sweep. It only moves idle to running;
// a run in progress yields ErrAlreadyRunning and an operator stop yields ErrRunStopped.
func (c *RunController) Sweep(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "service.RunController.Sweep")
	defer span.End()

	changed, err := c.state.CompareAndSetStatus(ctx, []models.RunStatus{models.RunIdle}, models.RunRunning)
	if err != nil {
		tracing.Fail(span, err)
		return err
	}
	if !changed {
		state, err := c.state.Get(ctx)
		if err != nil {
			return err
		}
		if state.Status == models.RunStopped {
			return ErrRunStopped
		}
		return ErrAlreadyRunning
	}

	if err := c.state.SetSweep(ctx, "", false); err != nil {
		tracing.Fail(span, err)
		return err
	}

	c.runLog.Info(ctx, "Automatic sweep started")
	c.kick()
	return nil
}

// Tick performs one drive step while running: the next sweep page is classified and
// queued, a bounded batch of jobs is merged, and the run returns to idle once the
// sweep is complete and no job is pending or processing. Overlapping ticks in the
// same process are skipped.
func (c *RunController) Tick(ctx context.Context) (TickResult, error) {
	if !c.tickMu.TryLock() {
		c.logger.Debug("tick already in progress")
		return TickResult{Skipped: true}, nil
	}
	defer c.tickMu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "service.RunController.Tick")
	defer span.End()

	state, err := c.state.Get(ctx)
	if err != nil {
		tracing.Fail(span, err)
		return TickResult{}, err
	}
	if state.Status != models.RunRunning {
		return TickResult{Skipped: true, Status: state.Status}, nil
	}

	settings, err := c.settings.GetSettings(ctx)
	if err != nil {
		tracing.Fail(span, err)
		return TickResult{}, fmt.Errorf("failed to load settings: %w", err)
	}

	result := TickResult{Status: models.RunRunning}
	if !state.SweepDone {
		page, err := c.sweepStep(ctx, similarity.NewClassifier(settings.TitleSimilarity), state.SweepCursor)
		result.Swept, result.Queued = page.swept, page.queued
		if err != nil {
			tracing.Fail(span, err)
			return result, err
		}
		state.SweepDone = page.done
	}

	drain, err := c.worker.Drain(ctx, c.config.ClaimBatchSize, settings.TitleSimilarity)
	result.Drain = drain
	if err != nil {
		tracing.Fail(span, err)
		return result, err
	}

	counts, err := c.queue.Counts(ctx)
	if err != nil {
		return result, err
	}
	c.metrics.SetQueueCounts(counts)

	if state.SweepDone && counts.Active() == 0 {
		changed, err := c.state.CompareAndSetStatus(ctx, []models.RunStatus{models.RunRunning}, models.RunIdle)
		if err != nil {
			return result, err
		}
		if changed {
			result.Status = models.RunIdle
			c.runLog.Info(ctx, "Processing complete")
		}
	}

	span.SetAttributes(attribute.Int("swept", result.Swept), attribute.Int("queued", result.Queued))
	return result, nil
}

type sweepPage struct {
	swept  int
	queued int
	cursor string
	done   bool
}

// sweepStep classifies the catalog page after cursor and advances the cursor.
// An empty page completes the sweep.
func (c *RunController) sweepStep(ctx context.Context, classifier *similarity.Classifier, cursor string) (sweepPage, error) {
	page, err := c.catalog.ListSimplePublishedItems(ctx, cursor, c.config.CandidateBatchSize)
	if err != nil {
		return sweepPage{cursor: cursor}, fmt.Errorf("failed to list candidate items: %w", err)
	}
	if len(page) == 0 {
		if err := c.state.SetSweep(ctx, cursor, true); err != nil {
			return sweepPage{cursor: cursor}, err
		}
		c.logger.Info("catalog sweep complete")
		return sweepPage{cursor: cursor, done: true}, nil
	}

	result := sweepPage{swept: len(page), cursor: cursor}
	result.queued, err = c.enqueueGroups(ctx, classifier.Classify(page))
	if err != nil {
		return result, err
	}

	result.cursor = page[len(page)-1].ID
	if err := c.state.SetSweep(ctx, result.cursor, false); err != nil {
		return result, err
	}
	c.logger.Debug("sweep page classified",
		zap.String("cursor", result.cursor),
		zap.Int("items", result.swept),
		zap.Int("queued", result.queued))
	return result, nil
}

// sweepUntilQueued walks sweep pages from the start of the catalog until a group is
// queued. Returns the queued count and the number of items classified.
func (c *RunController) sweepUntilQueued(ctx context.Context, classifier *similarity.Classifier) (queued, considered int, err error) {
	if err := c.state.SetSweep(ctx, "", false); err != nil {
		return 0, 0, err
	}

	cursor := ""
	for {
		page, err := c.sweepStep(ctx, classifier, cursor)
		considered += page.swept
		queued += page.queued
		if err != nil || page.done || queued > 0 {
			return queued, considered, err
		}
		cursor = page.cursor
	}
}

// loadCandidates fetches the selected items, dropping ids that are missing or
// not simple published items
func (c *RunController) loadCandidates(ctx context.Context, itemIDs []string) ([]models.Item, error) {
	items := make([]models.Item, 0, len(itemIDs))
	for _, id := range itemIDs {
		item, err := c.catalog.GetItem(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load item %s: %w", id, err)
		}
		if item == nil || item.Kind != models.KindSimple || item.Status != models.ItemPublished {
			c.logger.Debug("skipping non-candidate item", zap.String("item_id", id))
			continue
		}
		items = append(items, *item)
	}
	return items, nil
}

// enqueueGroups enqueues every group and counts those now waiting in the queue,
// including groups that were already queued and are still active
func (c *RunController) enqueueGroups(ctx context.Context, groups []models.CandidateGroup) (int, error) {
	queued := 0
	for _, group := range groups {
		id, created, err := c.queue.Enqueue(ctx, group, 0)
		if err != nil {
			return queued, err
		}
		if created {
			c.metrics.IncrementEnqueuedJobs()
			c.logger.Info("group queued", zap.String("job_id", id), zap.Strings("item_ids", group))
			queued++
			continue
		}

		job, err := c.queue.GetJob(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrJobNotFound) {
				continue
			}
			return queued, err
		}
		if job.Status == models.StatusPending || job.Status == models.StatusProcessing {
			queued++
		}
	}
	return queued, nil
}

func (c *RunController) kick() {
	if c.trigger != nil {
		c.trigger.Kick()
	}
}
