package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"variant-merger/internal/catalog"
	"variant-merger/internal/database"
	"variant-merger/internal/merge"
	"variant-merger/internal/metrics"
	"variant-merger/internal/models"
	"variant-merger/internal/repository"
)

const storeFixture = `
items:
  - id: s1
    name: Red Shirt
    brand: X
    category_ids: ["5"]
    price: "10.00"
    attributes:
      - name: color
        options: [Red]
  - id: s2
    name: red shirt
    brand: X
    category_ids: ["5"]
    price: "12.00"
    attributes:
      - name: color
        options: [Crimson]
  - id: s3
    name: Blue Pants
    brand: X
    category_ids: ["5"]
  - id: s4
    name: Green Hat
    brand: X
    category_ids: ["6"]
  - id: s5
    name: Green Hats
    brand: X
    category_ids: ["6"]
`

// fakeTrigger records scheduler calls
type fakeTrigger struct {
	mu      sync.Mutex
	kicks   int
	cancels int
}

func (f *fakeTrigger) Kick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicks++
}

func (f *fakeTrigger) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

type testEnv struct {
	controller *RunController
	worker     *WorkerService
	queue      *repository.SQLiteQueue
	state      *repository.SQLiteRunState
	settings   *repository.SQLiteSettings
	catalog    *catalog.SQLiteCatalog
	trigger    *fakeTrigger
}

func newTestEnv(t *testing.T, config ControllerConfig) *testEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "service.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cat := catalog.NewSQLiteCatalog(db, nil)
	fx, err := catalog.ParseFixture([]byte(storeFixture))
	require.NoError(t, err)
	_, err = cat.Seed(context.Background(), fx)
	require.NoError(t, err)

	m := metrics.NewMetrics()
	queue := repository.NewSQLiteQueue(db, models.DefaultMaxAttempts, nil)
	state := repository.NewSQLiteRunState(db, 0, nil)
	settings := repository.NewSQLiteSettings(db, models.Settings{TitleSimilarity: 80, Provider: "openai"})

	worker := NewWorkerService(queue, state, merge.NewExecutor(cat, nil, m, nil), m, nil)
	controller := NewRunController(queue, state, settings, cat, worker, m, config, nil)
	trigger := &fakeTrigger{}
	controller.SetTrigger(trigger)

	return &testEnv{
		controller: controller,
		worker:     worker,
		queue:      queue,
		state:      state,
		settings:   settings,
		catalog:    cat,
		trigger:    trigger,
	}
}

func (e *testEnv) status(t *testing.T) *models.StatusResponse {
	t.Helper()
	status, err := e.controller.Status(context.Background())
	require.NoError(t, err)
	return status
}

func hasLog(logs []models.LogEntry, severity models.LogSeverity, prefix string) bool {
	for _, entry := range logs {
		if entry.Type == severity && strings.HasPrefix(entry.Message, prefix) {
			return true
		}
	}
	return false
}

func TestRunController_StartWithItemIDs(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})

	result, err := env.controller.Start(context.Background(), []string{"s1", "s2", "s3"})
	require.NoError(t, err)
	assert.Equal(t, "Processing started", result.Message)
	assert.Equal(t, 1, result.QueuedItems)
	assert.Equal(t, 3, result.ItemCount)
	assert.Equal(t, 1, env.trigger.kicks)

	status := env.status(t)
	assert.Equal(t, models.RunRunning, status.Status)
	assert.Equal(t, 1, status.Queue.Pending)
	assert.True(t, hasLog(status.Logs, models.SeverityInfo, "Processing started"))

	state, err := env.state.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, state.SweepDone, "an explicit selection does not sweep")
}

func TestRunController_StartNothingToQueue(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})

	_, err := env.controller.Start(context.Background(), []string{"s3", "s4", "missing"})
	assert.ErrorIs(t, err, ErrNothingToQueue)
	assert.Equal(t, models.RunIdle, env.status(t).Status)
	assert.Zero(t, env.trigger.kicks)
}

func TestRunController_StartTwiceCountsQueuedGroup(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})
	ctx := context.Background()

	_, err := env.controller.Start(ctx, []string{"s1", "s2"})
	require.NoError(t, err)

	result, err := env.controller.Start(ctx, []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.QueuedItems)
	assert.Equal(t, 1, env.status(t).Queue.Pending, "the group is queued once")
}

func TestRunController_StartSweepsUntilQueued(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{CandidateBatchSize: 2})
	ctx := context.Background()

	result, err := env.controller.Start(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.QueuedItems)
	assert.Equal(t, 2, result.ItemCount, "the first page already queued a group")

	state, err := env.state.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s2", state.SweepCursor)
	assert.False(t, state.SweepDone)
}

func TestRunController_StartSweepExhaustsCatalog(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{CandidateBatchSize: 2})
	ctx := context.Background()

	// supersede the shirts so no page yields a group
	for _, id := range []string{"s1", "s4"} {
		require.NoError(t, env.catalog.UpdateItemStatus(ctx, id, models.ItemSuperseded, "gone"))
	}

	_, err := env.controller.Start(ctx, nil)
	assert.ErrorIs(t, err, ErrNothingToQueue)

	state, err := env.state.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RunIdle, state.Status)
	assert.True(t, state.SweepDone)
}

func TestRunController_TickMergesAndReturnsToIdle(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})
	ctx := context.Background()

	_, err := env.controller.Start(ctx, []string{"s1", "s2"})
	require.NoError(t, err)

	result, err := env.controller.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Drain.Claimed)
	assert.Equal(t, 1, result.Drain.Completed)
	assert.Equal(t, models.RunIdle, result.Status)

	status := env.status(t)
	assert.Equal(t, models.RunIdle, status.Status)
	assert.Equal(t, models.RunStats{Processed: 2, Created: 1}, status.Stats)
	assert.Equal(t, 1, status.Queue.Completed)
	assert.True(t, hasLog(status.Logs, models.SeverityInfo, "Successfully created variable product #"))
	assert.True(t, hasLog(status.Logs, models.SeverityInfo, "Processing complete"))

	source, err := env.catalog.GetItem(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ItemSuperseded, source.Status)
}

func TestRunController_TickWalksSweepPages(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{CandidateBatchSize: 2})
	ctx := context.Background()

	require.NoError(t, env.controller.Sweep(ctx))
	assert.Equal(t, 1, env.trigger.kicks)

	var ticks int
	for ; ticks < 10; ticks++ {
		result, err := env.controller.Tick(ctx)
		require.NoError(t, err)
		if result.Status == models.RunIdle {
			break
		}
	}
	assert.Less(t, ticks, 10, "sweep never completed")

	status := env.status(t)
	assert.Equal(t, models.RunIdle, status.Status)
	assert.Equal(t, int64(1), status.Stats.Created, "only the shirts share a page")
}

func TestRunController_TickSkipsUnlessRunning(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})

	result, err := env.controller.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, models.RunIdle, result.Status)
}

func TestRunController_StopSuppressesDraining(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})
	ctx := context.Background()

	_, err := env.controller.Start(ctx, []string{"s1", "s2"})
	require.NoError(t, err)
	require.NoError(t, env.controller.Stop(ctx))
	assert.Equal(t, 1, env.trigger.cancels)

	result, err := env.controller.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, result.Skipped)

	status := env.status(t)
	assert.Equal(t, models.RunStopped, status.Status)
	assert.Equal(t, 1, status.Queue.Pending)
	assert.True(t, hasLog(status.Logs, models.SeverityInfo, "Processing stopped"))

	// restart resumes the queued group
	_, err = env.controller.Start(ctx, []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, env.status(t).Status)
}

func TestRunController_SweepMutualExclusion(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})
	ctx := context.Background()

	require.NoError(t, env.controller.Sweep(ctx))
	assert.ErrorIs(t, env.controller.Sweep(ctx), ErrAlreadyRunning)

	require.NoError(t, env.controller.Stop(ctx))
	assert.ErrorIs(t, env.controller.Sweep(ctx), ErrRunStopped)
}

func TestRunController_FailingGroupRetriesThenFails(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})
	ctx := context.Background()

	// titles too far apart to merge
	jobID, created, err := env.queue.Enqueue(ctx, []string{"s1", "s3"}, 0)
	require.NoError(t, err)
	require.True(t, created)
	ok, err := env.state.CompareAndSetStatus(ctx, []models.RunStatus{models.RunIdle}, models.RunRunning)
	require.NoError(t, err)
	require.True(t, ok)

	for attempt := 1; attempt <= models.DefaultMaxAttempts; attempt++ {
		result, err := env.controller.Tick(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, result.Drain.Claimed, "attempt %d", attempt)
	}

	job, err := env.queue.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Equal(t, models.DefaultMaxAttempts, job.Attempts)
	assert.Contains(t, job.ErrorMessage, "similar")

	status := env.status(t)
	assert.Equal(t, models.RunIdle, status.Status)
	assert.Equal(t, int64(models.DefaultMaxAttempts), status.Stats.Failed)
	assert.Zero(t, status.Stats.Created)
	assert.True(t, hasLog(status.Logs, models.SeverityError, "Failed to merge products"))

	source, err := env.catalog.GetItem(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.ItemPublished, source.Status)
}

func TestRunController_ResetStats(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})
	ctx := context.Background()

	require.NoError(t, env.state.AddStats(ctx, models.RunStats{Processed: 4, Created: 2, Failed: 1}))
	require.NoError(t, env.controller.ResetStats(ctx))
	assert.Equal(t, models.RunStats{}, env.status(t).Stats)
}

func TestRunController_StatusLogTail(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{StatusLogTail: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		env.controller.runLog.Info(ctx, "entry %d", i)
	}

	logs := env.status(t).Logs
	require.Len(t, logs, 2)
	assert.Equal(t, "entry 3", logs[0].Message)
	assert.Equal(t, "entry 4", logs[1].Message)
}
