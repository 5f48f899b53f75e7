package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"variant-merger/internal/merge"
	"variant-merger/internal/models"
	"variant-merger/internal/repository"
)

// mockQueue is a QueueRepository that records calls
type mockQueue struct {
	repository.QueueRepository

	claimErr     error
	claimed      []models.QueueJob
	completed    []string
	failed       map[string]string
	failStatus   models.JobStatus
	purgeAges    map[string]time.Duration
	purgeErr     error
	reclaimAge   time.Duration
	reclaimCount int64
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		failed:     make(map[string]string),
		failStatus: models.StatusPending,
		purgeAges:  make(map[string]time.Duration),
	}
}

func (m *mockQueue) Claim(ctx context.Context, limit int) ([]models.QueueJob, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	if len(m.claimed) > limit {
		return m.claimed[:limit], nil
	}
	return m.claimed, nil
}

func (m *mockQueue) Complete(ctx context.Context, id string) error {
	m.completed = append(m.completed, id)
	return nil
}

func (m *mockQueue) Fail(ctx context.Context, id string, message string) (models.JobStatus, error) {
	m.failed[id] = message
	return m.failStatus, nil
}

func (m *mockQueue) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.purgeAges["completed"] = olderThan
	return 2, m.purgeErr
}

func (m *mockQueue) PurgeFailed(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.purgeAges["failed"] = olderThan
	return 1, m.purgeErr
}

func (m *mockQueue) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.reclaimAge = olderThan
	return m.reclaimCount, nil
}

func TestWorkerService_DrainEmptyQueue(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})

	result, err := env.worker.Drain(context.Background(), 5, 80)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, result)
}

func TestWorkerService_DrainClaimError(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})
	queue := newMockQueue()
	queue.claimErr = errors.New("database is locked")

	worker := NewWorkerService(queue, env.state, merge.NewExecutor(env.catalog, nil, nil, nil), nil, nil)
	_, err := worker.Drain(context.Background(), 5, 80)
	assert.ErrorContains(t, err, "database is locked")
}

func TestWorkerService_DrainHonorsLimit(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})
	ctx := context.Background()

	_, _, err := env.queue.Enqueue(ctx, []string{"s1", "s2"}, 0)
	require.NoError(t, err)
	_, _, err = env.queue.Enqueue(ctx, []string{"s4", "s5"}, 0)
	require.NoError(t, err)

	result, err := env.worker.Drain(ctx, 1, 80)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Claimed)
	assert.Equal(t, 1, result.Completed)

	counts, err := env.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)
	assert.Equal(t, 1, counts.Completed)
}

func TestWorkerService_ProcessJobFailureRecordsReason(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})
	queue := newMockQueue()
	queue.claimed = []models.QueueJob{{ID: "job-1", ItemIDs: []string{"s1", "s4"}, Attempts: 1, MaxAttempts: 3}}

	worker := NewWorkerService(queue, env.state, merge.NewExecutor(env.catalog, nil, nil, nil), nil, nil)
	result, err := worker.Drain(context.Background(), 5, 80)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried)
	assert.Equal(t, "products must share the same category", queue.failed["job-1"])
	assert.Empty(t, queue.completed)

	state, err := env.state.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.Stats.Failed)
}

func TestWorkerService_ProcessJobTerminalFailure(t *testing.T) {
	env := newTestEnv(t, ControllerConfig{})
	queue := newMockQueue()
	queue.failStatus = models.StatusFailed
	queue.claimed = []models.QueueJob{{ID: "job-1", ItemIDs: []string{"missing", "s1"}, Attempts: 3, MaxAttempts: 3}}

	worker := NewWorkerService(queue, env.state, merge.NewExecutor(env.catalog, nil, nil, nil), nil, nil)
	result, err := worker.Drain(context.Background(), 5, 80)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	logs, err := env.state.RecentLogs(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[len(logs)-1].Message, "after 3 attempts")
}
