package repository

import (
	"context"
	"time"

	"variant-merger/internal/models"
)

// QueueRepository defines the interface for merge job persistence
type QueueRepository interface {
	Enqueue(ctx context.Context, itemIDs []string, priority int) (id string, created bool, err error)
	GetJob(ctx context.Context, id string) (*models.QueueJob, error)
	Claim(ctx context.Context, limit int) ([]models.QueueJob, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, message string) (models.JobStatus, error)
	Counts(ctx context.Context) (models.QueueCounts, error)
	PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error)
	PurgeFailed(ctx context.Context, olderThan time.Duration) (int64, error)
	ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RunStateRepository persists the controller status, stats, sweep cursor and operator log
type RunStateRepository interface {
	Get(ctx context.Context) (models.RunState, error)
	CompareAndSetStatus(ctx context.Context, from []models.RunStatus, to models.RunStatus) (bool, error)
	AddStats(ctx context.Context, delta models.RunStats) error
	ResetStats(ctx context.Context) error
	SetSweep(ctx context.Context, cursor string, done bool) error
	AppendLog(ctx context.Context, entry models.LogEntry) error
	RecentLogs(ctx context.Context, limit int) ([]models.LogEntry, error)
}

// SettingsRepository stores typed operator settings
type SettingsRepository interface {
	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error
	SeedSettings(ctx context.Context, defaults models.Settings) error
}
