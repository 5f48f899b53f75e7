package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"variant-merger/internal/models"
)

var jobColumns = []string{
	"id", "item_ids", "group_key", "status", "priority", "attempts", "max_attempts",
	"created_at", "started_at", "completed_at", "error_message", "updated_at",
}

// jobRow is the storage shape of a queue job. Timestamps are unix milliseconds.
type jobRow struct {
	ID           string         `db:"id"`
	ItemIDs      string         `db:"item_ids"`
	GroupKey     string         `db:"group_key"`
	Status       string         `db:"status"`
	Priority     int            `db:"priority"`
	Attempts     int            `db:"attempts"`
	MaxAttempts  int            `db:"max_attempts"`
	CreatedAt    int64          `db:"created_at"`
	StartedAt    sql.NullInt64  `db:"started_at"`
	CompletedAt  sql.NullInt64  `db:"completed_at"`
	ErrorMessage sql.NullString `db:"error_message"`
	UpdatedAt    int64          `db:"updated_at"`
}

func (r jobRow) toModel() (models.QueueJob, error) {
	job := models.QueueJob{
		ID:           r.ID,
		GroupKey:     r.GroupKey,
		Status:       models.JobStatus(r.Status),
		Priority:     r.Priority,
		Attempts:     r.Attempts,
		MaxAttempts:  r.MaxAttempts,
		CreatedAt:    time.UnixMilli(r.CreatedAt),
		ErrorMessage: r.ErrorMessage.String,
	}
	if err := json.Unmarshal([]byte(r.ItemIDs), &job.ItemIDs); err != nil {
		return job, fmt.Errorf("failed to decode item ids: %w", err)
	}
	if r.StartedAt.Valid {
		t := time.UnixMilli(r.StartedAt.Int64)
		job.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := time.UnixMilli(r.CompletedAt.Int64)
		job.CompletedAt = &t
	}
	return job, nil
}

// GroupKey is the idempotency marker of a group: its sorted item ids
func GroupKey(itemIDs []string) string {
	ids := append([]string(nil), itemIDs...)
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// SQLiteQueue implements QueueRepository using SQLite
type SQLiteQueue struct {
	db          *sqlx.DB
	maxAttempts int
	logger      *zap.Logger
	now         func() time.Time
}

// NewSQLiteQueue creates a queue on an open database
func NewSQLiteQueue(db *sqlx.DB, maxAttempts int, logger *zap.Logger) *SQLiteQueue {
	if maxAttempts <= 0 {
		maxAttempts = models.DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteQueue{db: db, maxAttempts: maxAttempts, logger: logger, now: time.Now}
}

// Enqueue adds a pending job for the group. A group whose key is already queued
// returns the existing job id with created=false.
func (q *SQLiteQueue) Enqueue(ctx context.Context, itemIDs []string, priority int) (string, bool, error) {
	if len(itemIDs) == 0 {
		return "", false, &QueueError{Op: "enqueue", Err: ErrEmptyGroup}
	}

	encoded, err := json.Marshal(itemIDs)
	if err != nil {
		return "", false, &QueueError{Op: "enqueue", Err: err}
	}

	id := uuid.New().String()
	key := GroupKey(itemIDs)
	now := q.now().UnixMilli()

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertIgnoreInto("queue_jobs")
	ib.Cols("id", "item_ids", "group_key", "status", "priority", "attempts", "max_attempts", "created_at", "updated_at")
	ib.Values(id, string(encoded), key, string(models.StatusPending), priority, 0, q.maxAttempts, now, now)

	query, args := ib.Build()
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return "", false, &QueueError{Op: "enqueue", Err: err}
	}

	if n, _ := res.RowsAffected(); n == 1 {
		return id, true, nil
	}

	// group already queued
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id").From("queue_jobs").Where(sb.Equal("group_key", key))
	query, args = sb.Build()

	var existing string
	if err := q.db.GetContext(ctx, &existing, query, args...); err != nil {
		return "", false, &QueueError{Op: "enqueue", Err: err}
	}
	q.logger.Debug("group already queued", zap.String("job_id", existing), zap.String("group_key", key))
	return existing, false, nil
}

// GetJob retrieves a job by ID
func (q *SQLiteQueue) GetJob(ctx context.Context, id string) (*models.QueueJob, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(jobColumns...).From("queue_jobs").Where(sb.Equal("id", id))
	query, args := sb.Build()

	var row jobRow
	if err := q.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &QueueError{Op: "get", JobID: id, Err: ErrJobNotFound}
		}
		return nil, &QueueError{Op: "get", JobID: id, Err: err}
	}

	job, err := row.toModel()
	if err != nil {
		return nil, &QueueError{Op: "get", JobID: id, Err: err}
	}
	return &job, nil
}

// Claim moves up to limit pending jobs to processing, highest priority first then
// oldest first. Each job is claimed with a compare-and-swap on its status, so a job
// seen by two concurrent claimers is handed to exactly one of them.
func (q *SQLiteQueue) Claim(ctx context.Context, limit int) ([]models.QueueJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(jobColumns...).From("queue_jobs")
	sb.Where(sb.Equal("status", string(models.StatusPending)), "attempts < max_attempts")
	sb.OrderBy("priority DESC", "created_at ASC", "rowid ASC")
	sb.Limit(limit)
	query, args := sb.Build()

	var rows []jobRow
	if err := q.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &QueueError{Op: "claim", Err: err}
	}

	claimed := make([]models.QueueJob, 0, len(rows))
	for _, row := range rows {
		startedAt := q.now()
		ok, err := q.claimOne(ctx, row.ID, startedAt)
		if err != nil {
			return claimed, err
		}
		if !ok {
			q.logger.Debug("job claimed elsewhere", zap.String("job_id", row.ID))
			continue
		}

		job, err := row.toModel()
		if err != nil {
			return claimed, &QueueError{Op: "claim", JobID: row.ID, Err: err}
		}
		job.Status = models.StatusProcessing
		job.Attempts++
		job.StartedAt = &startedAt
		claimed = append(claimed, job)
	}

	return claimed, nil
}

func (q *SQLiteQueue) claimOne(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("queue_jobs")
	ub.Set(
		ub.Assign("status", string(models.StatusProcessing)),
		ub.Incr("attempts"),
		ub.Assign("started_at", startedAt.UnixMilli()),
		ub.Assign("updated_at", startedAt.UnixMilli()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", string(models.StatusPending)),
		"attempts < max_attempts",
	)
	query, args := ub.Build()

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, &QueueError{Op: "claim", JobID: id, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &QueueError{Op: "claim", JobID: id, Err: err}
	}
	return n == 1, nil
}

// Complete marks a processing job completed
func (q *SQLiteQueue) Complete(ctx context.Context, id string) error {
	now := q.now().UnixMilli()

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("queue_jobs")
	ub.Set(
		ub.Assign("status", string(models.StatusCompleted)),
		ub.Assign("completed_at", now),
		ub.Assign("updated_at", now),
		"error_message = NULL",
	)
	ub.Where(ub.Equal("id", id), ub.Equal("status", string(models.StatusProcessing)))
	query, args := ub.Build()

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &QueueError{Op: "complete", JobID: id, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &QueueError{Op: "complete", JobID: id, Err: ErrJobNotFound}
	}
	return nil
}

// Fail records a failed attempt. The job returns to pending while attempts remain,
// otherwise it becomes terminally failed. The resulting status is returned.
func (q *SQLiteQueue) Fail(ctx context.Context, id string, message string) (models.JobStatus, error) {
	now := q.now().UnixMilli()

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("queue_jobs")
	ub.Set(
		fmt.Sprintf("status = CASE WHEN attempts < max_attempts THEN %s ELSE %s END",
			ub.Var(string(models.StatusPending)), ub.Var(string(models.StatusFailed))),
		fmt.Sprintf("completed_at = CASE WHEN attempts < max_attempts THEN NULL ELSE %s END", ub.Var(now)),
		ub.Assign("error_message", message),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("id", id), ub.Equal("status", string(models.StatusProcessing)))
	query, args := ub.Build()

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return "", &QueueError{Op: "fail", JobID: id, Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", &QueueError{Op: "fail", JobID: id, Err: ErrJobNotFound}
	}

	job, err := q.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// Counts returns the number of jobs in each status
func (q *SQLiteQueue) Counts(ctx context.Context) (models.QueueCounts, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("status", "COUNT(*) AS total").From("queue_jobs").GroupBy("status")
	query, args := sb.Build()

	var rows []struct {
		Status string `db:"status"`
		Total  int    `db:"total"`
	}
	if err := q.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return models.QueueCounts{}, &QueueError{Op: "counts", Err: err}
	}

	var counts models.QueueCounts
	for _, row := range rows {
		switch models.JobStatus(row.Status) {
		case models.StatusPending:
			counts.Pending = row.Total
		case models.StatusProcessing:
			counts.Processing = row.Total
		case models.StatusCompleted:
			counts.Completed = row.Total
		case models.StatusFailed:
			counts.Failed = row.Total
		}
	}
	return counts, nil
}

// PurgeCompleted deletes completed jobs that finished at least olderThan ago
func (q *SQLiteQueue) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := q.now().Add(-olderThan).UnixMilli()

	del := sqlbuilder.SQLite.NewDeleteBuilder()
	del.DeleteFrom("queue_jobs")
	del.Where(del.Equal("status", string(models.StatusCompleted)), del.LessEqualThan("completed_at", cutoff))
	return q.exec(ctx, "purge_completed", del)
}

// PurgeFailed deletes jobs that exhausted their attempts and were created at least olderThan ago
func (q *SQLiteQueue) PurgeFailed(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := q.now().Add(-olderThan).UnixMilli()

	del := sqlbuilder.SQLite.NewDeleteBuilder()
	del.DeleteFrom("queue_jobs")
	del.Where(
		del.Equal("status", string(models.StatusFailed)),
		"attempts >= max_attempts",
		del.LessEqualThan("created_at", cutoff),
	)
	return q.exec(ctx, "purge_failed", del)
}

// ReclaimStuck force-fails jobs that have been processing for at least olderThan.
// Their attempts are exhausted so they age out with the other failed jobs.
func (q *SQLiteQueue) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := q.now()
	cutoff := now.Add(-olderThan).UnixMilli()
	message := (&TimeoutError{Limit: olderThan}).Error()

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("queue_jobs")
	ub.Set(
		ub.Assign("status", string(models.StatusFailed)),
		"attempts = max_attempts",
		ub.Assign("error_message", message),
		ub.Assign("completed_at", now.UnixMilli()),
		ub.Assign("updated_at", now.UnixMilli()),
	)
	ub.Where(ub.Equal("status", string(models.StatusProcessing)), ub.LessThan("started_at", cutoff))
	return q.exec(ctx, "reclaim_stuck", ub)
}

func (q *SQLiteQueue) exec(ctx context.Context, op string, builder sqlbuilder.Builder) (int64, error) {
	query, args := builder.Build()
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &QueueError{Op: op, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &QueueError{Op: op, Err: err}
	}
	if n > 0 {
		q.logger.Info("queue maintenance", zap.String("op", op), zap.Int64("count", n))
	}
	return n, nil
}
