package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"variant-merger/internal/models"
)

// DefaultLogCapacity is how many operator log entries are retained
const DefaultLogCapacity = 1000

const runStateID = 1

type runStateRow struct {
	Status      string `db:"status"`
	Processed   int64  `db:"processed"`
	Created     int64  `db:"created"`
	Failed      int64  `db:"failed"`
	SweepCursor string `db:"sweep_cursor"`
	SweepDone   bool   `db:"sweep_done"`
	UpdatedAt   int64  `db:"updated_at"`
}

type logRow struct {
	LoggedAt int64  `db:"logged_at"`
	Message  string `db:"message"`
	Severity string `db:"severity"`
}

// SQLiteRunState implements RunStateRepository using SQLite. There is a single state row;
// every mutation is one statement so concurrent ticks and API requests never interleave
// partially.
type SQLiteRunState struct {
	db          *sqlx.DB
	logCapacity int
	logger      *zap.Logger
	now         func() time.Time
}

// NewSQLiteRunState creates the run state store
func NewSQLiteRunState(db *sqlx.DB, logCapacity int, logger *zap.Logger) *SQLiteRunState {
	if logCapacity <= 0 {
		logCapacity = DefaultLogCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteRunState{db: db, logCapacity: logCapacity, logger: logger, now: time.Now}
}

// Get returns the current state
func (s *SQLiteRunState) Get(ctx context.Context) (models.RunState, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("status", "processed", "created", "failed", "sweep_cursor", "sweep_done", "updated_at")
	sb.From("run_state").Where(sb.Equal("id", runStateID))
	query, args := sb.Build()

	var row runStateRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return models.RunState{}, fmt.Errorf("failed to get run state: %w", err)
	}

	return models.RunState{
		Status: models.RunStatus(row.Status),
		Stats: models.RunStats{
			Processed: row.Processed,
			Created:   row.Created,
			Failed:    row.Failed,
		},
		SweepCursor: row.SweepCursor,
		SweepDone:   row.SweepDone,
		UpdatedAt:   time.UnixMilli(row.UpdatedAt),
	}, nil
}

// CompareAndSetStatus moves the status to `to` only if it is currently one of `from`.
// It reports whether the transition happened.
func (s *SQLiteRunState) CompareAndSetStatus(ctx context.Context, from []models.RunStatus, to models.RunStatus) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	expected := make([]interface{}, len(from))
	for i, status := range from {
		expected[i] = string(status)
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("run_state")
	ub.Set(ub.Assign("status", string(to)), ub.Assign("updated_at", s.now().UnixMilli()))
	ub.Where(ub.Equal("id", runStateID), ub.In("status", expected...))
	query, args := ub.Build()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update run status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update run status: %w", err)
	}
	if n == 1 {
		s.logger.Debug("run status changed", zap.String("to", string(to)))
	}
	return n == 1, nil
}

// AddStats atomically adds delta to the counters
func (s *SQLiteRunState) AddStats(ctx context.Context, delta models.RunStats) error {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("run_state")
	ub.Set(
		ub.Add("processed", delta.Processed),
		ub.Add("created", delta.Created),
		ub.Add("failed", delta.Failed),
		ub.Assign("updated_at", s.now().UnixMilli()),
	)
	ub.Where(ub.Equal("id", runStateID))
	query, args := ub.Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update run stats: %w", err)
	}
	return nil
}

// ResetStats zeroes the counters
func (s *SQLiteRunState) ResetStats(ctx context.Context) error {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("run_state")
	ub.Set(
		ub.Assign("processed", 0),
		ub.Assign("created", 0),
		ub.Assign("failed", 0),
		ub.Assign("updated_at", s.now().UnixMilli()),
	)
	ub.Where(ub.Equal("id", runStateID))
	query, args := ub.Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to reset run stats: %w", err)
	}
	return nil
}

// SetSweep records the catalog sweep position
func (s *SQLiteRunState) SetSweep(ctx context.Context, cursor string, done bool) error {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("run_state")
	ub.Set(
		ub.Assign("sweep_cursor", cursor),
		ub.Assign("sweep_done", done),
		ub.Assign("updated_at", s.now().UnixMilli()),
	)
	ub.Where(ub.Equal("id", runStateID))
	query, args := ub.Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update sweep: %w", err)
	}
	return nil
}

// AppendLog appends an entry and evicts the oldest entries beyond capacity
func (s *SQLiteRunState) AppendLog(ctx context.Context, entry models.LogEntry) error {
	if entry.Time.IsZero() {
		entry.Time = s.now()
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("run_logs")
	ib.Cols("logged_at", "message", "severity")
	ib.Values(entry.Time.UnixMilli(), entry.Message, string(entry.Type))
	query, args := ib.Build()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}

	lastID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}

	del := sqlbuilder.SQLite.NewDeleteBuilder()
	del.DeleteFrom("run_logs")
	del.Where(del.LessEqualThan("id", lastID-int64(s.logCapacity)))
	query, args = del.Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to trim log: %w", err)
	}
	return nil
}

// RecentLogs returns the newest limit entries in chronological order
func (s *SQLiteRunState) RecentLogs(ctx context.Context, limit int) ([]models.LogEntry, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("logged_at", "message", "severity").From("run_logs")
	sb.OrderBy("id DESC").Limit(limit)
	query, args := sb.Build()

	var rows []logRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}

	entries := make([]models.LogEntry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		entries = append(entries, models.LogEntry{
			Time:    time.UnixMilli(row.LoggedAt),
			Message: row.Message,
			Type:    models.LogSeverity(row.Severity),
		})
	}
	return entries, nil
}
