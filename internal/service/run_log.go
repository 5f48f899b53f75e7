package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"variant-merger/internal/models"
	"variant-merger/internal/repository"
)

// RunLog appends operator-visible entries to the run state log and mirrors
// them to the process logger at the matching level.
type RunLog struct {
	state  repository.RunStateRepository
	logger *zap.Logger
}

// NewRunLog creates a run log writer
func NewRunLog(state repository.RunStateRepository, logger *zap.Logger) *RunLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunLog{state: state, logger: logger}
}

// Info appends an info entry
func (l *RunLog) Info(ctx context.Context, format string, args ...any) {
	l.append(ctx, models.SeverityInfo, fmt.Sprintf(format, args...))
}

// Error appends an error entry
func (l *RunLog) Error(ctx context.Context, format string, args ...any) {
	l.append(ctx, models.SeverityError, fmt.Sprintf(format, args...))
}

func (l *RunLog) append(ctx context.Context, severity models.LogSeverity, message string) {
	if severity == models.SeverityError {
		l.logger.Error(message)
	} else {
		l.logger.Info(message)
	}

	// The feed is best effort; a lost entry must not fail the run.
	if err := l.state.AppendLog(ctx, models.LogEntry{Message: message, Type: severity}); err != nil {
		l.logger.Warn("failed to append run log entry", zap.Error(err))
	}
}
