package models

import "time"

// JobStatus represents the state of a queue job
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// DefaultMaxAttempts bounds how many times a job is claimed before it is terminally failed
const DefaultMaxAttempts = 3

// QueueJob represents a pending merge of one candidate group
type QueueJob struct {
	ID           string     `json:"id"`
	ItemIDs      []string   `json:"item_ids"`
	GroupKey     string     `json:"group_key"`
	Status       JobStatus  `json:"status"`
	Priority     int        `json:"priority"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// AttemptsLeft reports whether a failed attempt should return the job to pending
func (j *QueueJob) AttemptsLeft() bool {
	return j.Attempts < j.MaxAttempts
}

// QueueCounts holds job counts by status
type QueueCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Active is the number of jobs not yet terminal
func (c QueueCounts) Active() int {
	return c.Pending + c.Processing
}

// CleanupType selects which queue jobs a manual cleanup removes
type CleanupType string

const (
	CleanupAll       CleanupType = "all"
	CleanupCompleted CleanupType = "completed"
	CleanupFailed    CleanupType = "failed"
	CleanupStuck     CleanupType = "stuck"
)
