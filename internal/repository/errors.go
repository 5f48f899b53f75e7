package repository

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrJobNotFound is returned when a job does not exist or is not in the expected state
	ErrJobNotFound = errors.New("queue job not found")
	// ErrEmptyGroup is returned when enqueueing a group without item ids
	ErrEmptyGroup = errors.New("cannot enqueue an empty group")
)

// QueueError is a storage-level failure of a queue operation
type QueueError struct {
	Op    string
	JobID string
	Err   error
}

func (e *QueueError) Error() string {
	if e.JobID == "" {
		return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("queue %s job_id=%s: %v", e.Op, e.JobID, e.Err)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

// TimeoutError describes a job that stayed in processing past the stuck threshold
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Processing timed out after %s", e.Limit)
}
