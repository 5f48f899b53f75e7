package service

import "errors"

var (
	// ErrNothingToQueue is returned by Start when no candidate group could be queued
	ErrNothingToQueue = errors.New("failed to queue products")
	// ErrAlreadyRunning is returned when an automatic sweep finds a run in progress
	ErrAlreadyRunning = errors.New("merge run already in progress")
	// ErrRunStopped is returned when an automatic sweep finds the run stopped by an operator
	ErrRunStopped = errors.New("merge run stopped by operator")
	// ErrUnknownCleanupType is returned for a cleanup type other than all, completed, failed or stuck
	ErrUnknownCleanupType = errors.New("unknown cleanup type")
)
