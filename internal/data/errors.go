package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Task repository sentinels.
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskNotRunning = errors.New("task is not in a running state")
	ErrTaskNotPausable = errors.New(
		"task cannot be paused (must be in pending, scheduled, or running status)")
	ErrTaskNotPaused = errors.New("task is not paused")
	ErrTaskRunning   = errors.New("task is running and cannot be deleted")

	// Worker repository sentinels.
	ErrWorkerNotFound = errors.New("worker not found")
)
