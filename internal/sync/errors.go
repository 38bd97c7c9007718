package sync

import "errors"

var (
	// ErrSyncInProgress is returned when a run is requested for a
	// configuration that already has one active.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSyncCancelled is returned when a run was cancelled while in flight.
	ErrSyncCancelled = errors.New("sync cancelled")

	// ErrNotFound is returned for an unknown configuration ID.
	ErrNotFound = errors.New("sync configuration not found")

	// ErrInactive is returned when a run is requested for a deactivated
	// configuration.
	ErrInactive = errors.New("sync configuration is not active")

	// ErrNotRunning is returned when a cancel is requested but no run is
	// active.
	ErrNotRunning = errors.New("no sync run in progress")
)
