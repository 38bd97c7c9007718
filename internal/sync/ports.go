// Package sync implements the synchronization orchestrator: it drives one
// feed through the fetch, parse, process and cleanup phases, reconciling
// expanded event instances against the Event Store and reporting progress
// through the Sync Configuration Store.
package sync

import (
	"context"

	"clubsync/internal/model"
)

// EventStore is the engine's port onto persisted calendar events.
type EventStore interface {
	CreateEvent(ctx context.Context, fields model.EventFields) (model.Event, error)
	UpdateEvent(ctx context.Context, id string, fields model.EventFields) error
	DeleteEvent(ctx context.Context, id string) error

	// FindByExternalID returns the club's event carrying the external
	// identifier, or (nil, nil) when no such event exists.
	FindByExternalID(ctx context.Context, clubID, externalID string) (*model.Event, error)

	// FindByOwningSync returns every event a configuration has ever
	// written, past and future.
	FindByOwningSync(ctx context.Context, syncID string) ([]model.Event, error)

	ListByClub(ctx context.Context, clubID string) ([]model.Event, error)
}

// ConfigStore is the engine's port onto sync configurations, their
// transient run state and their append-only history.
type ConfigStore interface {
	GetConfig(ctx context.Context, id string) (*model.SyncConfiguration, error)
	ListConfigs(ctx context.Context, clubID string) ([]model.SyncConfiguration, error)
	ListActiveConfigs(ctx context.Context) ([]model.SyncConfiguration, error)
	ListRunning(ctx context.Context) ([]model.SyncConfiguration, error)
	CreateConfig(ctx context.Context, cfg model.SyncConfiguration) error
	UpdateConfig(ctx context.Context, id string, upd model.ConfigUpdate) (*model.SyncConfiguration, error)
	DeleteConfig(ctx context.Context, id string) error

	// TryMarkRunning atomically flips the configuration into the running
	// state and attaches the run snapshot. It reports false, without
	// error, when another run already holds the configuration.
	TryMarkRunning(ctx context.Context, id string, run model.SyncRun) (bool, error)

	// WriteProgress replaces the run snapshot of an in-flight run. It
	// reports false when the configuration is no longer running, which is
	// how an external cancel reaches the orchestrator.
	WriteProgress(ctx context.Context, id string, run model.SyncRun) (bool, error)

	// CancelRun marks a running configuration cancelled and clears its
	// run snapshot. The in-flight orchestrator notices at its next
	// progress flush.
	CancelRun(ctx context.Context, id string) error

	// CompleteRun records the terminal status of a run: last-sync fields,
	// updated running totals, run snapshot cleared.
	CompleteRun(ctx context.Context, id string, status model.SyncStatus, errMsg string, completedAt int64, stats model.SyncStats) error

	CreateHistory(ctx context.Context, entry model.SyncHistoryEntry) error

	// CompleteHistory writes the terminal fields of an existing history
	// entry. History is append-only; entries are never touched again
	// after this.
	CompleteHistory(ctx context.Context, entry model.SyncHistoryEntry) error

	ListHistory(ctx context.Context, syncID string, limit int) ([]model.SyncHistoryEntry, error)
	RecentActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error)
	StatsSummary(ctx context.Context, clubID string) (model.StatsSummary, error)
}

// FeedFetcher retrieves raw ICS text from a feed URL.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
