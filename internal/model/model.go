// Package model holds the persistent and transient data types shared by the
// sync engine, the stores and the HTTP API. All instants are epoch
// milliseconds in UTC, matching what the stores persist.
package model

// SyncStatus is the lifecycle status of a sync configuration's last run.
type SyncStatus string

const (
	StatusIdle      SyncStatus = "idle"
	StatusRunning   SyncStatus = "running"
	StatusSuccess   SyncStatus = "success"
	StatusError     SyncStatus = "error"
	StatusCancelled SyncStatus = "cancelled"
)

// Phase identifies the orchestrator phase a run is currently in.
type Phase string

const (
	PhaseFetching   Phase = "fetching"
	PhaseParsing    Phase = "parsing"
	PhaseProcessing Phase = "processing"
	PhaseCleanup    Phase = "cleanup"
	PhaseCompleted  Phase = "completed"
)

// SyncProgress is the live counter snapshot for a run. It is embedded in the
// configuration while a run is active and frozen into the history entry when
// the run terminates.
type SyncProgress struct {
	Phase           Phase  `json:"phase"`
	TotalEvents     int    `json:"totalEvents"`
	ProcessedEvents int    `json:"processedEvents"`
	CreatedEvents   int    `json:"createdEvents"`
	UpdatedEvents   int    `json:"updatedEvents"`
	SkippedEvents   int    `json:"skippedEvents"`
	ErrorEvents     int    `json:"errorEvents"`
	RemovedEvents   int    `json:"removedEvents"`
	Message         string `json:"message,omitempty"`
}

// MaxRemovedItems bounds the removed-item descriptions kept on a run
// snapshot for operator visibility.
const MaxRemovedItems = 10

// SyncRun is the transient state of an in-flight run. It exists only while
// the configuration's status is "running" and is cleared on completion or
// cancellation.
type SyncRun struct {
	RunID        string       `json:"runId"`
	StartedAt    int64        `json:"startedAt"`
	Progress     SyncProgress `json:"progress"`
	RemovedItems []string     `json:"removedItems,omitempty"`
}

// SyncStats are the running totals accumulated across completed runs.
type SyncStats struct {
	TotalRuns      int   `json:"totalSyncs"`
	SuccessfulRuns int   `json:"successfulSyncs"`
	FailedRuns     int   `json:"failedSyncs"`
	AvgDurationMs  int64 `json:"avgSyncDurationMs"`
}

// SuccessRate returns the percentage of successful runs, 0 when no run has
// completed yet.
func (s SyncStats) SuccessRate() int {
	if s.TotalRuns == 0 {
		return 0
	}
	return int(float64(s.SuccessfulRuns)/float64(s.TotalRuns)*100 + 0.5)
}

// SyncConfiguration identifies one external feed for an owning club.
type SyncConfiguration struct {
	ID        string `json:"id"`
	ClubID    string `json:"clubId"`
	Name      string `json:"name"`
	FeedURL   string `json:"icsUrl"`
	Active    bool   `json:"isActive"`
	CreatedBy string `json:"createdBy"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`

	LastSyncAt     int64      `json:"lastSyncAt,omitempty"`
	LastSyncStatus SyncStatus `json:"lastSyncStatus"`
	LastSyncError  string     `json:"lastSyncError,omitempty"`

	// Run is the transient in-flight snapshot, nil when no run is active.
	Run *SyncRun `json:"run,omitempty"`

	Stats SyncStats `json:"stats"`
}

// ConfigUpdate carries the administratively editable fields. Nil pointers
// leave the current value untouched.
type ConfigUpdate struct {
	Name    *string `json:"name,omitempty"`
	FeedURL *string `json:"icsUrl,omitempty"`
	Active  *bool   `json:"isActive,omitempty"`
}

// RunMetadata records feed size and per-phase timings for a completed run.
type RunMetadata struct {
	FeedBytes     int   `json:"icsFileSize"`
	FetchMillis   int64 `json:"fetchTime"`
	ParseMillis   int64 `json:"parseTime"`
	ProcessMillis int64 `json:"processTime"`
	CleanupMillis int64 `json:"cleanupTime"`
}

// SyncHistoryEntry is the append-only audit record of one run. It is
// created when the run starts and never mutated after its terminal update.
type SyncHistoryEntry struct {
	ID           string       `json:"id"`
	SyncID       string       `json:"calendarSyncId"`
	RunID        string       `json:"runId"`
	StartedAt    int64        `json:"syncStartedAt"`
	CompletedAt  int64        `json:"syncCompletedAt,omitempty"`
	Status       SyncStatus   `json:"status"`
	Progress     SyncProgress `json:"progress"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	DurationMs   int64        `json:"durationMs,omitempty"`
	Metadata     RunMetadata  `json:"metadata"`
}

// ActivityEntry is a history entry enriched with its configuration's name
// and owning club, for the cross-club recent-activity view.
type ActivityEntry struct {
	SyncHistoryEntry
	CalendarName string `json:"calendarName"`
	ClubID       string `json:"clubId"`
}

// StatsSummary aggregates sync statistics across configurations, either for
// one club or globally.
type StatsSummary struct {
	TotalCalendars   int   `json:"totalCalendars"`
	ActiveCalendars  int   `json:"activeCalendars"`
	TotalRuns        int   `json:"totalSyncs"`
	SuccessfulRuns   int   `json:"successfulSyncs"`
	FailedRuns       int   `json:"failedSyncs"`
	CurrentlyRunning int   `json:"currentlyRunning"`
	SuccessRate      int   `json:"successRate"`
	AvgDurationMs    int64 `json:"avgSyncDurationMs"`
}

// EventFields is the engine's write surface into the Event Store.
type EventFields struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	ClubID           string `json:"clubId"`
	StartTime        int64  `json:"startTime"`
	EndTime          int64  `json:"endTime"`
	Location         string `json:"location,omitempty"`
	Type             string `json:"type"`
	CalendarSource   string `json:"calendarSource,omitempty"`
	ExternalID       string `json:"externalId,omitempty"`
	SyncID           string `json:"calendarSyncId,omitempty"`
	SyncGeneration   int64  `json:"syncGeneration,omitempty"`
	RecurringEventID string `json:"recurringEventId,omitempty"`
	InstanceDate     int64  `json:"instanceDate,omitempty"`
}

// Event is the canonical persisted calendar entry owned by the Event Store.
type Event struct {
	ID string `json:"id"`
	EventFields
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}
