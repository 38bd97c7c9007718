package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clubsync/internal/ics"
	"clubsync/internal/logging"
	"clubsync/internal/model"
)

const (
	// Expansion window around "now": recurring series are materialized
	// from lookbackYears in the past to lookforwardMonths in the future.
	lookbackYears     = 2
	lookforwardMonths = 3

	// keepWindow drops instances older than this before persistence.
	keepWindow = 7 * 24 * time.Hour

	// flushEvery is the progress-flush cadence during processing. Flushes
	// are also the points where an external cancel is observed.
	flushEvery = 10
)

// Syncer drives sync runs against the store ports.
type Syncer struct {
	events  EventStore
	configs ConfigStore
	fetcher FeedFetcher
	log     zerolog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// New builds a Syncer over the given ports.
func New(events EventStore, configs ConfigStore, fetcher FeedFetcher) *Syncer {
	return &Syncer{
		events:  events,
		configs: configs,
		fetcher: fetcher,
		log:     logging.Named("syncer"),
		now:     time.Now,
	}
}

// Result summarizes one terminated run.
type Result struct {
	SyncID     string             `json:"syncId"`
	RunID      string             `json:"runId"`
	Status     model.SyncStatus   `json:"status"`
	DurationMs int64              `json:"durationMs"`
	Progress   model.SyncProgress `json:"progress"`
	Error      string             `json:"error,omitempty"`
}

// Sync runs one full synchronization of the identified configuration:
// fetch, parse, expand, reconcile, cleanup. Exactly one run per
// configuration may be active; a second start fails fast with
// ErrSyncInProgress. A cancel issued while the run is in flight takes
// effect at the next progress flush and surfaces as ErrSyncCancelled.
func (s *Syncer) Sync(ctx context.Context, syncID string) (*Result, error) {
	cfg, err := s.configs.GetConfig(ctx, syncID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNotFound
	}
	if !cfg.Active {
		return nil, ErrInactive
	}

	run := model.SyncRun{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UnixMilli(),
		Progress: model.SyncProgress{
			Phase:   model.PhaseFetching,
			Message: "Starting sync...",
		},
	}

	ok, err := s.configs.TryMarkRunning(ctx, syncID, run)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSyncInProgress
	}

	hist := model.SyncHistoryEntry{
		ID:        uuid.NewString(),
		SyncID:    syncID,
		RunID:     run.RunID,
		StartedAt: run.StartedAt,
		Status:    model.StatusRunning,
		Progress:  run.Progress,
	}
	if err := s.configs.CreateHistory(ctx, hist); err != nil {
		s.log.Warn().Err(err).Str("sync_id", syncID).Msg("failed to open history entry")
	}

	log := s.log.With().Str("sync_id", syncID).Str("run_id", run.RunID).Logger()
	log.Info().Str("url", cfg.FeedURL).Msg("sync started")

	res, err := s.execute(ctx, log, cfg, run, &hist)
	if err != nil {
		return res, err
	}

	log.Info().
		Int("created", res.Progress.CreatedEvents).
		Int("updated", res.Progress.UpdatedEvents).
		Int("removed", res.Progress.RemovedEvents).
		Int64("duration_ms", res.DurationMs).
		Msg("sync completed")
	return res, nil
}

// execute runs the phases. Every terminal path goes through fail, cancelled
// or the success tail so the configuration and history always settle.
func (s *Syncer) execute(ctx context.Context, log zerolog.Logger, cfg *model.SyncConfiguration, run model.SyncRun, hist *model.SyncHistoryEntry) (*Result, error) {
	var meta model.RunMetadata

	// FETCH
	fetchStart := s.now()
	body, err := s.fetcher.Fetch(ctx, cfg.FeedURL)
	if err != nil {
		return s.fail(ctx, log, cfg, run, hist, meta, fmt.Errorf("fetch failed: %w", err))
	}
	meta.FetchMillis = s.now().Sub(fetchStart).Milliseconds()
	meta.FeedBytes = len(body)

	// PARSE + EXPAND
	run.Progress.Phase = model.PhaseParsing
	run.Progress.Message = "Parsing calendar data..."
	if kept, err := s.flush(ctx, cfg.ID, run); err != nil {
		return s.fail(ctx, log, cfg, run, hist, meta, err)
	} else if !kept {
		return s.cancelled(ctx, log, run, hist, meta)
	}

	parseStart := s.now()
	rawEvents := ics.Parse(string(body))

	now := s.now()
	from := now.AddDate(-lookbackYears, 0, 0)
	to := now.AddDate(0, lookforwardMonths, 0)
	instances := ics.ExpandEvents(rawEvents, from, to)

	cutoff := now.Add(-keepWindow)
	var relevant []ics.Instance
	for _, inst := range instances {
		if !inst.Start.Before(cutoff) {
			relevant = append(relevant, inst)
		}
	}
	meta.ParseMillis = s.now().Sub(parseStart).Milliseconds()

	// PROCESS
	run.Progress = model.SyncProgress{
		Phase:       model.PhaseProcessing,
		TotalEvents: len(relevant),
		Message:     fmt.Sprintf("Processing %d events...", len(relevant)),
	}
	if kept, err := s.flush(ctx, cfg.ID, run); err != nil {
		return s.fail(ctx, log, cfg, run, hist, meta, err)
	} else if !kept {
		return s.cancelled(ctx, log, run, hist, meta)
	}

	processStart := s.now()
	generation := now.UnixMilli()
	seen := make(map[string]bool, len(relevant))

	for i, inst := range relevant {
		seen[inst.ExternalID] = true

		if err := s.reconcile(ctx, cfg, inst, generation, &run.Progress); err != nil {
			log.Warn().Err(err).Str("external_id", inst.ExternalID).Msg("failed to process event instance")
			run.Progress.ErrorEvents++
		}
		run.Progress.ProcessedEvents = i + 1

		if (i+1)%flushEvery == 0 || i == len(relevant)-1 {
			run.Progress.Message = fmt.Sprintf("Processed %d/%d events...", i+1, len(relevant))
			if kept, err := s.flush(ctx, cfg.ID, run); err != nil {
				return s.fail(ctx, log, cfg, run, hist, meta, err)
			} else if !kept {
				return s.cancelled(ctx, log, run, hist, meta)
			}
		}
	}
	meta.ProcessMillis = s.now().Sub(processStart).Milliseconds()

	// CLEANUP
	run.Progress.Phase = model.PhaseCleanup
	run.Progress.Message = "Cleaning up orphaned events..."
	if kept, err := s.flush(ctx, cfg.ID, run); err != nil {
		return s.fail(ctx, log, cfg, run, hist, meta, err)
	} else if !kept {
		return s.cancelled(ctx, log, run, hist, meta)
	}

	cleanupStart := s.now()
	if err := s.removeOrphans(ctx, log, cfg, seen, now, &run); err != nil {
		return s.fail(ctx, log, cfg, run, hist, meta, fmt.Errorf("cleanup failed: %w", err))
	}
	meta.CleanupMillis = s.now().Sub(cleanupStart).Milliseconds()

	// COMPLETE
	completedAt := s.now()
	duration := completedAt.UnixMilli() - run.StartedAt
	run.Progress.Phase = model.PhaseCompleted
	run.Progress.Message = fmt.Sprintf("Sync completed successfully in %.1fs", float64(duration)/1000)

	stats := advance(cfg.Stats, duration, true)
	if err := s.configs.CompleteRun(ctx, cfg.ID, model.StatusSuccess, "", completedAt.UnixMilli(), stats); err != nil {
		log.Error().Err(err).Msg("failed to record sync completion")
	}
	s.closeHistory(ctx, log, hist, model.StatusSuccess, run.Progress, "", duration, meta)

	return &Result{
		SyncID:     cfg.ID,
		RunID:      run.RunID,
		Status:     model.StatusSuccess,
		DurationMs: duration,
		Progress:   run.Progress,
	}, nil
}

// reconcile writes one instance into the Event Store: create when new,
// update when drifted, otherwise refresh the generation stamp only.
func (s *Syncer) reconcile(ctx context.Context, cfg *model.SyncConfiguration, inst ics.Instance, generation int64, prog *model.SyncProgress) error {
	existing, err := s.events.FindByExternalID(ctx, cfg.ClubID, inst.ExternalID)
	if err != nil {
		return err
	}

	title := inst.Summary
	if title == "" {
		title = "Untitled Event"
	}
	fields := model.EventFields{
		Title:            title,
		Description:      inst.Description,
		ClubID:           cfg.ClubID,
		StartTime:        inst.Start.UnixMilli(),
		EndTime:          inst.End.UnixMilli(),
		Location:         inst.Location,
		Type:             "training",
		CalendarSource:   cfg.FeedURL,
		ExternalID:       inst.ExternalID,
		SyncID:           cfg.ID,
		SyncGeneration:   generation,
		RecurringEventID: inst.UID,
		InstanceDate:     inst.Start.UnixMilli(),
	}

	switch {
	case existing == nil:
		if _, err := s.events.CreateEvent(ctx, fields); err != nil {
			return err
		}
		prog.CreatedEvents++

	case drifted(existing.EventFields, fields):
		if err := s.events.UpdateEvent(ctx, existing.ID, fields); err != nil {
			return err
		}
		prog.UpdatedEvents++

	default:
		refreshed := existing.EventFields
		refreshed.SyncGeneration = generation
		if err := s.events.UpdateEvent(ctx, existing.ID, refreshed); err != nil {
			return err
		}
		prog.SkippedEvents++
	}
	return nil
}

// drifted reports whether the feed's view of an event differs from the
// persisted one in any user-visible field.
func drifted(have, want model.EventFields) bool {
	return have.Title != want.Title ||
		have.Description != want.Description ||
		have.StartTime != want.StartTime ||
		have.EndTime != want.EndTime ||
		have.Location != want.Location
}

// removeOrphans deletes events this configuration owns that no longer
// appear in the feed and start in the future. Past events stay as
// historical record. The last few removals are kept on the run snapshot
// for operator visibility.
func (s *Syncer) removeOrphans(ctx context.Context, log zerolog.Logger, cfg *model.SyncConfiguration, seen map[string]bool, now time.Time, run *model.SyncRun) error {
	owned, err := s.events.FindByOwningSync(ctx, cfg.ID)
	if err != nil {
		return err
	}

	nowMillis := now.UnixMilli()
	for _, ev := range owned {
		if ev.ExternalID == "" || seen[ev.ExternalID] || ev.StartTime < nowMillis {
			continue
		}

		if err := s.events.DeleteEvent(ctx, ev.ID); err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID).Msg("failed to remove orphaned event")
			run.Progress.ErrorEvents++
			continue
		}

		log.Info().Str("title", ev.Title).Str("external_id", ev.ExternalID).Msg("removed orphaned future event")
		run.Progress.RemovedEvents++
		if len(run.RemovedItems) < model.MaxRemovedItems {
			desc := fmt.Sprintf("%s (%s)", ev.Title, time.UnixMilli(ev.StartTime).UTC().Format("2006-01-02 15:04"))
			run.RemovedItems = append(run.RemovedItems, desc)
		}
	}
	return nil
}

// flush writes the current run snapshot. A false return means the
// configuration is no longer running: someone cancelled the run.
func (s *Syncer) flush(ctx context.Context, syncID string, run model.SyncRun) (bool, error) {
	return s.configs.WriteProgress(ctx, syncID, run)
}

// fail settles a run that hit a fatal error: status recorded, failure
// counted into the running totals, history closed.
func (s *Syncer) fail(ctx context.Context, log zerolog.Logger, cfg *model.SyncConfiguration, run model.SyncRun, hist *model.SyncHistoryEntry, meta model.RunMetadata, cause error) (*Result, error) {
	completedAt := s.now()
	duration := completedAt.UnixMilli() - run.StartedAt
	log.Error().Err(cause).Int64("duration_ms", duration).Msg("sync failed")

	run.Progress.Phase = model.PhaseCompleted
	run.Progress.Message = fmt.Sprintf("Sync failed: %s", cause.Error())

	stats := advance(cfg.Stats, duration, false)
	if err := s.configs.CompleteRun(ctx, cfg.ID, model.StatusError, cause.Error(), completedAt.UnixMilli(), stats); err != nil {
		log.Error().Err(err).Msg("failed to record sync failure")
	}
	s.closeHistory(ctx, log, hist, model.StatusError, run.Progress, cause.Error(), duration, meta)

	return &Result{
		SyncID:     cfg.ID,
		RunID:      run.RunID,
		Status:     model.StatusError,
		DurationMs: duration,
		Progress:   run.Progress,
		Error:      cause.Error(),
	}, cause
}

// cancelled settles a run whose configuration was cancelled externally.
// The configuration itself was already patched by CancelRun; running
// totals are left untouched.
func (s *Syncer) cancelled(ctx context.Context, log zerolog.Logger, run model.SyncRun, hist *model.SyncHistoryEntry, meta model.RunMetadata) (*Result, error) {
	duration := s.now().UnixMilli() - run.StartedAt
	log.Info().Int64("duration_ms", duration).Msg("sync cancelled")

	run.Progress.Message = "Sync cancelled"
	s.closeHistory(ctx, log, hist, model.StatusCancelled, run.Progress, "", duration, meta)

	return &Result{
		SyncID:     hist.SyncID,
		RunID:      run.RunID,
		Status:     model.StatusCancelled,
		DurationMs: duration,
		Progress:   run.Progress,
	}, ErrSyncCancelled
}

// closeHistory writes the terminal history fields; failures are logged,
// never propagated.
func (s *Syncer) closeHistory(ctx context.Context, log zerolog.Logger, hist *model.SyncHistoryEntry, status model.SyncStatus, prog model.SyncProgress, errMsg string, duration int64, meta model.RunMetadata) {
	hist.Status = status
	hist.Progress = prog
	hist.ErrorMessage = errMsg
	hist.CompletedAt = s.now().UnixMilli()
	hist.DurationMs = duration
	hist.Metadata = meta
	if err := s.configs.CompleteHistory(ctx, *hist); err != nil {
		log.Warn().Err(err).Msg("failed to close history entry")
	}
}

// advance folds one terminated run into the running totals. The rolling
// average only tracks successful runs' durations.
func advance(stats model.SyncStats, durationMs int64, success bool) model.SyncStats {
	stats.TotalRuns++
	if success {
		stats.SuccessfulRuns++
		if stats.AvgDurationMs == 0 {
			stats.AvgDurationMs = durationMs
		} else {
			n := int64(stats.TotalRuns)
			stats.AvgDurationMs = (stats.AvgDurationMs*(n-1) + durationMs) / n
		}
	} else {
		stats.FailedRuns++
	}
	return stats
}

// Cancel requests cancellation of an in-flight run. The orchestrator
// observes it at its next progress flush.
func (s *Syncer) Cancel(ctx context.Context, syncID string) error {
	cfg, err := s.configs.GetConfig(ctx, syncID)
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrNotFound
	}
	if cfg.LastSyncStatus != model.StatusRunning {
		return ErrNotRunning
	}
	return s.configs.CancelRun(ctx, syncID)
}

// SyncAll runs every active configuration sequentially. One failure never
// aborts the batch; each configuration gets its own result.
func (s *Syncer) SyncAll(ctx context.Context) ([]Result, error) {
	active, err := s.configs.ListActiveConfigs(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(active))
	for _, cfg := range active {
		res, err := s.Sync(ctx, cfg.ID)
		if err != nil && res == nil {
			res = &Result{SyncID: cfg.ID, Status: model.StatusError, Error: err.Error()}
		}
		results = append(results, *res)
	}
	return results, nil
}
