package store

import (
	"context"
	"encoding/json"
	"fmt"

	"clubsync/internal/model"
)

// CreateHistory inserts the opening record of a run.
func (s *Store) CreateHistory(ctx context.Context, entry model.SyncHistoryEntry) error {
	progJSON, err := json.Marshal(entry.Progress)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_history (id, sync_id, run_id, started_at, status,
			progress_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.SyncID, entry.RunID, entry.StartedAt,
		string(entry.Status), string(progJSON))
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// CompleteHistory writes a run's terminal fields onto its history entry.
func (s *Store) CompleteHistory(ctx context.Context, entry model.SyncHistoryEntry) error {
	progJSON, err := json.Marshal(entry.Progress)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE sync_history SET status = ?, completed_at = ?,
			progress_json = ?, error_message = ?, duration_ms = ?,
			metadata_json = ?
		WHERE id = ?`,
		string(entry.Status), entry.CompletedAt, string(progJSON),
		entry.ErrorMessage, entry.DurationMs, string(metaJSON), entry.ID)
	if err != nil {
		return fmt.Errorf("failed to update history entry: %w", err)
	}
	return nil
}

// ListHistory returns a configuration's most recent runs, newest first.
func (s *Store) ListHistory(ctx context.Context, syncID string, limit int) ([]model.SyncHistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sync_id, run_id, started_at, completed_at, status,
			progress_json, error_message, duration_ms, metadata_json
		FROM sync_history
		WHERE sync_id = ? ORDER BY started_at DESC LIMIT ?`, syncID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []model.SyncHistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// RecentActivity returns the newest runs across all configurations,
// enriched with configuration name and owning club.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.sync_id, h.run_id, h.started_at, h.completed_at,
			h.status, h.progress_json, h.error_message, h.duration_ms,
			h.metadata_json, c.name, c.club_id
		FROM sync_history h
		JOIN sync_configs c ON c.id = h.sync_id
		ORDER BY h.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var out []model.ActivityEntry
	for rows.Next() {
		var act model.ActivityEntry
		var status string
		var progJSON, metaJSON string

		err := rows.Scan(&act.ID, &act.SyncID, &act.RunID, &act.StartedAt,
			&act.CompletedAt, &status, &progJSON, &act.ErrorMessage,
			&act.DurationMs, &metaJSON, &act.CalendarName, &act.ClubID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}

		act.Status = model.SyncStatus(status)
		if err := json.Unmarshal([]byte(progJSON), &act.Progress); err != nil {
			return nil, fmt.Errorf("corrupt progress snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &act.Metadata); err != nil {
			return nil, fmt.Errorf("corrupt run metadata: %w", err)
		}
		out = append(out, act)
	}
	return out, rows.Err()
}

// StatsSummary aggregates statistics across configurations, scoped to a
// club when clubID is non-empty. The average duration averages each
// configuration's own rolling average, skipping those that never ran.
func (s *Store) StatsSummary(ctx context.Context, clubID string) (model.StatsSummary, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(is_active), 0),
			COALESCE(SUM(total_syncs), 0),
			COALESCE(SUM(successful_syncs), 0),
			COALESCE(SUM(failed_syncs), 0),
			COALESCE(SUM(last_sync_status = 'running'), 0),
			COALESCE(AVG(CASE WHEN avg_sync_duration_ms > 0
				THEN avg_sync_duration_ms END), 0)
		FROM sync_configs`
	args := []any{}
	if clubID != "" {
		query += ` WHERE club_id = ?`
		args = append(args, clubID)
	}

	var sum model.StatsSummary
	var avg float64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&sum.TotalCalendars, &sum.ActiveCalendars, &sum.TotalRuns,
		&sum.SuccessfulRuns, &sum.FailedRuns, &sum.CurrentlyRunning, &avg)
	if err != nil {
		return model.StatsSummary{}, fmt.Errorf("failed to aggregate stats: %w", err)
	}

	sum.AvgDurationMs = int64(avg + 0.5)
	if sum.TotalRuns > 0 {
		sum.SuccessRate = int(float64(sum.SuccessfulRuns)/float64(sum.TotalRuns)*100 + 0.5)
	}
	return sum, nil
}

func scanHistory(row rowScanner) (model.SyncHistoryEntry, error) {
	var entry model.SyncHistoryEntry
	var status string
	var progJSON, metaJSON string

	err := row.Scan(&entry.ID, &entry.SyncID, &entry.RunID, &entry.StartedAt,
		&entry.CompletedAt, &status, &progJSON, &entry.ErrorMessage,
		&entry.DurationMs, &metaJSON)
	if err != nil {
		return model.SyncHistoryEntry{}, fmt.Errorf("failed to scan history entry: %w", err)
	}

	entry.Status = model.SyncStatus(status)
	if err := json.Unmarshal([]byte(progJSON), &entry.Progress); err != nil {
		return model.SyncHistoryEntry{}, fmt.Errorf("corrupt progress snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &entry.Metadata); err != nil {
		return model.SyncHistoryEntry{}, fmt.Errorf("corrupt run metadata: %w", err)
	}
	return entry, nil
}
