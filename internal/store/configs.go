package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"clubsync/internal/model"
	"clubsync/internal/sync"
)

var (
	_ sync.EventStore  = (*Store)(nil)
	_ sync.ConfigStore = (*Store)(nil)
)

const configColumns = `id, club_id, name, ics_url, is_active, created_by,
	created_at, updated_at, last_sync_at, last_sync_status, last_sync_error,
	run_json, total_syncs, successful_syncs, failed_syncs,
	avg_sync_duration_ms`

// CreateConfig inserts a new sync configuration.
func (s *Store) CreateConfig(ctx context.Context, cfg model.SyncConfiguration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_configs (id, club_id, name, ics_url, is_active,
			created_by, created_at, updated_at, last_sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.ClubID, cfg.Name, cfg.FeedURL, cfg.Active,
		cfg.CreatedBy, cfg.CreatedAt, cfg.UpdatedAt, string(model.StatusIdle))
	if err != nil {
		return fmt.Errorf("failed to insert sync config: %w", err)
	}
	return nil
}

// GetConfig returns a configuration by ID, or (nil, nil) when unknown.
func (s *Store) GetConfig(ctx context.Context, id string) (*model.SyncConfiguration, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+configColumns+` FROM sync_configs WHERE id = ?`, id)

	cfg, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync config: %w", err)
	}
	return &cfg, nil
}

// ListConfigs returns a club's configurations.
func (s *Store) ListConfigs(ctx context.Context, clubID string) ([]model.SyncConfiguration, error) {
	return s.queryConfigs(ctx, `
		SELECT `+configColumns+` FROM sync_configs
		WHERE club_id = ? ORDER BY created_at`, clubID)
}

// ListActiveConfigs returns every active configuration.
func (s *Store) ListActiveConfigs(ctx context.Context) ([]model.SyncConfiguration, error) {
	return s.queryConfigs(ctx, `
		SELECT `+configColumns+` FROM sync_configs
		WHERE is_active = 1 ORDER BY created_at`)
}

// ListRunning returns configurations with an active run.
func (s *Store) ListRunning(ctx context.Context) ([]model.SyncConfiguration, error) {
	return s.queryConfigs(ctx, `
		SELECT `+configColumns+` FROM sync_configs
		WHERE last_sync_status = ? ORDER BY created_at`, string(model.StatusRunning))
}

// UpdateConfig applies the editable fields and returns the updated
// configuration.
func (s *Store) UpdateConfig(ctx context.Context, id string, upd model.ConfigUpdate) (*model.SyncConfiguration, error) {
	cfg, err := s.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, sync.ErrNotFound
	}

	if upd.Name != nil {
		cfg.Name = *upd.Name
	}
	if upd.FeedURL != nil {
		cfg.FeedURL = *upd.FeedURL
	}
	if upd.Active != nil {
		cfg.Active = *upd.Active
	}
	cfg.UpdatedAt = s.now().UnixMilli()

	_, err = s.db.ExecContext(ctx, `
		UPDATE sync_configs SET name = ?, ics_url = ?, is_active = ?,
			updated_at = ? WHERE id = ?`,
		cfg.Name, cfg.FeedURL, cfg.Active, cfg.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update sync config: %w", err)
	}
	return cfg, nil
}

// DeleteConfig removes a configuration, its history and its synced events.
func (s *Store) DeleteConfig(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE sync_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete synced events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_history WHERE sync_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete sync history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_configs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete sync config: %w", err)
	}
	return tx.Commit()
}

// TryMarkRunning atomically claims a configuration for a new run. The WHERE
// clause is the exclusivity guard: it loses gracefully when another run
// already holds the row.
func (s *Store) TryMarkRunning(ctx context.Context, id string, run model.SyncRun) (bool, error) {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return false, fmt.Errorf("failed to encode run: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_configs SET last_sync_status = ?, last_sync_error = '',
			run_json = ?, updated_at = ?
		WHERE id = ? AND last_sync_status != ?`,
		string(model.StatusRunning), string(runJSON), s.now().UnixMilli(),
		id, string(model.StatusRunning))
	if err != nil {
		return false, fmt.Errorf("failed to mark running: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	cfg, err := s.GetConfig(ctx, id)
	if err != nil {
		return false, err
	}
	if cfg == nil {
		return false, sync.ErrNotFound
	}
	return false, nil
}

// WriteProgress replaces the run snapshot while the configuration is still
// running. A false return means the run was cancelled externally.
func (s *Store) WriteProgress(ctx context.Context, id string, run model.SyncRun) (bool, error) {
	runJSON, err := json.Marshal(run)
	if err != nil {
		return false, fmt.Errorf("failed to encode run: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_configs SET run_json = ?
		WHERE id = ? AND last_sync_status = ?`,
		string(runJSON), id, string(model.StatusRunning))
	if err != nil {
		return false, fmt.Errorf("failed to write progress: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CancelRun flips a running configuration to cancelled and clears the run
// snapshot.
func (s *Store) CancelRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_configs SET last_sync_status = ?, run_json = NULL,
			last_sync_at = ?, updated_at = ?
		WHERE id = ? AND last_sync_status = ?`,
		string(model.StatusCancelled), s.now().UnixMilli(), s.now().UnixMilli(),
		id, string(model.StatusRunning))
	if err != nil {
		return fmt.Errorf("failed to cancel run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sync.ErrNotRunning
	}
	return nil
}

// CompleteRun records a run's terminal status and running totals and clears
// the transient snapshot.
func (s *Store) CompleteRun(ctx context.Context, id string, status model.SyncStatus, errMsg string, completedAt int64, stats model.SyncStats) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_configs SET last_sync_status = ?, last_sync_error = ?,
			last_sync_at = ?, run_json = NULL, total_syncs = ?,
			successful_syncs = ?, failed_syncs = ?, avg_sync_duration_ms = ?,
			updated_at = ?
		WHERE id = ?`,
		string(status), errMsg, completedAt, stats.TotalRuns,
		stats.SuccessfulRuns, stats.FailedRuns, stats.AvgDurationMs,
		s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

func (s *Store) queryConfigs(ctx context.Context, query string, args ...any) ([]model.SyncConfiguration, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync configs: %w", err)
	}
	defer rows.Close()

	var out []model.SyncConfiguration
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func scanConfig(row rowScanner) (model.SyncConfiguration, error) {
	var cfg model.SyncConfiguration
	var status string
	var runJSON sql.NullString

	err := row.Scan(
		&cfg.ID, &cfg.ClubID, &cfg.Name, &cfg.FeedURL, &cfg.Active,
		&cfg.CreatedBy, &cfg.CreatedAt, &cfg.UpdatedAt, &cfg.LastSyncAt,
		&status, &cfg.LastSyncError, &runJSON, &cfg.Stats.TotalRuns,
		&cfg.Stats.SuccessfulRuns, &cfg.Stats.FailedRuns,
		&cfg.Stats.AvgDurationMs)
	if err != nil {
		return model.SyncConfiguration{}, err
	}

	cfg.LastSyncStatus = model.SyncStatus(status)
	if runJSON.Valid && runJSON.String != "" {
		var run model.SyncRun
		if err := json.Unmarshal([]byte(runJSON.String), &run); err != nil {
			return model.SyncConfiguration{}, fmt.Errorf("corrupt run snapshot: %w", err)
		}
		cfg.Run = &run
	}
	return cfg, nil
}
