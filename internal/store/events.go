package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"clubsync/internal/model"
)

const eventColumns = `id, title, description, club_id, start_time, end_time,
	location, type, calendar_source, external_id, sync_id, sync_generation,
	recurring_event_id, instance_date, created_at, updated_at`

// CreateEvent inserts a new event and returns it with its generated ID.
func (s *Store) CreateEvent(ctx context.Context, fields model.EventFields) (model.Event, error) {
	now := s.now().UnixMilli()
	ev := model.Event{
		ID:          uuid.NewString(),
		EventFields: fields,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Title, ev.Description, ev.ClubID, ev.StartTime, ev.EndTime,
		ev.Location, ev.Type, ev.CalendarSource, ev.ExternalID, ev.SyncID,
		ev.SyncGeneration, ev.RecurringEventID, ev.InstanceDate,
		ev.CreatedAt, ev.UpdatedAt)
	if err != nil {
		return model.Event{}, fmt.Errorf("failed to insert event: %w", err)
	}
	return ev, nil
}

// UpdateEvent replaces an event's synced fields.
func (s *Store) UpdateEvent(ctx context.Context, id string, fields model.EventFields) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET
			title = ?, description = ?, club_id = ?, start_time = ?,
			end_time = ?, location = ?, type = ?, calendar_source = ?,
			external_id = ?, sync_id = ?, sync_generation = ?,
			recurring_event_id = ?, instance_date = ?, updated_at = ?
		WHERE id = ?`,
		fields.Title, fields.Description, fields.ClubID, fields.StartTime,
		fields.EndTime, fields.Location, fields.Type, fields.CalendarSource,
		fields.ExternalID, fields.SyncID, fields.SyncGeneration,
		fields.RecurringEventID, fields.InstanceDate, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no event with id %s", id)
	}
	return nil
}

// DeleteEvent removes an event by ID. Deleting a missing event is a no-op.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// FindByExternalID returns the club's event carrying the external
// identifier, or (nil, nil) when none exists.
func (s *Store) FindByExternalID(ctx context.Context, clubID, externalID string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE club_id = ? AND external_id = ?`, clubID, externalID)

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query event: %w", err)
	}
	return &ev, nil
}

// FindByOwningSync returns every event the configuration has written.
func (s *Store) FindByOwningSync(ctx context.Context, syncID string) ([]model.Event, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE sync_id = ? ORDER BY start_time`, syncID)
}

// ListByClub returns the club's events ordered by start time.
func (s *Store) ListByClub(ctx context.Context, clubID string) ([]model.Event, error) {
	return s.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE club_id = ? ORDER BY start_time`, clubID)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (model.Event, error) {
	var ev model.Event
	err := row.Scan(
		&ev.ID, &ev.Title, &ev.Description, &ev.ClubID, &ev.StartTime,
		&ev.EndTime, &ev.Location, &ev.Type, &ev.CalendarSource,
		&ev.ExternalID, &ev.SyncID, &ev.SyncGeneration,
		&ev.RecurringEventID, &ev.InstanceDate, &ev.CreatedAt, &ev.UpdatedAt)
	return ev, err
}
