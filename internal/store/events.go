package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/menjava/internal/model"
)

// CreateEvent creates a new event with its geofence areas.
func CreateEvent(ctx context.Context, db *sql.DB, e *model.Event) (*model.Event, error) {
	if len(e.Areas) > model.MaxEventAreas {
		return nil, fmt.Errorf("at most %d areas allowed", model.MaxEventAreas)
	}

	id := uuid.NewString()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, name, artist_name, venue, event_date, is_active,
		                     registration_start, registration_end, trade_start, trade_end)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.Name, e.ArtistName, e.Venue, e.EventDate, boolToInt(e.Active),
		e.Registration.Start, e.Registration.End, e.Trade.Start, e.Trade.End,
	)
	if err != nil {
		return nil, fmt.Errorf("creating event: %w", err)
	}

	if err := writeAreas(ctx, tx, id, e.Areas); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing event: %w", err)
	}

	return GetEvent(ctx, db, id)
}

// UpdateEvent replaces an event's metadata, windows and areas.
func UpdateEvent(ctx context.Context, db *sql.DB, e *model.Event) error {
	if len(e.Areas) > model.MaxEventAreas {
		return fmt.Errorf("at most %d areas allowed", model.MaxEventAreas)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE events SET name = ?, artist_name = ?, venue = ?, event_date = ?, is_active = ?,
		        registration_start = ?, registration_end = ?, trade_start = ?, trade_end = ?
		 WHERE id = ?`,
		e.Name, e.ArtistName, e.Venue, e.EventDate, boolToInt(e.Active),
		e.Registration.Start, e.Registration.End, e.Trade.Start, e.Trade.End, e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_areas WHERE event_id = ?`, e.ID); err != nil {
		return fmt.Errorf("clearing event areas: %w", err)
	}
	if err := writeAreas(ctx, tx, e.ID, e.Areas); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing event update: %w", err)
	}
	return nil
}

func writeAreas(ctx context.Context, tx *sql.Tx, eventID string, areas []model.GeofenceArea) error {
	for i, a := range areas {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO event_areas (event_id, slot, latitude, longitude, radius_km) VALUES (?, ?, ?, ?, ?)`,
			eventID, i+1, a.Lat, a.Lng, a.RadiusKm,
		)
		if err != nil {
			return fmt.Errorf("storing event area %d: %w", i+1, err)
		}
	}
	return nil
}

const eventColumns = `id, name, artist_name, venue, event_date, is_active,
	registration_start, registration_end, trade_start, trade_end, created_at`

func scanEvent(row interface{ Scan(...any) error }, e *model.Event) error {
	var active int
	err := row.Scan(&e.ID, &e.Name, &e.ArtistName, &e.Venue, &e.EventDate, &active,
		&e.Registration.Start, &e.Registration.End, &e.Trade.Start, &e.Trade.End, &e.CreatedAt)
	e.Active = active != 0
	return err
}

// GetEvent returns an event by ID, including its areas.
func GetEvent(ctx context.Context, db *sql.DB, id string) (*model.Event, error) {
	e := &model.Event{}
	err := scanEvent(db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id), e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting event: %w", err)
	}

	areas, err := listAreas(ctx, db, id)
	if err != nil {
		return nil, err
	}
	e.Areas = areas
	return e, nil
}

// ListEvents returns events, newest event date first. If activeOnly is set,
// inactive events are omitted.
func ListEvents(ctx context.Context, db *sql.DB, activeOnly bool) ([]model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY event_date DESC, name`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range events {
		areas, err := listAreas(ctx, db, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Areas = areas
	}
	return events, nil
}

func listAreas(ctx context.Context, q querier, eventID string) ([]model.GeofenceArea, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT latitude, longitude, radius_km FROM event_areas WHERE event_id = ? ORDER BY slot`, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing event areas: %w", err)
	}
	defer rows.Close()

	areas := []model.GeofenceArea{}
	for rows.Next() {
		var a model.GeofenceArea
		if err := rows.Scan(&a.Lat, &a.Lng, &a.RadiusKm); err != nil {
			return nil, fmt.Errorf("scanning event area: %w", err)
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

// utc normalises a timestamp before it is stored.
func utc(t time.Time) time.Time {
	return t.UTC()
}
