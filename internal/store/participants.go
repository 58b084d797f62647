package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/menjava/internal/model"
)

// CreateParticipant creates a new anonymous participant.
func CreateParticipant(ctx context.Context, db *sql.DB, nickname string) (*model.Participant, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO participants (id, nickname) VALUES (?, ?)`, id, nickname)
	if err != nil {
		return nil, fmt.Errorf("creating participant: %w", err)
	}
	return GetParticipant(ctx, db, id)
}

const participantColumns = `id, event_id, nickname, latitude, longitude, is_active, last_active_at, created_at`

func scanParticipant(row interface{ Scan(...any) error }, p *model.Participant) error {
	var eventID sql.NullString
	var active int
	var lastActive int64
	err := row.Scan(&p.ID, &eventID, &p.Nickname, &p.Lat, &p.Lng, &active, &lastActive, &p.CreatedAt)
	p.EventID = eventID.String
	p.Active = active != 0
	if lastActive > 0 {
		p.LastActiveAt = time.Unix(lastActive, 0).UTC()
	}
	return err
}

// GetParticipant returns a participant by ID.
func GetParticipant(ctx context.Context, db *sql.DB, id string) (*model.Participant, error) {
	p := &model.Participant{}
	err := scanParticipant(db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE id = ?`, id), p)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting participant: %w", err)
	}
	return p, nil
}

// UpdateParticipantProfile sets the nickname and the event a participant
// trades at. Switching events drops the participant's trade groups, which
// belong to the previous event's catalog.
func UpdateParticipantProfile(ctx context.Context, db *sql.DB, id, nickname, eventID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT event_id FROM participants WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("participant not found")
	}
	if err != nil {
		return fmt.Errorf("checking participant: %w", err)
	}

	var event any
	if eventID != "" {
		event = eventID
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE participants SET nickname = ?, event_id = ? WHERE id = ?`, nickname, event, id)
	if err != nil {
		return fmt.Errorf("updating participant: %w", err)
	}

	if current.String != eventID {
		if err := deleteAllGroups(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE participants SET is_active = 0 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("resetting participant presence: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing participant update: %w", err)
	}
	return nil
}

// SetParticipantLocation records a position fix and the activity time.
func SetParticipantLocation(ctx context.Context, db *sql.DB, id string, lat, lng float64, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE participants SET latitude = ?, longitude = ?, last_active_at = ? WHERE id = ?`,
		lat, lng, at.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("setting participant location: %w", err)
	}
	return nil
}

// TouchParticipant records activity without changing the position.
func TouchParticipant(ctx context.Context, db *sql.DB, id string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE participants SET last_active_at = ? WHERE id = ?`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("touching participant: %w", err)
	}
	return nil
}

// SetParticipantActive flips the active flag only if it differs from the
// stored value. It reports whether a row was written.
func SetParticipantActive(ctx context.Context, db *sql.DB, id string, active bool) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE participants SET is_active = ? WHERE id = ? AND is_active <> ?`,
		boolToInt(active), id, boolToInt(active),
	)
	if err != nil {
		return false, fmt.Errorf("setting participant active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking participant update: %w", err)
	}
	return n > 0, nil
}

// ListActiveParticipants returns active participants of an event that were
// seen at or after since, in registration order.
func ListActiveParticipants(ctx context.Context, db *sql.DB, eventID string, since time.Time) ([]model.Participant, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+participantColumns+` FROM participants
		 WHERE event_id = ? AND is_active = 1 AND last_active_at >= ?
		 ORDER BY created_at, id`,
		eventID, since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing active participants: %w", err)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		var p model.Participant
		if err := scanParticipant(rows, &p); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeactivateIdleParticipants clears the active flag of participants not
// seen since cutoff and returns their ids.
func DeactivateIdleParticipants(ctx context.Context, db *sql.DB, cutoff time.Time) ([]string, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM participants WHERE is_active = 1 AND last_active_at < ?`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("finding idle participants: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning idle participant: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE participants SET is_active = 0 WHERE is_active = 1 AND last_active_at < ?`, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("deactivating idle participants: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing idle sweep: %w", err)
	}
	return ids, nil
}

// EraseParticipant deletes a participant together with their trade groups,
// every match they took part in and those matches' messages. It returns the
// open matches that disappeared, as they were before the erasure.
func EraseParticipant(ctx context.Context, db *sql.DB, id string) ([]model.Match, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+matchColumns+` FROM matches
		 WHERE (user1_id = ? OR user2_id = ?) AND status IN ('pending', 'accepted')
		 ORDER BY created_at DESC, rowid DESC`,
		id, id,
	)
	if err != nil {
		return nil, fmt.Errorf("finding open matches: %w", err)
	}
	var open []model.Match
	for rows.Next() {
		var m model.Match
		if err := scanMatch(rows, &m); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning open match: %w", err)
		}
		open = append(open, m)
	}
	rows.Close()

	for i := range open {
		groups, err := listMatchGroups(ctx, tx, open[i].ID)
		if err != nil {
			return nil, err
		}
		open[i].Groups = groups
	}

	stmts := []struct {
		query string
		what  string
	}{
		{`DELETE FROM matches WHERE user1_id = ? OR user2_id = ?`, "matches"},
		{`DELETE FROM trade_group_goods WHERE participant_id = ?`, "trade group goods"},
		{`DELETE FROM trade_groups WHERE participant_id = ?`, "trade groups"},
		{`DELETE FROM participants WHERE id = ?`, "participant"},
	}
	for _, s := range stmts {
		args := []any{id}
		if s.what == "matches" {
			args = append(args, id)
		}
		if _, err := tx.ExecContext(ctx, s.query, args...); err != nil {
			return nil, fmt.Errorf("erasing %s: %w", s.what, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing erasure: %w", err)
	}
	return open, nil
}
