package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/menjava/internal/matching"
	"github.com/erazemk/menjava/internal/model"
)

// CreateMatch stores a new pending match together with its group pairs.
// It returns ErrOpenMatchExists if the two participants already share a
// pending or accepted match.
func CreateMatch(ctx context.Context, db *sql.DB, m *model.Match) (*model.Match, error) {
	id := uuid.NewString()
	at := utc(m.CreatedAt)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var open int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM matches
		 WHERE ((user1_id = ? AND user2_id = ?) OR (user1_id = ? AND user2_id = ?))
		   AND status IN ('pending', 'accepted')`,
		m.RequesterID, m.RecipientID, m.RecipientID, m.RequesterID,
	).Scan(&open)
	if err != nil {
		return nil, fmt.Errorf("checking open matches: %w", err)
	}
	if open > 0 {
		return nil, ErrOpenMatchExists
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO matches (id, event_id, user1_id, user2_id, status, color_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, m.EventID, m.RequesterID, m.RecipientID, model.MatchStatusPending, m.ColorCode, at, at,
	)
	if isUniqueViolation(err) {
		return nil, ErrOpenMatchExists
	}
	if err != nil {
		return nil, fmt.Errorf("creating match: %w", err)
	}

	for _, g := range m.Groups {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO match_groups (match_id, requester_group, recipient_group) VALUES (?, ?, ?)`,
			id, g.RequesterGroup, g.RecipientGroup,
		)
		if err != nil {
			return nil, fmt.Errorf("storing match group: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrOpenMatchExists
		}
		return nil, fmt.Errorf("committing match: %w", err)
	}

	return GetMatch(ctx, db, id)
}

const matchColumns = `id, event_id, user1_id, user2_id, status, color_code,
	created_at, updated_at, completed_at, reconciled_at`

func scanMatch(row interface{ Scan(...any) error }, m *model.Match) error {
	var color sql.NullString
	err := row.Scan(&m.ID, &m.EventID, &m.RequesterID, &m.RecipientID, &m.Status, &color,
		&m.CreatedAt, &m.UpdatedAt, &m.CompletedAt, &m.ReconciledAt)
	m.ColorCode = color.String
	return err
}

// GetMatch returns a match by ID with its group pairs.
func GetMatch(ctx context.Context, db *sql.DB, id string) (*model.Match, error) {
	return getMatch(ctx, db, id)
}

func getMatch(ctx context.Context, q querier, id string) (*model.Match, error) {
	m := &model.Match{}
	err := scanMatch(q.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id), m)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting match: %w", err)
	}

	groups, err := listMatchGroups(ctx, q, id)
	if err != nil {
		return nil, err
	}
	m.Groups = groups
	return m, nil
}

func listMatchGroups(ctx context.Context, q querier, matchID string) ([]model.MatchGroup, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT requester_group, recipient_group FROM match_groups
		 WHERE match_id = ? ORDER BY requester_group, recipient_group`, matchID)
	if err != nil {
		return nil, fmt.Errorf("listing match groups: %w", err)
	}
	defer rows.Close()

	groups := []model.MatchGroup{}
	for rows.Next() {
		var g model.MatchGroup
		if err := rows.Scan(&g.RequesterGroup, &g.RecipientGroup); err != nil {
			return nil, fmt.Errorf("scanning match group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListMatches returns the matches a participant is part of, newest first.
// An empty status lists all of them.
func ListMatches(ctx context.Context, db *sql.DB, participantID, status string) ([]model.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE (user1_id = ? OR user2_id = ?)`
	args := []any{participantID, participantID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var m model.Match
		if err := scanMatch(rows, &m); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range matches {
		groups, err := listMatchGroups(ctx, db, matches[i].ID)
		if err != nil {
			return nil, err
		}
		matches[i].Groups = groups
	}
	return matches, nil
}

// OpenCounterparties returns the ids of everyone the participant shares a
// pending or accepted match with.
func OpenCounterparties(ctx context.Context, db *sql.DB, participantID string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT CASE WHEN user1_id = ? THEN user2_id ELSE user1_id END
		 FROM matches
		 WHERE (user1_id = ? OR user2_id = ?) AND status IN ('pending', 'accepted')`,
		participantID, participantID, participantID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing open counterparties: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning counterparty: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// TransitionMatch moves a match to status to, but only if its current
// status is one of from. It reports whether the row changed.
func TransitionMatch(ctx context.Context, db *sql.DB, id string, from []string, to string, at time.Time) (bool, error) {
	return transition(ctx, db, id, from, to, utc(at))
}

func transition(ctx context.Context, q querier, id string, from []string, to string, at time.Time) (bool, error) {
	args := []any{to, at}
	set := `status = ?, updated_at = ?`
	if to == model.MatchStatusCompleted {
		set += `, completed_at = ?`
		args = append(args, at)
	}
	args = append(args, id)
	for _, s := range from {
		args = append(args, s)
	}

	res, err := q.ExecContext(ctx,
		`UPDATE matches SET `+set+` WHERE id = ? AND status IN (`+placeholders(len(from))+`)`, args...)
	if err != nil {
		return false, fmt.Errorf("updating match status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking match update: %w", err)
	}
	return n > 0, nil
}

// CompleteMatch marks a match completed and applies the trade to both
// parties' groups in the same transaction. If the match was not in one of
// the from statuses nothing changes and ok is false.
func CompleteMatch(ctx context.Context, db *sql.DB, id string, from []string, at time.Time, confirmations []matching.Confirmation) (plan *matching.Plan, ok bool, err error) {
	at = utc(at)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	changed, err := transition(ctx, tx, id, from, model.MatchStatusCompleted, at)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return nil, false, nil
	}

	m, err := getMatch(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	if m == nil {
		return nil, false, fmt.Errorf("match %s vanished during completion", id)
	}
	if m.ReconciledAt != nil {
		return nil, false, nil
	}

	groups, err := listGroups(ctx, tx, []string{m.RequesterID, m.RecipientID})
	if err != nil {
		return nil, false, err
	}

	p := matching.PlanReconciliation(groups[m.RequesterID], groups[m.RecipientID], m.Groups, confirmations)
	for _, c := range p.Requester {
		if _, err := applyGroupChange(ctx, tx, m.RequesterID, c); err != nil {
			return nil, false, err
		}
	}
	for _, c := range p.Recipient {
		if _, err := applyGroupChange(ctx, tx, m.RecipientID, c); err != nil {
			return nil, false, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE matches SET reconciled_at = ? WHERE id = ?`, at, id); err != nil {
		return nil, false, fmt.Errorf("marking match reconciled: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing match completion: %w", err)
	}
	return &p, true, nil
}
