package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/menjava/internal/model"
)

// CreateMessage appends a chat line to a match.
func CreateMessage(ctx context.Context, db *sql.DB, matchID, senderID, body string, at time.Time) (*model.MatchMessage, error) {
	msg := &model.MatchMessage{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: utc(at),
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO match_messages (id, match_id, sender_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.MatchID, msg.SenderID, msg.Body, msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}
	return msg, nil
}

// ListMessages returns a match's chat in the order it was written.
func ListMessages(ctx context.Context, db *sql.DB, matchID string) ([]model.MatchMessage, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, match_id, sender_id, body, created_at FROM match_messages
		 WHERE match_id = ? ORDER BY created_at, rowid`, matchID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	messages := []model.MatchMessage{}
	for rows.Next() {
		var m model.MatchMessage
		if err := rows.Scan(&m.ID, &m.MatchID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
