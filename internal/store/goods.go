package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/erazemk/menjava/internal/model"
)

// CreateGoods adds a catalog entry to an event.
func CreateGoods(ctx context.Context, db *sql.DB, eventID, name, category, description string) (*model.Goods, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO goods (id, event_id, name, category, description) VALUES (?, ?, ?, ?, ?)`,
		id, eventID, name, category, description,
	)
	if err != nil {
		return nil, fmt.Errorf("creating goods: %w", err)
	}
	return GetGoods(ctx, db, id)
}

const goodsColumns = `id, event_id, name, category, description, image_mime, status, created_at, updated_at`

func scanGoods(row interface{ Scan(...any) error }, g *model.Goods) error {
	var description, imageMime sql.NullString
	err := row.Scan(&g.ID, &g.EventID, &g.Name, &g.Category, &description, &imageMime,
		&g.Status, &g.CreatedAt, &g.UpdatedAt)
	g.Description = description.String
	g.ImageMime = imageMime.String
	return err
}

// GetGoods returns a catalog entry by ID.
func GetGoods(ctx context.Context, db *sql.DB, id string) (*model.Goods, error) {
	g := &model.Goods{}
	err := scanGoods(db.QueryRowContext(ctx, `SELECT `+goodsColumns+` FROM goods WHERE id = ?`, id), g)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting goods: %w", err)
	}
	return g, nil
}

// ListGoods returns an event's catalog, optionally filtered by status.
func ListGoods(ctx context.Context, db *sql.DB, eventID, status string) ([]model.Goods, error) {
	query := `SELECT ` + goodsColumns + ` FROM goods WHERE event_id = ?`
	args := []any{eventID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY category, name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing goods: %w", err)
	}
	defer rows.Close()

	var goods []model.Goods
	for rows.Next() {
		var g model.Goods
		if err := scanGoods(rows, &g); err != nil {
			return nil, fmt.Errorf("scanning goods: %w", err)
		}
		goods = append(goods, g)
	}
	return goods, rows.Err()
}

// UpdateGoods updates a catalog entry's metadata and status.
func UpdateGoods(ctx context.Context, db *sql.DB, id, name, category, description, status string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE goods SET name = ?, category = ?, description = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		name, category, description, status, id,
	)
	if err != nil {
		return fmt.Errorf("updating goods: %w", err)
	}
	return nil
}

// SetGoodsImage stores the display image of a catalog entry.
func SetGoodsImage(ctx context.Context, db *sql.DB, id string, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE goods SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		image, mime, id,
	)
	if err != nil {
		return fmt.Errorf("setting goods image: %w", err)
	}
	return nil
}

// GetGoodsImage returns a catalog entry's image data and MIME type.
func GetGoodsImage(ctx context.Context, db *sql.DB, id string) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx, `SELECT image, image_mime FROM goods WHERE id = ?`, id).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting goods image: %w", err)
	}
	return image, mime.String, nil
}

// GetGoodsNames resolves goods ids to display names. Unknown ids are absent
// from the result.
func GetGoodsNames(ctx context.Context, db *sql.DB, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, name FROM goods WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("getting goods names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning goods name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// ActiveGoodsIDs returns the set of active goods ids of an event.
func ActiveGoodsIDs(ctx context.Context, db *sql.DB, eventID string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id FROM goods WHERE event_id = ? AND status = ?`, eventID, model.GoodsStatusActive)
	if err != nil {
		return nil, fmt.Errorf("listing active goods: %w", err)
	}
	defer rows.Close()

	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning goods id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}
