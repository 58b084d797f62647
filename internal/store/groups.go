package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/erazemk/menjava/internal/matching"
	"github.com/erazemk/menjava/internal/model"
)

// ListGroups returns a participant's trade groups ordered by index.
func ListGroups(ctx context.Context, db *sql.DB, participantID string) ([]model.TradeGroup, error) {
	groups, err := ListGroupsFor(ctx, db, []string{participantID})
	if err != nil {
		return nil, err
	}
	return groups[participantID], nil
}

// ListGroupsFor loads the trade groups of several participants at once.
// Goods rows that do not belong to a known group, carry an unknown type or
// a non-positive have quantity are skipped.
func ListGroupsFor(ctx context.Context, db *sql.DB, participantIDs []string) (map[string][]model.TradeGroup, error) {
	return listGroups(ctx, db, participantIDs)
}

func listGroups(ctx context.Context, q querier, participantIDs []string) (map[string][]model.TradeGroup, error) {
	out := make(map[string][]model.TradeGroup, len(participantIDs))
	if len(participantIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(participantIDs))
	for i, id := range participantIDs {
		args[i] = id
	}
	in := placeholders(len(participantIDs))

	type key struct {
		participant string
		index       int
	}
	byKey := map[key]*model.TradeGroup{}

	rows, err := q.QueryContext(ctx,
		`SELECT participant_id, group_idx, event_id, want_quantity, give_count
		 FROM trade_groups WHERE participant_id IN (`+in+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing trade groups: %w", err)
	}
	for rows.Next() {
		g := &model.TradeGroup{Have: map[string]int{}}
		if err := rows.Scan(&g.ParticipantID, &g.Index, &g.EventID, &g.WantQuantity, &g.GiveCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning trade group: %w", err)
		}
		byKey[key{g.ParticipantID, g.Index}] = g
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT participant_id, group_idx, goods_id, type, quantity
		 FROM trade_group_goods WHERE participant_id IN (`+in+`)
		 ORDER BY participant_id, group_idx, goods_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing trade group goods: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var participant, goodsID, typ string
		var index, qty int
		if err := rows.Scan(&participant, &index, &goodsID, &typ, &qty); err != nil {
			return nil, fmt.Errorf("scanning trade group goods: %w", err)
		}
		g, ok := byKey[key{participant, index}]
		if !ok {
			slog.Warn("skipping goods row without group", "participant", participant, "group", index, "goods", goodsID)
			continue
		}
		switch typ {
		case model.GoodsTypeHave:
			if qty <= 0 {
				slog.Warn("skipping have row with non-positive quantity", "participant", participant, "group", index, "goods", goodsID, "quantity", qty)
				continue
			}
			g.Have[goodsID] = qty
		case model.GoodsTypeWant:
			g.WantItems = append(g.WantItems, goodsID)
		default:
			slog.Warn("skipping goods row with unknown type", "participant", participant, "group", index, "type", typ)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, g := range byKey {
		out[g.ParticipantID] = append(out[g.ParticipantID], *g)
	}
	for id := range out {
		sort.Slice(out[id], func(i, j int) bool { return out[id][i].Index < out[id][j].Index })
	}
	return out, nil
}

// ReplaceGroups stores a participant's complete set of trade groups,
// replacing whatever was there. Inert groups are not stored.
func ReplaceGroups(ctx context.Context, db *sql.DB, participantID, eventID string, groups []model.TradeGroup) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteAllGroups(ctx, tx, participantID); err != nil {
		return err
	}
	for _, g := range groups {
		if g.Inert() {
			continue
		}
		g.EventID = eventID
		if err := insertGroup(ctx, tx, participantID, &g); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing trade groups: %w", err)
	}
	return nil
}

// AdjustHaveQuantity changes one have entry of a group by delta with a floor
// of 0 and returns the updated group. A group that becomes inert is removed
// and the result is (nil, true). A missing group yields (nil, false).
func AdjustHaveQuantity(ctx context.Context, db *sql.DB, participantID string, index int, goodsID string, delta int) (*model.TradeGroup, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	groups, err := listGroups(ctx, tx, []string{participantID})
	if err != nil {
		return nil, false, err
	}
	var g *model.TradeGroup
	for i := range groups[participantID] {
		if groups[participantID][i].Index == index {
			g = &groups[participantID][i]
			break
		}
	}
	if g == nil {
		return nil, false, nil
	}

	matching.AdjustHave(g, goodsID, delta)
	spent, err := applyGroupChange(ctx, tx, participantID, matching.GroupChange{Group: *g, Spent: g.Inert()})
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing have adjustment: %w", err)
	}
	if spent {
		return nil, true, nil
	}
	return g, false, nil
}

// applyGroupChange writes a reconciled group back, deleting it when spent.
func applyGroupChange(ctx context.Context, tx *sql.Tx, participantID string, c matching.GroupChange) (bool, error) {
	if err := deleteGroup(ctx, tx, participantID, c.Group.Index); err != nil {
		return false, err
	}
	if c.Spent {
		return true, nil
	}
	if err := insertGroup(ctx, tx, participantID, &c.Group); err != nil {
		return false, err
	}
	return false, nil
}

func insertGroup(ctx context.Context, tx *sql.Tx, participantID string, g *model.TradeGroup) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO trade_groups (participant_id, group_idx, event_id, want_quantity, give_count)
		 VALUES (?, ?, ?, ?, ?)`,
		participantID, g.Index, g.EventID, g.WantQuantity, g.GiveCount,
	)
	if err != nil {
		return fmt.Errorf("storing trade group %d: %w", g.Index, err)
	}

	for _, id := range g.HaveIDs() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO trade_group_goods (participant_id, group_idx, goods_id, type, quantity)
			 VALUES (?, ?, ?, ?, ?)`,
			participantID, g.Index, id, model.GoodsTypeHave, g.Have[id],
		)
		if err != nil {
			return fmt.Errorf("storing have goods: %w", err)
		}
	}
	for _, id := range g.WantItems {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO trade_group_goods (participant_id, group_idx, goods_id, type, quantity)
			 VALUES (?, ?, ?, ?, 1)`,
			participantID, g.Index, id, model.GoodsTypeWant,
		)
		if err != nil {
			return fmt.Errorf("storing want goods: %w", err)
		}
	}
	return nil
}

func deleteGroup(ctx context.Context, tx *sql.Tx, participantID string, index int) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM trade_group_goods WHERE participant_id = ? AND group_idx = ?`, participantID, index); err != nil {
		return fmt.Errorf("deleting trade group goods: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM trade_groups WHERE participant_id = ? AND group_idx = ?`, participantID, index); err != nil {
		return fmt.Errorf("deleting trade group: %w", err)
	}
	return nil
}

func deleteAllGroups(ctx context.Context, tx *sql.Tx, participantID string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM trade_group_goods WHERE participant_id = ?`, participantID); err != nil {
		return fmt.Errorf("deleting trade group goods: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM trade_groups WHERE participant_id = ?`, participantID); err != nil {
		return fmt.Errorf("deleting trade groups: %w", err)
	}
	return nil
}
