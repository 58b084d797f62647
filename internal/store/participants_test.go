package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/erazemk/menjava/internal/db"
	"github.com/erazemk/menjava/internal/model"
)

// seedParticipant creates an active participant bound to eventID and seen at now.
func seedParticipant(t *testing.T, database *sql.DB, eventID, nickname string, now time.Time) *model.Participant {
	t.Helper()
	ctx := context.Background()
	p, err := CreateParticipant(ctx, database, nickname)
	if err != nil {
		t.Fatalf("CreateParticipant: %v", err)
	}
	if err := UpdateParticipantProfile(ctx, database, p.ID, nickname, eventID); err != nil {
		t.Fatalf("UpdateParticipantProfile: %v", err)
	}
	if err := TouchParticipant(ctx, database, p.ID, now); err != nil {
		t.Fatalf("TouchParticipant: %v", err)
	}
	if _, err := SetParticipantActive(ctx, database, p.ID, true); err != nil {
		t.Fatalf("SetParticipantActive: %v", err)
	}
	p, _ = GetParticipant(ctx, database, p.ID)
	return p
}

func TestCreateParticipant(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	p, err := CreateParticipant(ctx, database, "mika")
	if err != nil {
		t.Fatalf("CreateParticipant: %v", err)
	}
	if p.Active || p.EventID != "" || p.Lat != 0 || p.Lng != 0 {
		t.Errorf("expected fresh participant, got %+v", p)
	}

	missing, err := GetParticipant(ctx, database, "nope")
	if err != nil {
		t.Fatalf("GetParticipant: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing participant")
	}
}

func TestSetParticipantActiveEdgeTriggered(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	p, _ := CreateParticipant(ctx, database, "mika")

	changed, err := SetParticipantActive(ctx, database, p.ID, false)
	if err != nil {
		t.Fatalf("SetParticipantActive: %v", err)
	}
	if changed {
		t.Error("expected no write when flag already false")
	}

	changed, _ = SetParticipantActive(ctx, database, p.ID, true)
	if !changed {
		t.Error("expected write on false -> true")
	}
	changed, _ = SetParticipantActive(ctx, database, p.ID, true)
	if changed {
		t.Error("expected no write on true -> true")
	}
}

func TestSwitchingEventDropsGroups(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()
	e1 := seedEvent(t, database)
	e2 := seedEvent(t, database)
	p := seedParticipant(t, database, e1.ID, "mika", now)

	ReplaceGroups(ctx, database, p.ID, e1.ID, []model.TradeGroup{
		{Index: 0, Have: map[string]int{"a": 1}, WantItems: []string{"b"}, WantQuantity: 1, GiveCount: 1},
	})

	if err := UpdateParticipantProfile(ctx, database, p.ID, "mika", e1.ID); err != nil {
		t.Fatalf("UpdateParticipantProfile: %v", err)
	}
	groups, _ := ListGroups(ctx, database, p.ID)
	if len(groups) != 1 {
		t.Fatalf("expected groups kept on same event, got %d", len(groups))
	}

	if err := UpdateParticipantProfile(ctx, database, p.ID, "mika", e2.ID); err != nil {
		t.Fatalf("UpdateParticipantProfile: %v", err)
	}
	groups, _ = ListGroups(ctx, database, p.ID)
	if len(groups) != 0 {
		t.Errorf("expected groups dropped on event switch, got %d", len(groups))
	}
	got, _ := GetParticipant(ctx, database, p.ID)
	if got.Active {
		t.Error("expected participant inactive after event switch")
	}
}

func TestListActiveAndDeactivateIdle(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e := seedEvent(t, database)

	fresh := seedParticipant(t, database, e.ID, "fresh", now)
	stale := seedParticipant(t, database, e.ID, "stale", now.Add(-time.Hour))

	list, err := ListActiveParticipants(ctx, database, e.ID, now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("ListActiveParticipants: %v", err)
	}
	if len(list) != 1 || list[0].ID != fresh.ID {
		t.Errorf("expected only fresh participant, got %+v", list)
	}

	ids, err := DeactivateIdleParticipants(ctx, database, now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("DeactivateIdleParticipants: %v", err)
	}
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Errorf("expected stale participant deactivated, got %v", ids)
	}

	got, _ := GetParticipant(ctx, database, stale.ID)
	if got.Active {
		t.Error("expected stale participant inactive")
	}

	ids, _ = DeactivateIdleParticipants(ctx, database, now.Add(-10*time.Minute))
	if len(ids) != 0 {
		t.Errorf("expected second sweep to be a no-op, got %v", ids)
	}
}

func TestSetParticipantLocation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	p, _ := CreateParticipant(ctx, database, "mika")
	at := time.Unix(1_700_000_000, 0).UTC()

	if err := SetParticipantLocation(ctx, database, p.ID, 35.7, 139.75, at); err != nil {
		t.Fatalf("SetParticipantLocation: %v", err)
	}
	got, _ := GetParticipant(ctx, database, p.ID)
	if got.Lat != 35.7 || got.Lng != 139.75 {
		t.Errorf("unexpected location %v,%v", got.Lat, got.Lng)
	}
	if !got.LastActiveAt.Equal(at) {
		t.Errorf("expected last active %v, got %v", at, got.LastActiveAt)
	}
}

func TestEraseParticipant(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()
	e := seedEvent(t, database)
	a := seedParticipant(t, database, e.ID, "a", now)
	b := seedParticipant(t, database, e.ID, "b", now)

	ReplaceGroups(ctx, database, a.ID, e.ID, []model.TradeGroup{
		{Index: 0, Have: map[string]int{"x": 1}, WantItems: []string{"y"}, WantQuantity: 1, GiveCount: 1},
	})
	m, err := CreateMatch(ctx, database, &model.Match{EventID: e.ID, RequesterID: a.ID, RecipientID: b.ID, CreatedAt: now})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	CreateMessage(ctx, database, m.ID, a.ID, "hi", now)

	open, err := EraseParticipant(ctx, database, a.ID)
	if err != nil {
		t.Fatalf("EraseParticipant: %v", err)
	}
	if len(open) != 1 || open[0].ID != m.ID || open[0].Counterparty(a.ID) != b.ID {
		t.Errorf("expected the open match with b, got %+v", open)
	}

	if got, _ := GetParticipant(ctx, database, a.ID); got != nil {
		t.Error("expected participant erased")
	}
	if got, _ := GetMatch(ctx, database, m.ID); got != nil {
		t.Error("expected match erased")
	}
	msgs, _ := ListMessages(ctx, database, m.ID)
	if len(msgs) != 0 {
		t.Errorf("expected messages erased, got %d", len(msgs))
	}
	groups, _ := ListGroups(ctx, database, a.ID)
	if len(groups) != 0 {
		t.Errorf("expected groups erased, got %d", len(groups))
	}
	if got, _ := GetParticipant(ctx, database, b.ID); got == nil {
		t.Error("expected counterparty to remain")
	}
}
