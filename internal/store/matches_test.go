package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erazemk/menjava/internal/db"
	"github.com/erazemk/menjava/internal/matching"
	"github.com/erazemk/menjava/internal/model"
)

func TestCreateMatchRejectsOpenPair(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()
	e := seedEvent(t, database)
	a := seedParticipant(t, database, e.ID, "a", now)
	b := seedParticipant(t, database, e.ID, "b", now)

	m, err := CreateMatch(ctx, database, &model.Match{
		EventID: e.ID, RequesterID: a.ID, RecipientID: b.ID, ColorCode: "#FF6B6B",
		Groups:    []model.MatchGroup{{RequesterGroup: 0, RecipientGroup: 1}},
		CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if m.Status != model.MatchStatusPending || len(m.Groups) != 1 || m.ColorCode != "#FF6B6B" {
		t.Errorf("unexpected match %+v", m)
	}

	_, err = CreateMatch(ctx, database, &model.Match{EventID: e.ID, RequesterID: b.ID, RecipientID: a.ID, CreatedAt: now})
	if !errors.Is(err, ErrOpenMatchExists) {
		t.Fatalf("expected ErrOpenMatchExists for reversed pair, got %v", err)
	}

	TransitionMatch(ctx, database, m.ID, []string{model.MatchStatusPending}, model.MatchStatusCancelled, now)

	if _, err := CreateMatch(ctx, database, &model.Match{EventID: e.ID, RequesterID: b.ID, RecipientID: a.ID, CreatedAt: now}); err != nil {
		t.Fatalf("expected new match after cancellation, got %v", err)
	}
}

func TestOpenPairIndex(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insert := `INSERT INTO matches (id, event_id, user1_id, user2_id, status, created_at, updated_at) VALUES (?, 'e', ?, ?, 'pending', ?, ?)`
	if _, err := database.ExecContext(ctx, insert, "m1", "a", "b", now, now); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := database.ExecContext(ctx, insert, "m2", "b", "a", now, now)
	if !isUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestTransitionMatchConditional(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()
	e := seedEvent(t, database)
	a := seedParticipant(t, database, e.ID, "a", now)
	b := seedParticipant(t, database, e.ID, "b", now)
	m, _ := CreateMatch(ctx, database, &model.Match{EventID: e.ID, RequesterID: a.ID, RecipientID: b.ID, CreatedAt: now})

	ok, err := TransitionMatch(ctx, database, m.ID, []string{model.MatchStatusPending}, model.MatchStatusAccepted, now)
	if err != nil || !ok {
		t.Fatalf("expected accept to apply, got %v %v", ok, err)
	}
	ok, _ = TransitionMatch(ctx, database, m.ID, []string{model.MatchStatusPending}, model.MatchStatusAccepted, now)
	if ok {
		t.Error("expected second accept to be rejected")
	}

	ok, _ = TransitionMatch(ctx, database, m.ID, []string{model.MatchStatusPending, model.MatchStatusAccepted}, model.MatchStatusCancelled, now)
	if !ok {
		t.Error("expected cancel from accepted to apply")
	}
	ok, _ = TransitionMatch(ctx, database, m.ID, []string{model.MatchStatusPending, model.MatchStatusAccepted}, model.MatchStatusCompleted, now)
	if ok {
		t.Error("expected complete after cancel to be rejected")
	}
}

func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()
	e := seedEvent(t, database)
	a := seedParticipant(t, database, e.ID, "a", now)
	b := seedParticipant(t, database, e.ID, "b", now)
	m, _ := CreateMatch(ctx, database, &model.Match{EventID: e.ID, RequesterID: a.ID, RecipientID: b.ID, CreatedAt: now})

	open := []string{model.MatchStatusPending, model.MatchStatusAccepted}
	targets := []string{model.MatchStatusCancelled, model.MatchStatusCompleted, model.MatchStatusCancelled, model.MatchStatusCompleted}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, to := range targets {
		wg.Add(1)
		go func(to string) {
			defer wg.Done()
			ok, err := TransitionMatch(ctx, database, m.ID, open, to, now)
			if err != nil {
				t.Errorf("TransitionMatch: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(to)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winning transition, got %d", wins)
	}
}

func TestListMatchesAndCounterparties(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e := seedEvent(t, database)
	a := seedParticipant(t, database, e.ID, "a", now)
	b := seedParticipant(t, database, e.ID, "b", now)
	c := seedParticipant(t, database, e.ID, "c", now)

	first, _ := CreateMatch(ctx, database, &model.Match{EventID: e.ID, RequesterID: a.ID, RecipientID: b.ID, CreatedAt: now})
	second, _ := CreateMatch(ctx, database, &model.Match{EventID: e.ID, RequesterID: c.ID, RecipientID: a.ID, CreatedAt: now.Add(time.Minute)})
	TransitionMatch(ctx, database, first.ID, []string{model.MatchStatusPending}, model.MatchStatusCancelled, now)

	list, err := ListMatches(ctx, database, a.ID, "")
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	pending, _ := ListMatches(ctx, database, a.ID, model.MatchStatusPending)
	if len(pending) != 1 {
		t.Errorf("expected 1 pending match, got %d", len(pending))
	}

	open, err := OpenCounterparties(ctx, database, a.ID)
	if err != nil {
		t.Fatalf("OpenCounterparties: %v", err)
	}
	if !open[c.ID] || open[b.ID] {
		t.Errorf("expected only c as open counterparty, got %v", open)
	}
}

func TestCompleteMatchReconcilesOnce(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Now()
	e := seedEvent(t, database)
	a := seedParticipant(t, database, e.ID, "a", now)
	b := seedParticipant(t, database, e.ID, "b", now)

	ReplaceGroups(ctx, database, a.ID, e.ID, []model.TradeGroup{
		{Index: 0, Have: map[string]int{"x": 2}, WantItems: []string{"y"}, WantQuantity: 2, GiveCount: 1},
	})
	ReplaceGroups(ctx, database, b.ID, e.ID, []model.TradeGroup{
		{Index: 0, Have: map[string]int{"y": 1}, WantItems: []string{"x"}, WantQuantity: 1, GiveCount: 1},
	})

	m, _ := CreateMatch(ctx, database, &model.Match{
		EventID: e.ID, RequesterID: a.ID, RecipientID: b.ID,
		Groups:    []model.MatchGroup{{RequesterGroup: 0, RecipientGroup: 0}},
		CreatedAt: now,
	})

	open := []string{model.MatchStatusPending, model.MatchStatusAccepted}
	plan, ok, err := CompleteMatch(ctx, database, m.ID, open, now, nil)
	if err != nil {
		t.Fatalf("CompleteMatch: %v", err)
	}
	if !ok || plan == nil || len(plan.Exchanges) != 1 {
		t.Fatalf("expected one exchange, got ok=%v plan=%+v", ok, plan)
	}

	aGroups, _ := ListGroups(ctx, database, a.ID)
	if len(aGroups) != 1 || aGroups[0].Have["x"] != 1 || aGroups[0].WantQuantity != 1 {
		t.Errorf("unexpected requester groups %+v", aGroups)
	}
	bGroups, _ := ListGroups(ctx, database, b.ID)
	if len(bGroups) != 0 {
		t.Errorf("expected recipient group spent, got %+v", bGroups)
	}

	got, _ := GetMatch(ctx, database, m.ID)
	if got.Status != model.MatchStatusCompleted || got.CompletedAt == nil || got.ReconciledAt == nil {
		t.Errorf("expected completed and reconciled match, got %+v", got)
	}

	_, ok, err = CompleteMatch(ctx, database, m.ID, open, now, []matching.Confirmation{})
	if err != nil || ok {
		t.Fatalf("expected repeat completion to be a no-op, got ok=%v err=%v", ok, err)
	}
	aGroups, _ = ListGroups(ctx, database, a.ID)
	if aGroups[0].Have["x"] != 1 {
		t.Errorf("expected inventory unchanged by repeat, got %v", aGroups[0].Have)
	}
}
