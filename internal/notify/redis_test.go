package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, func() *redis.Client) {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	return mr, func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		return rdb
	}
}

func TestSubscribeReceivesEnvelopes(t *testing.T) {
	_, newClient := setupRedis(t)
	ctx := context.Background()

	a := NewRedisBridge(newClient(), "", NewHub(nil))
	b := NewRedisBridge(newClient(), "", NewHub(nil))

	sub, err := b.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	ev := NewEvent(TypeMatchCreated, nil)
	a.NotifyParticipant(ctx, "bob", ev)

	select {
	case env := <-sub.Envelopes():
		assert.Equal(t, a.origin, env.Origin)
		assert.Equal(t, "bob", env.ParticipantID)
		assert.Equal(t, ev.ID, env.Event.ID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for envelope")
	}
}

func TestRelayDeliversAcrossInstances(t *testing.T) {
	mr, newClient := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubA := NewHub(nil)
	hubB := NewHub(nil)
	a := NewRedisBridge(newClient(), "", hubA)
	b := NewRedisBridge(newClient(), "", hubB)

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	require.Eventually(t, func() bool { return mr.PubSubNumSub(DefaultChannel)[DefaultChannel] == 1 },
		time.Second, 10*time.Millisecond)

	srv := startHubServer(t, hubB)
	conn := dial(t, srv, hubB, "bob", "e1")

	ev := NewEvent(TypeMatchStatus, nil)
	a.NotifyParticipant(ctx, "bob", ev)
	assert.Equal(t, ev.ID, readEvent(t, conn).ID)

	inv := NewEvent(TypeInventoryChanged, nil)
	a.NotifyEvent(ctx, "e1", inv)
	assert.Equal(t, inv.ID, readEvent(t, conn).ID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelayIgnoresOwnEnvelopes(t *testing.T) {
	_, newClient := setupRedis(t)
	ctx := context.Background()

	hub := NewHub(nil)
	b := NewRedisBridge(newClient(), "", hub)
	srv := startHubServer(t, hub)
	conn := dial(t, srv, hub, "bob", "e1")

	ev := NewEvent(TypeMatchStatus, nil)
	b.relay(ctx, Envelope{Origin: b.origin, ParticipantID: "bob", Event: ev})

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "own envelope should not be delivered twice")
}

func TestPublishWithoutRedisStillDeliversLocally(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer rdb.Close()

	hub := NewHub(nil)
	b := NewRedisBridge(rdb, "", hub)
	srv := startHubServer(t, hub)
	conn := dial(t, srv, hub, "bob", "e1")

	ev := NewEvent(TypeMatchStatus, nil)
	b.NotifyParticipant(context.Background(), "bob", ev)
	assert.Equal(t, ev.ID, readEvent(t, conn).ID)
}
