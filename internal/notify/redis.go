package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis channel shared by all instances.
const DefaultChannel = "menjava:events"

// Envelope is the relay wire format: an event plus its audience.
type Envelope struct {
	Origin        string `json:"origin"`
	ParticipantID string `json:"participant_id,omitempty"`
	EventID       string `json:"event_id,omitempty"`
	Event         Event  `json:"event"`
}

// RedisBridge delivers events to the local hub and publishes them on Redis
// so that other instances can deliver them to their own clients.
type RedisBridge struct {
	rdb     *redis.Client
	channel string
	origin  string
	hub     *Hub
}

// NewRedisBridge creates a bridge for hub. An empty channel selects
// DefaultChannel.
func NewRedisBridge(rdb *redis.Client, channel string, hub *Hub) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBridge{rdb: rdb, channel: channel, origin: uuid.NewString(), hub: hub}
}

// NotifyParticipant delivers locally and publishes for other instances.
func (b *RedisBridge) NotifyParticipant(ctx context.Context, participantID string, ev Event) {
	b.hub.NotifyParticipant(ctx, participantID, ev)
	b.publish(ctx, Envelope{Origin: b.origin, ParticipantID: participantID, Event: ev})
}

// NotifyEvent delivers locally and publishes for other instances.
func (b *RedisBridge) NotifyEvent(ctx context.Context, eventID string, ev Event) {
	b.hub.NotifyEvent(ctx, eventID, ev)
	b.publish(ctx, Envelope{Origin: b.origin, EventID: eventID, Event: ev})
}

func (b *RedisBridge) publish(ctx context.Context, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("encoding relay envelope", "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		slog.Warn("publishing relay envelope", "channel", b.channel, "error", err)
	}
}

// Subscription is an active subscription to the relay channel. Close must
// be called when done.
type Subscription struct {
	envelopes <-chan Envelope
	errors    <-chan error
	cancel    func()
	once      sync.Once
}

// Envelopes returns received envelopes. It is closed when the subscription ends.
func (s *Subscription) Envelopes() <-chan Envelope {
	return s.envelopes
}

// Errors returns decode failures. Undecodable messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe subscribes to the relay channel and waits for Redis to confirm.
func (b *RedisBridge) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}

	envelopes := make(chan Envelope, 64)
	errs := make(chan error, 8)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(envelopes)
		defer close(errs)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					select {
					case errs <- fmt.Errorf("decoding relay envelope: %w", err):
					default:
					}
					continue
				}
				select {
				case envelopes <- env:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{envelopes: envelopes, errors: errs, cancel: cancel}, nil
}

// Run relays envelopes published by other instances into the local hub
// until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub, err := b.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	slog.Info("push relay subscribed", "channel", b.channel)
	errs := sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("push relay", "error", err)
		case env, ok := <-sub.Envelopes():
			if !ok {
				return nil
			}
			b.relay(ctx, env)
		}
	}
}

func (b *RedisBridge) relay(ctx context.Context, env Envelope) {
	if env.Origin == b.origin {
		return
	}
	switch {
	case env.ParticipantID != "":
		b.hub.NotifyParticipant(ctx, env.ParticipantID, env.Event)
	case env.EventID != "":
		b.hub.NotifyEvent(ctx, env.EventID, env.Event)
	}
}
