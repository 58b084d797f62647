package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/menjava/internal/notify"
)

// Watcher defaults.
const (
	DefaultPollInterval     = 5 * time.Second
	DefaultHandshakeTimeout = 3 * time.Second
	DefaultMaxRetryInterval = 30 * time.Second
)

// Watcher keeps a View current. Polling runs regardless of the push
// channel; push only shortens the delay until a change is seen.
type Watcher struct {
	Client           *Client
	View             *View
	PollInterval     time.Duration
	HandshakeTimeout time.Duration
	MaxRetryInterval time.Duration

	rescan chan struct{}
}

// NewWatcher creates a watcher with default intervals.
func NewWatcher(c *Client, v *View) *Watcher {
	return &Watcher{
		Client:           c,
		View:             v,
		PollInterval:     DefaultPollInterval,
		HandshakeTimeout: DefaultHandshakeTimeout,
		MaxRetryInterval: DefaultMaxRetryInterval,
		rescan:           make(chan struct{}, 1),
	}
}

// Rescan receives a value whenever inventories changed and a new scan
// would return different candidates. Signals are coalesced.
func (w *Watcher) Rescan() <-chan struct{} {
	return w.rescan
}

func (w *Watcher) signalRescan() {
	select {
	case w.rescan <- struct{}{}:
	default:
	}
}

// Run polls and listens for pushes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.poll(ctx) })
	g.Go(func() error { return w.listen(ctx) })
	return g.Wait()
}

func (w *Watcher) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		matches, err := w.Client.Matches(ctx)
		switch {
		case err == nil:
			if n := w.View.ApplySnapshot(matches); n > 0 {
				slog.Debug("poll updated matches", "changed", n)
			}
		case ctx.Err() != nil:
			return nil
		default:
			slog.Warn("polling matches failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) listen(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = w.MaxRetryInterval
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		connected, err := w.stream(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			b.Reset()
		}
		wait := b.NextBackOff()
		slog.Warn("push channel down, retrying", "error", err, "retry_in", wait)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// stream holds one push connection open until it fails. connected reports
// whether the handshake succeeded.
func (w *Watcher) stream(ctx context.Context) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: w.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.Client.WebSocketURL(), w.Client.authHeader())
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// A push may have been missed while disconnected.
	w.signalRescan()

	for {
		var ev notify.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, errors.New("server closed push channel")
			}
			return true, err
		}
		if _, rescan := w.View.ApplyEvent(ev); rescan {
			w.signalRescan()
		}
	}
}
