// Package client is a participant-side consumer of the HTTP API. It keeps
// a local view of the participant's matches that is fed by polling and by
// the push channel.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erazemk/menjava/internal/matching"
	"github.com/erazemk/menjava/internal/model"
)

// Client calls the participant endpoints with a bearer token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Error is a non-2xx API response. Match is set for 409 responses that
// carry the current state of a match.
type Error struct {
	Status  int
	Message string
	Match   *model.Match
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Session is the result of starting an anonymous session.
type Session struct {
	ParticipantID string `json:"participant_id"`
	Token         string `json:"token"`
}

// StartSession creates an anonymous participant and stores its token on
// the client.
func (c *Client) StartSession(ctx context.Context, nickname string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/session", map[string]string{"nickname": nickname}, &s); err != nil {
		return nil, err
	}
	c.Token = s.Token
	return &s, nil
}

// SelectEvent binds the participant to an event.
func (c *Client) SelectEvent(ctx context.Context, nickname, eventID string) (*model.Participant, error) {
	var p model.Participant
	body := map[string]string{"nickname": nickname, "event_id": eventID}
	if err := c.do(ctx, http.MethodPut, "/api/me", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateLocation reports the device position.
func (c *Client) UpdateLocation(ctx context.Context, lat, lng float64) error {
	return c.do(ctx, http.MethodPut, "/api/me/location", map[string]float64{"lat": lat, "lng": lng}, nil)
}

// RegisterGroups replaces the participant's trade groups.
func (c *Client) RegisterGroups(ctx context.Context, groups []model.TradeGroup) ([]model.TradeGroup, error) {
	var out []model.TradeGroup
	if err := c.do(ctx, http.MethodPut, "/api/me/groups", groups, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Candidates runs a scan.
func (c *Client) Candidates(ctx context.Context) ([]model.MatchResult, error) {
	var out []model.MatchResult
	if err := c.do(ctx, http.MethodGet, "/api/matches/candidates", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMatch proposes a trade to the candidate of a scan result.
func (c *Client) CreateMatch(ctx context.Context, r model.MatchResult) (*model.Match, error) {
	pairs := make([]model.MatchGroup, 0, len(r.Groups))
	for _, g := range r.Groups {
		pairs = append(pairs, model.MatchGroup{RequesterGroup: g.MyGroup, RecipientGroup: g.TheirGroup})
	}
	body := map[string]any{
		"counterparty_id": r.ParticipantID,
		"color_code":      r.ColorCode,
		"groups":          pairs,
	}
	var m model.Match
	if err := c.do(ctx, http.MethodPost, "/api/matches", body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Matches lists the participant's matches, newest first.
func (c *Client) Matches(ctx context.Context) ([]model.Match, error) {
	var out []model.Match
	if err := c.do(ctx, http.MethodGet, "/api/matches", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Accept accepts a pending match.
func (c *Client) Accept(ctx context.Context, matchID string) (*model.Match, error) {
	return c.transition(ctx, matchID, "accept", nil)
}

// Cancel cancels an open match.
func (c *Client) Cancel(ctx context.Context, matchID string) (*model.Match, error) {
	return c.transition(ctx, matchID, "cancel", nil)
}

// Complete completes an open match with the confirmed quantities.
func (c *Client) Complete(ctx context.Context, matchID string, confirmations []matching.Confirmation) (*model.Match, error) {
	return c.transition(ctx, matchID, "complete", map[string]any{"confirmations": confirmations})
}

func (c *Client) transition(ctx context.Context, matchID, action string, body any) (*model.Match, error) {
	var out struct {
		Match *model.Match `json:"match"`
	}
	path := "/api/matches/" + url.PathEscape(matchID) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return out.Match, nil
}

// WebSocketURL returns the push channel URL.
func (c *Client) WebSocketURL() string {
	u := c.BaseURL + "/api/ws"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *Client) authHeader() http.Header {
	h := http.Header{}
	if c.Token != "" {
		h.Set("Authorization", "Bearer "+c.Token)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.authHeader()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string       `json:"error"`
			Match *model.Match `json:"match"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return &Error{Status: resp.StatusCode, Message: e.Error, Match: e.Match}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
