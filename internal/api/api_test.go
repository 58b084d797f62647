package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/menjava/internal/auth"
	"github.com/erazemk/menjava/internal/db"
	"github.com/erazemk/menjava/internal/metrics"
	"github.com/erazemk/menjava/internal/model"
	"github.com/erazemk/menjava/internal/notify"
	"github.com/erazemk/menjava/internal/store"
)

const testJWTSecret = "test-secret"

func setupTestServer(t *testing.T, opts Options) (*httptest.Server, string, *sql.DB) {
	t.Helper()
	database := db.NewTestDB(t)
	router := NewRouter(database, testJWTSecret, opts)
	server := httptest.NewServer(LoggingMiddleware(router))
	t.Cleanup(server.Close)

	// Create admin user.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	store.CreateUser(ctx, database, "admin", string(hash))

	// Get token.
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "password"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	token := loginResp["token"]
	if token == "" {
		t.Fatal("empty token from login")
	}

	return server, token, database
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// call sends an authenticated JSON request, decodes the response into out
// if non-nil and returns the status code.
func call(t *testing.T, method, url, token string, body, out any) int {
	t.Helper()
	req, _ := authRequest(method, url, token, body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

// startSession creates a participant at eventID and reports its position.
func startSession(t *testing.T, server *httptest.Server, nickname, eventID string, lat, lng float64) (id, token string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"nickname": nickname})
	resp, err := http.Post(server.URL+"/api/session", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("session request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for session, got %d", resp.StatusCode)
	}
	var s sessionResponse
	json.NewDecoder(resp.Body).Decode(&s)

	if code := call(t, "PUT", server.URL+"/api/me", s.Token, map[string]string{"nickname": nickname, "event_id": eventID}, nil); code != http.StatusOK {
		t.Fatalf("expected 200 selecting event, got %d", code)
	}
	if code := call(t, "PUT", server.URL+"/api/me/location", s.Token, map[string]float64{"lat": lat, "lng": lng}, nil); code != http.StatusOK {
		t.Fatalf("expected 200 for location, got %d", code)
	}
	return s.ParticipantID, s.Token
}

// seedCatalog creates an event around (35.0, 135.0) with an open trade
// window and two goods.
func seedCatalog(t *testing.T, server *httptest.Server, adminToken string) (eventID, badgeA, badgeB string) {
	t.Helper()
	lat, lng, radius := 35.0, 135.0, 1.0
	start, end := time.Now().Add(-time.Hour), time.Now().Add(time.Hour)

	var e model.Event
	code := call(t, "POST", server.URL+"/api/admin/events", adminToken, model.Event{
		Name:   "Arena",
		Active: true,
		Areas:  []model.GeofenceArea{{Lat: &lat, Lng: &lng, RadiusKm: &radius}},
		Trade:  model.Window{Start: &start, End: &end},
	}, &e)
	if code != http.StatusCreated {
		t.Fatalf("expected 201 creating event, got %d", code)
	}

	goods := func(name string) string {
		var g model.Goods
		code := call(t, "POST", server.URL+"/api/admin/goods", adminToken, map[string]string{
			"event_id": e.ID, "name": name, "category": "badge",
		}, &g)
		if code != http.StatusCreated {
			t.Fatalf("expected 201 creating goods, got %d", code)
		}
		return g.ID
	}
	return e.ID, goods("badge A"), goods("badge B")
}

func TestLoginEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t, Options{})

	// Test invalid credentials.
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnauthenticatedAccess(t *testing.T) {
	server, _, _ := setupTestServer(t, Options{})

	resp, _ := http.Get(server.URL + "/api/matches")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleBasedAccess(t *testing.T) {
	server, adminToken, _ := setupTestServer(t, Options{})
	participantToken, _ := auth.GenerateParticipantToken(testJWTSecret, "p-1")

	// Participants cannot administer the catalog.
	code := call(t, "POST", server.URL+"/api/admin/events", participantToken, map[string]string{"name": "x"}, nil)
	if code != http.StatusForbidden {
		t.Errorf("expected 403 for participant creating event, got %d", code)
	}

	// Operators have no participant profile.
	if code := call(t, "GET", server.URL+"/api/me", adminToken, nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for admin on /api/me, got %d", code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	server, adminToken, _ := setupTestServer(t, Options{})

	if code := call(t, "POST", server.URL+"/api/auth/logout", adminToken, nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 for logout, got %d", code)
	}
	if code := call(t, "GET", server.URL+"/api/events", adminToken, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 with revoked token, got %d", code)
	}
}

func TestTradeFlow(t *testing.T) {
	server, adminToken, _ := setupTestServer(t, Options{})
	eventID, badgeA, badgeB := seedCatalog(t, server, adminToken)

	aID, aToken := startSession(t, server, "A", eventID, 35.0, 135.0)
	bID, bToken := startSession(t, server, "B", eventID, 35.0, 135.005)

	code := call(t, "PUT", server.URL+"/api/me/groups", aToken, []model.TradeGroup{{
		Have: map[string]int{badgeA: 2}, WantItems: []string{badgeB}, WantQuantity: 1, GiveCount: 1,
	}}, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200 registering A's groups, got %d", code)
	}
	call(t, "PUT", server.URL+"/api/me/groups", bToken, []model.TradeGroup{{
		Have: map[string]int{badgeB: 1}, WantItems: []string{badgeA}, WantQuantity: 1, GiveCount: 1,
	}}, nil)

	var results []model.MatchResult
	if code := call(t, "GET", server.URL+"/api/matches/candidates", aToken, nil, &results); code != http.StatusOK {
		t.Fatalf("expected 200 for candidates, got %d", code)
	}
	if len(results) != 1 || results[0].ParticipantID != bID {
		t.Fatalf("expected B as candidate, got %+v", results)
	}

	req := map[string]any{
		"counterparty_id": bID,
		"color_code":      results[0].ColorCode,
		"groups":          []model.MatchGroup{{RequesterGroup: 0, RecipientGroup: 0}},
	}
	var m model.Match
	if code := call(t, "POST", server.URL+"/api/matches", aToken, req, &m); code != http.StatusCreated {
		t.Fatalf("expected 201 creating match, got %d", code)
	}
	if m.RequesterID != aID || m.Status != model.MatchStatusPending {
		t.Errorf("unexpected match %+v", m)
	}

	var conflict struct {
		Error string       `json:"error"`
		Match *model.Match `json:"match"`
	}
	if code := call(t, "POST", server.URL+"/api/matches", aToken, req, &conflict); code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate open match, got %d", code)
	}
	if conflict.Match == nil || conflict.Match.ID != m.ID {
		t.Errorf("expected conflict to carry the open match, got %+v", conflict)
	}

	if code := call(t, "POST", server.URL+"/api/matches/"+m.ID+"/accept", aToken, nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for requester accepting, got %d", code)
	}
	var tr transitionResponse
	if code := call(t, "POST", server.URL+"/api/matches/"+m.ID+"/accept", bToken, nil, &tr); code != http.StatusOK {
		t.Fatalf("expected 200 accepting, got %d", code)
	}
	if tr.Match.Status != model.MatchStatusAccepted {
		t.Errorf("expected accepted, got %s", tr.Match.Status)
	}

	if code := call(t, "POST", server.URL+"/api/matches/"+m.ID+"/messages", bToken, map[string]string{"body": "north gate"}, nil); code != http.StatusCreated {
		t.Errorf("expected 201 for message, got %d", code)
	}

	if code := call(t, "POST", server.URL+"/api/matches/"+m.ID+"/complete", aToken, nil, &tr); code != http.StatusOK {
		t.Fatalf("expected 200 completing, got %d", code)
	}
	if tr.Match.Status != model.MatchStatusCompleted || len(tr.Exchanges) != 1 {
		t.Errorf("unexpected completion %+v", tr)
	}

	if code := call(t, "POST", server.URL+"/api/matches/"+m.ID+"/cancel", bToken, nil, nil); code != http.StatusConflict {
		t.Errorf("expected 409 cancelling a completed match, got %d", code)
	}
	if code := call(t, "POST", server.URL+"/api/matches/"+m.ID+"/messages", bToken, map[string]string{"body": "thanks"}, nil); code != http.StatusConflict {
		t.Errorf("expected 409 messaging a closed match, got %d", code)
	}

	var groups []model.TradeGroup
	call(t, "GET", server.URL+"/api/me/groups", aToken, nil, &groups)
	if len(groups) != 0 {
		t.Errorf("expected A's group dropped after trade, got %+v", groups)
	}

	var matches []model.Match
	call(t, "GET", server.URL+"/api/matches", bToken, nil, &matches)
	if len(matches) != 1 || matches[0].Status != model.MatchStatusCompleted {
		t.Errorf("expected one completed match for B, got %+v", matches)
	}
}

func TestEligibilityErrors(t *testing.T) {
	server, adminToken, _ := setupTestServer(t, Options{})
	eventID, _, _ := seedCatalog(t, server, adminToken)

	_, farToken := startSession(t, server, "far", eventID, 35.1, 135.0)
	if code := call(t, "GET", server.URL+"/api/matches/candidates", farToken, nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 outside area, got %d", code)
	}

	_, token := startSession(t, server, "near", eventID, 35.0, 135.0)
	if code := call(t, "GET", server.URL+"/api/matches/missing", token, nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown match, got %d", code)
	}
	bad := []model.TradeGroup{{Have: map[string]int{"nope": 1}, WantItems: []string{"nope"}, WantQuantity: 1}}
	if code := call(t, "PUT", server.URL+"/api/me/groups", token, bad, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown goods, got %d", code)
	}
}

func TestDeleteMe(t *testing.T) {
	server, adminToken, _ := setupTestServer(t, Options{})
	eventID, _, _ := seedCatalog(t, server, adminToken)
	_, token := startSession(t, server, "gone", eventID, 35.0, 135.0)

	if code := call(t, "DELETE", server.URL+"/api/me", token, nil, nil); code != http.StatusNoContent {
		t.Fatalf("expected 204 for erasure, got %d", code)
	}
	if code := call(t, "GET", server.URL+"/api/me", token, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expected 401 after erasure, got %d", code)
	}
}

func TestPushChannel(t *testing.T) {
	hub := notify.NewHub(nil)
	t.Cleanup(hub.Shutdown)
	server, adminToken, _ := setupTestServer(t, Options{Hub: hub})
	eventID, badgeA, badgeB := seedCatalog(t, server, adminToken)

	_, aToken := startSession(t, server, "A", eventID, 35.0, 135.0)
	bID, bToken := startSession(t, server, "B", eventID, 35.0, 135.0)
	call(t, "PUT", server.URL+"/api/me/groups", aToken, []model.TradeGroup{{
		Have: map[string]int{badgeA: 1}, WantItems: []string{badgeB}, WantQuantity: 1, GiveCount: 1,
	}}, nil)
	call(t, "PUT", server.URL+"/api/me/groups", bToken, []model.TradeGroup{{
		Have: map[string]int{badgeB: 1}, WantItems: []string{badgeA}, WantQuantity: 1, GiveCount: 1,
	}}, nil)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws?token=" + bToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing push channel: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount(bID) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	call(t, "POST", server.URL+"/api/matches", aToken, map[string]any{
		"counterparty_id": bID,
		"color_code":      "#FF6B6B",
		"groups":          []model.MatchGroup{{RequesterGroup: 0, RecipientGroup: 0}},
	}, nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev notify.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("reading push event: %v", err)
	}
	if ev.Type != notify.TypeMatchCreated || ev.MatchID == "" {
		t.Errorf("expected match_created, got %+v", ev)
	}
}

func TestCompleteWithChunkedEmptyBody(t *testing.T) {
	server, adminToken, _ := setupTestServer(t, Options{})
	eventID, badgeA, badgeB := seedCatalog(t, server, adminToken)

	_, aToken := startSession(t, server, "A", eventID, 35.0, 135.0)
	bID, bToken := startSession(t, server, "B", eventID, 35.0, 135.005)
	call(t, "PUT", server.URL+"/api/me/groups", aToken, []model.TradeGroup{{
		Have: map[string]int{badgeA: 1}, WantItems: []string{badgeB}, WantQuantity: 1, GiveCount: 1,
	}}, nil)
	call(t, "PUT", server.URL+"/api/me/groups", bToken, []model.TradeGroup{{
		Have: map[string]int{badgeB: 1}, WantItems: []string{badgeA}, WantQuantity: 1, GiveCount: 1,
	}}, nil)

	var m model.Match
	code := call(t, "POST", server.URL+"/api/matches", aToken, map[string]any{
		"counterparty_id": bID,
		"color_code":      "#FF6B6B",
		"groups":          []model.MatchGroup{{RequesterGroup: 0, RecipientGroup: 0}},
	}, &m)
	if code != http.StatusCreated {
		t.Fatalf("expected 201 creating match, got %d", code)
	}

	// Unknown length, no body: what a chunked request without content looks like.
	req := httptest.NewRequest("POST", "/api/matches/"+m.ID+"/complete", strings.NewReader(""))
	req.ContentLength = -1
	req.Header.Set("Authorization", "Bearer "+bToken)
	rec := httptest.NewRecorder()
	server.Config.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 completing with empty body, got %d: %s", rec.Code, rec.Body.String())
	}
	var tr transitionResponse
	json.NewDecoder(rec.Body).Decode(&tr)
	if tr.Match == nil || tr.Match.Status != model.MatchStatusCompleted || len(tr.Exchanges) != 1 {
		t.Errorf("expected completed match with default exchange, got %+v", tr)
	}

	if code := call(t, "POST", server.URL+"/api/matches/"+m.ID+"/complete", aToken, "not an object", nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", code)
	}
}

func TestPushDisabled(t *testing.T) {
	server, _, _ := setupTestServer(t, Options{})
	token, _ := auth.GenerateParticipantToken(testJWTSecret, "p-1")

	if code := call(t, "GET", server.URL+"/api/ws", token, nil, nil); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without hub, got %d", code)
	}
}

func TestGoodsImageUpload(t *testing.T) {
	server, adminToken, _ := setupTestServer(t, Options{})
	_, badgeA, _ := seedCatalog(t, server, adminToken)

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var pngData bytes.Buffer
	png.Encode(&pngData, img)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("image", "badge.png")
	fw.Write(pngData.Bytes())
	mw.Close()

	req, _ := http.NewRequest("PUT", server.URL+"/api/admin/goods/"+badgeA+"/image", &body)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for upload, got %d", resp.StatusCode)
	}

	req, _ = authRequest("GET", server.URL+"/api/goods/"+badgeA+"/image", adminToken, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get image: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", ct)
	}
}

func TestGoodsDeactivationHidesFromCatalog(t *testing.T) {
	server, adminToken, _ := setupTestServer(t, Options{})
	eventID, badgeA, _ := seedCatalog(t, server, adminToken)
	_, token := startSession(t, server, "A", eventID, 35.0, 135.0)

	code := call(t, "PUT", server.URL+"/api/admin/goods/"+badgeA, adminToken, map[string]string{
		"name": "badge A", "status": model.GoodsStatusInactive,
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200 updating goods, got %d", code)
	}

	var goods []model.Goods
	call(t, "GET", server.URL+"/api/events/"+eventID+"/goods", token, nil, &goods)
	if len(goods) != 1 {
		t.Errorf("expected only active goods for participants, got %d", len(goods))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	server, _, _ := setupTestServer(t, Options{Metrics: m})

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for metrics, got %d", resp.StatusCode)
	}
}
