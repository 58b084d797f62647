package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/menjava/internal/metrics"
	"github.com/erazemk/menjava/internal/model"
	"github.com/erazemk/menjava/internal/notify"
	"github.com/erazemk/menjava/internal/presence"
	"github.com/erazemk/menjava/internal/trade"
)

// Options carries the optional collaborators of the router. Zero values
// disable push and metrics.
type Options struct {
	// Hub serves /api/ws.
	Hub *notify.Hub
	// Notifier delivers change events. Defaults to Hub.
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Trade    *trade.Service
	Presence *presence.Tracker
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, opts Options) http.Handler {
	notifier := opts.Notifier
	if notifier == nil && opts.Hub != nil {
		notifier = opts.Hub
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	svc := opts.Trade
	if svc == nil {
		svc = trade.NewService(db, notifier, opts.Metrics)
	}
	tracker := opts.Presence
	if tracker == nil {
		tracker = &presence.Tracker{DB: db, Notifier: notifier, Metrics: opts.Metrics}
	}

	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	sessionHandler := &SessionHandler{DB: db, JWTSecret: jwtSecret, Trade: svc, Presence: tracker}
	tradeHandler := &TradeHandler{Trade: svc}
	catalogHandler := &CatalogHandler{DB: db, Notifier: notifier}
	pushHandler := &PushHandler{DB: db, Hub: opts.Hub}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	participant := func(h http.HandlerFunc) http.Handler {
		return authMW(RequireParticipant(h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return authMW(requireAdmin(h))
	}

	// Public: operator login and anonymous sessions.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/session", sessionHandler.Start)

	// Any authenticated caller.
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/events", authMW(http.HandlerFunc(catalogHandler.ListEvents)))
	mux.Handle("GET /api/events/{id}/goods", authMW(http.HandlerFunc(catalogHandler.ListGoods)))
	mux.Handle("GET /api/goods/{id}/image", authMW(http.HandlerFunc(catalogHandler.GetImage)))

	// Participant profile and presence.
	mux.Handle("GET /api/me", participant(sessionHandler.Get))
	mux.Handle("PUT /api/me", participant(sessionHandler.Update))
	mux.Handle("DELETE /api/me", participant(sessionHandler.Delete))
	mux.Handle("PUT /api/me/location", participant(sessionHandler.Location))

	// Trade groups.
	mux.Handle("GET /api/me/groups", participant(tradeHandler.ListGroups))
	mux.Handle("PUT /api/me/groups", participant(tradeHandler.ReplaceGroups))
	mux.Handle("POST /api/me/groups/{index}/adjust", participant(tradeHandler.AdjustGroup))

	// Matches.
	mux.Handle("GET /api/matches/candidates", participant(tradeHandler.Candidates))
	mux.Handle("POST /api/matches", participant(tradeHandler.CreateMatch))
	mux.Handle("GET /api/matches", participant(tradeHandler.ListMatches))
	mux.Handle("GET /api/matches/{id}", participant(tradeHandler.GetMatch))
	mux.Handle("POST /api/matches/{id}/accept", participant(tradeHandler.Accept))
	mux.Handle("POST /api/matches/{id}/complete", participant(tradeHandler.Complete))
	mux.Handle("POST /api/matches/{id}/cancel", participant(tradeHandler.Cancel))
	mux.Handle("GET /api/matches/{id}/messages", participant(tradeHandler.ListMessages))
	mux.Handle("POST /api/matches/{id}/messages", participant(tradeHandler.SendMessage))

	// Push channel.
	mux.Handle("GET /api/ws", participant(pushHandler.Serve))

	// Catalog administration (admin only).
	mux.Handle("PUT /api/auth/password", admin(authHandler.ChangePassword))
	mux.Handle("POST /api/admin/events", admin(catalogHandler.CreateEvent))
	mux.Handle("PUT /api/admin/events/{id}", admin(catalogHandler.UpdateEvent))
	mux.Handle("POST /api/admin/goods", admin(catalogHandler.CreateGoods))
	mux.Handle("PUT /api/admin/goods/{id}", admin(catalogHandler.UpdateGoods))
	mux.Handle("PUT /api/admin/goods/{id}/image", admin(catalogHandler.UploadImage))

	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	return mux
}
