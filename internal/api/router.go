package api

import (
	"database/sql"
	"net/http"

	"github.com/tbechet/safestep/internal/external"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, jwtSecret string, externalSvc *external.Service) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	itemsHandler := &ItemsHandler{DB: db}
	sitesHandler := &SitesHandler{DB: db}
	syncHandler := &SyncHandler{DB: db}
	externalHandler := &ExternalHandler{DB: db, Service: externalSvc}

	authMW := AuthMiddleware(jwtSecret, db)

	// Public.
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)

	// Authenticated.
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Items.
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Update)))
	mux.Handle("DELETE /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Delete)))
	mux.Handle("PUT /api/items/{id}/photo", authMW(http.HandlerFunc(itemsHandler.UploadPhoto)))
	mux.Handle("GET /api/items/{id}/photo", authMW(http.HandlerFunc(itemsHandler.GetPhoto)))
	mux.Handle("GET /api/items/{id}/history", authMW(http.HandlerFunc(itemsHandler.GetHistory)))

	// Sites.
	mux.Handle("GET /api/sites", authMW(http.HandlerFunc(sitesHandler.List)))
	mux.Handle("POST /api/sites", authMW(RequireAdmin(http.HandlerFunc(sitesHandler.Create))))

	// Offline reconciliation.
	mux.Handle("POST /api/sync", authMW(http.HandlerFunc(syncHandler.Post)))

	// External relays.
	mux.Handle("GET /api/external/weather", authMW(http.HandlerFunc(externalHandler.Weather)))
	mux.Handle("GET /api/external/traffic", authMW(http.HandlerFunc(externalHandler.Traffic)))

	return mux
}
