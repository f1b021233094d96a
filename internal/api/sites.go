package api

import (
	"database/sql"
	"net/http"

	"github.com/tbechet/safestep/internal/model"
	"github.com/tbechet/safestep/internal/store"
)

// SitesHandler handles construction-site endpoints.
type SitesHandler struct {
	DB *sql.DB
}

type createSiteRequest struct {
	Name    string `json:"name"`
	City    string `json:"city"`
	Address string `json:"address"`
}

// List handles GET /api/sites, returning the caller's sites.
func (h *SitesHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	sites, err := store.ListSitesForUser(r.Context(), h.DB, claims.UserID, model.IsAdmin(claims.Role))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}
	if sites == nil {
		sites = []model.Site{}
	}
	jsonResponse(w, http.StatusOK, sites)
}

// Create handles POST /api/sites (admin only).
func (h *SitesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSiteRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	site, err := store.CreateSite(r.Context(), h.DB, req.Name, req.City, req.Address)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create site")
		return
	}

	jsonResponse(w, http.StatusCreated, site)
}
