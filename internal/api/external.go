package api

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/tbechet/safestep/internal/external"
	"github.com/tbechet/safestep/internal/store"
)

// ExternalHandler relays weather and traffic data for worksites.
type ExternalHandler struct {
	DB      *sql.DB
	Service *external.Service
}

// Weather handles GET /api/external/weather?city=...|site_id=...
func (h *ExternalHandler) Weather(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")

	// Resolve the city from a site when only site_id is given.
	if city == "" {
		if siteIDStr := r.URL.Query().Get("site_id"); siteIDStr != "" {
			siteID, err := strconv.ParseInt(siteIDStr, 10, 64)
			if err != nil {
				jsonError(w, http.StatusBadRequest, "invalid site_id")
				return
			}
			site, err := store.GetSite(r.Context(), h.DB, siteID)
			if err != nil {
				jsonError(w, http.StatusInternalServerError, "failed to resolve site")
				return
			}
			if site != nil {
				city = site.City
			}
		}
	}

	if city == "" {
		jsonError(w, http.StatusBadRequest, "city or site_id parameter required")
		return
	}

	report, err := h.Service.Weather(r.Context(), city)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "failed to fetch weather data")
		return
	}
	jsonResponse(w, http.StatusOK, report)
}

// Traffic handles GET /api/external/traffic?origin=...&destination=...
func (h *ExternalHandler) Traffic(w http.ResponseWriter, r *http.Request) {
	origin := r.URL.Query().Get("origin")
	destination := r.URL.Query().Get("destination")

	if origin == "" || destination == "" {
		jsonError(w, http.StatusBadRequest, "origin and destination parameters required")
		return
	}

	report, err := h.Service.Traffic(r.Context(), origin, destination)
	if err != nil {
		jsonError(w, http.StatusBadGateway, "failed to fetch traffic data")
		return
	}
	jsonResponse(w, http.StatusOK, report)
}
