package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/tbechet/safestep/internal/model"
	"github.com/tbechet/safestep/internal/sync"
)

// SyncHandler handles the batch reconciliation endpoint.
type SyncHandler struct {
	DB *sql.DB
}

// Post handles POST /api/sync: replays a client's queued offline intents
// against the canonical store and reports a per-event outcome for each.
func (h *SyncHandler) Post(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req model.SyncRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Events) == 0 {
		jsonError(w, http.StatusBadRequest, "events array required")
		return
	}

	resp := sync.Apply(r.Context(), h.DB, claims.UserID, model.IsAdmin(claims.Role), req)

	slog.Info("sync batch applied",
		"user_id", claims.UserID, "batch_id", req.BatchID,
		"events", len(req.Events), "synced", resp.Synced)

	jsonResponse(w, http.StatusOK, resp)
}
