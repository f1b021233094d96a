package api

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/tbechet/safestep/internal/imaging"
	"github.com/tbechet/safestep/internal/model"
	"github.com/tbechet/safestep/internal/store"
)

// ItemsHandler handles the plain item CRUD endpoints.
type ItemsHandler struct {
	DB *sql.DB
}

type createItemRequest struct {
	TagRef    string `json:"tag_ref"`
	Category  string `json:"category"`
	Status    string `json:"status"`
	SiteID    *int64 `json:"site_id"`
	Quantity  *int   `json:"quantity"`
	Available *int   `json:"available"`
}

type updateItemRequest struct {
	TagRef    *string `json:"tag_ref"`
	Category  *string `json:"category"`
	Status    *string `json:"status"`
	SiteID    *int64  `json:"site_id"`
	Quantity  *int    `json:"quantity"`
	Available *int    `json:"available"`
}

// List handles GET /api/items. Users see their own items, admins see all.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	items, err := store.ListItems(r.Context(), h.DB, claims.UserID, model.IsAdmin(claims.Role))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TagRef == "" || req.Status == "" || req.Category == "" {
		jsonError(w, http.StatusBadRequest, "tag_ref, status and category required")
		return
	}
	if !model.ValidStatus(req.Status) || !model.ValidCategory(req.Category) {
		jsonError(w, http.StatusBadRequest, "invalid status or category value")
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	available := quantity
	if req.Available != nil {
		available = *req.Available
	}
	if quantity < 0 || available < 0 || available > quantity {
		jsonError(w, http.StatusBadRequest, "available must be between 0 and quantity")
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, claims.UserID, req.TagRef, req.Category, req.Status, req.SiteID, quantity, available)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create item")
		return
	}

	jsonResponse(w, http.StatusCreated, map[string]any{"id": item.ID, "message": "item created"})
}

// loadOwnedItem fetches the item and enforces the owner-or-admin rule,
// writing the error response itself when access is denied.
func (h *ItemsHandler) loadOwnedItem(w http.ResponseWriter, r *http.Request) *model.Item {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return nil
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return nil
	}
	if item == nil || item.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return nil
	}

	claims := GetClaims(r.Context())
	if item.OwnerUserID != claims.UserID && !model.IsAdmin(claims.Role) {
		jsonError(w, http.StatusForbidden, "access denied")
		return nil
	}
	return item
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item := h.loadOwnedItem(w, r)
	if item == nil {
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/items/{id}. Absent fields keep their stored values.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	item := h.loadOwnedItem(w, r)
	if item == nil {
		return
	}

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tagRef := item.TagRef
	if req.TagRef != nil && *req.TagRef != "" {
		tagRef = *req.TagRef
	}
	category := item.Category
	if req.Category != nil {
		category = *req.Category
	}
	status := item.Status
	if req.Status != nil {
		status = *req.Status
	}
	if !model.ValidStatus(status) || !model.ValidCategory(category) {
		jsonError(w, http.StatusBadRequest, "invalid status or category value")
		return
	}

	siteID := item.SiteID
	if req.SiteID != nil {
		siteID = req.SiteID
	}
	quantity := item.Quantity
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	available := item.Available
	if req.Available != nil {
		available = *req.Available
	}
	if quantity < 0 || available < 0 || available > quantity {
		jsonError(w, http.StatusBadRequest, "available must be between 0 and quantity")
		return
	}

	if err := store.UpdateItem(r.Context(), h.DB, item.ID, tagRef, category, status, siteID, quantity, available); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to update item")
		return
	}

	updated, err := store.GetItem(r.Context(), h.DB, item.ID)
	if err != nil || updated == nil {
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item := h.loadOwnedItem(w, r)
	if item == nil {
		return
	}

	if err := store.DeleteItem(r.Context(), h.DB, item.ID); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// UploadPhoto handles PUT /api/items/{id}/photo.
func (h *ItemsHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	item := h.loadOwnedItem(w, r)
	if item == nil {
		return
	}

	// Limit to 10 MB; phone photos are re-encoded anyway.
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

	data, mime, err := imaging.Process(r.Body)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.SetItemPhoto(r.Context(), h.DB, item.ID, data, mime); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to save photo")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"message": "photo uploaded"})
}

// GetPhoto handles GET /api/items/{id}/photo.
func (h *ItemsHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	item := h.loadOwnedItem(w, r)
	if item == nil {
		return
	}

	data, mime, err := store.GetItemPhoto(r.Context(), h.DB, item.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get photo")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no photo")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// GetHistory handles GET /api/items/{id}/history, returning the item's
// reconciliation audit trail.
func (h *ItemsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	item := h.loadOwnedItem(w, r)
	if item == nil {
		return
	}

	events, err := store.ListSyncEvents(r.Context(), h.DB, model.EntityItem, item.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get item history")
		return
	}
	if events == nil {
		events = []model.AuditEvent{}
	}
	jsonResponse(w, http.StatusOK, events)
}
