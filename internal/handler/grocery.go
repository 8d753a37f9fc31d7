package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/grocerylist/internal/middleware"
	"github.com/dukerupert/grocerylist/internal/model"
	"github.com/dukerupert/grocerylist/internal/store"
	"github.com/dukerupert/grocerylist/internal/viewstate"
	ws "github.com/dukerupert/grocerylist/internal/websocket"
	"github.com/go-chi/chi/v5"
)

type GroceryHandler struct {
	store  *store.GroceryStore
	mirror *viewstate.Mirror
	hub    *ws.Hub
	logger *slog.Logger
}

func NewGroceryHandler(gs *store.GroceryStore, mirror *viewstate.Mirror, hub *ws.Hub, logger *slog.Logger) *GroceryHandler {
	return &GroceryHandler{store: gs, mirror: mirror, hub: hub, logger: logger}
}

type createItemRequest struct {
	Name     string `json:"name"`
	Quantity *int   `json:"quantity"`
	Notes    string `json:"notes"`
}

type updateItemRequest struct {
	Quantity *int   `json:"quantity"`
	Notes    string `json:"notes"`
}

type summaryResponse struct {
	Total     int                 `json:"total"`
	Remaining int                 `json:"remaining"`
	Completed int                 `json:"completed"`
	Summary   string              `json:"summary"`
	Footer    string              `json:"footer"`
	Sections  []viewstate.Section `json:"sections"`
}

func (h *GroceryHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List(r.Context()))
}

func (h *GroceryHandler) Summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, summaryResponse{
		Total:     h.mirror.Len(),
		Remaining: h.mirror.Remaining(),
		Completed: len(h.mirror.Completed()),
		Summary:   h.mirror.Summary(),
		Footer:    h.mirror.Footer(),
		Sections:  h.mirror.Sections(),
	})
}

func (h *GroceryHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Please enter a grocery item")
		return
	}

	quantity := model.DefaultQuantity
	if req.Quantity != nil {
		quantity = model.NormalizeQuantity(*req.Quantity)
	}

	item, err := h.store.Add(r.Context(), req.Name, quantity, req.Notes)
	if err != nil {
		h.fail(w, r, "Failed to add item", err)
		return
	}

	h.mirror.Apply(*item)
	h.hub.Publish(ws.ActionCreated, item.ID, item)
	writeJSON(w, http.StatusCreated, item)
}

func (h *GroceryHandler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.store.ToggleCompletion(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to update item", err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	h.mirror.Apply(*item)
	h.hub.Publish(ws.ActionToggled, item.ID, item)
	writeJSON(w, http.StatusOK, item)
}

func (h *GroceryHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	}

	item, err := h.store.Update(r.Context(), id, model.NormalizeQuantity(*req.Quantity), req.Notes)
	if err != nil {
		h.fail(w, r, "Failed to update item", err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}

	h.mirror.Apply(*item)
	h.hub.Publish(ws.ActionUpdated, item.ID, item)
	writeJSON(w, http.StatusOK, item)
}

func (h *GroceryHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.store.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to delete item", err)
		return
	}

	if canonical, ok := store.CanonicalID(id); ok {
		h.mirror.Remove(canonical)
		h.hub.Publish(ws.ActionDeleted, canonical, nil)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *GroceryHandler) ClearItems(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearAll(r.Context()); err != nil {
		h.fail(w, r, "Failed to clear items", err)
		return
	}

	h.mirror.Clear()
	h.hub.Publish(ws.ActionCleared, "", nil)
	w.WriteHeader(http.StatusNoContent)
}

// fail logs err and writes a human-readable message. Only the status code
// distinguishes failure kinds.
func (h *GroceryHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNameRequired):
		writeError(w, http.StatusBadRequest, "Please enter a grocery item")
		return
	case errors.Is(err, store.ErrStorageUnavailable) && !errors.Is(err, store.ErrWriteFailed):
		status = http.StatusServiceUnavailable
	}

	h.logger.Error(msg,
		"error", err,
		"path", r.URL.Path,
		"request_id", middleware.GetRequestID(r.Context()),
	)
	writeError(w, status, msg)
}
