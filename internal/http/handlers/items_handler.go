package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/http/response"
	"github.com/diagnosis/libris/internal/service"
)

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	if h.sessionUser(w, r) == nil {
		return
	}

	var kind domain.ItemKind
	if t := r.URL.Query().Get("type"); t != "" {
		parsed, ok := domain.ParseItemKind(t)
		if !ok {
			response.BadRequest(w, "type must be book, magazine, or dvd")
			return
		}
		kind = parsed
	}
	availableOnly := r.URL.Query().Get("available") == "true"

	items, err := h.svc.ListItems(r.Context(), kind, availableOnly)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}

func (h *Handler) searchItems(w http.ResponseWriter, r *http.Request) {
	if h.sessionUser(w, r) == nil {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		response.BadRequest(w, "q is required")
		return
	}
	items, err := h.svc.SearchItems(r.Context(), q)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	if h.sessionUser(w, r) == nil {
		return
	}
	id := chi.URLParam(r, "id")
	it, err := h.svc.GetItem(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if it == nil {
		response.NotFound(w, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	staff := h.requireStaff(w, r, "")
	if staff == nil {
		return
	}
	if !staff.CanManageInventory() {
		response.Forbidden(w, "inventory management permission required")
		return
	}

	var in service.AddItemInput
	if !decodeJSON(w, r, &in) {
		return
	}
	it, err := h.svc.AddItem(r.Context(), in)
	if err != nil {
		var ce *domain.ConflictError
		if errors.As(err, &ce) {
			response.WriteError(w, http.StatusConflict, ce.Error(), response.CodeDuplicateID)
			return
		}
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	staff := h.requireStaff(w, r, "")
	if staff == nil {
		return
	}
	if !staff.CanManageInventory() {
		response.Forbidden(w, "inventory management permission required")
		return
	}

	if err := h.svc.RemoveItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.FromError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
