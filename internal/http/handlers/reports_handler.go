package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/libris/internal/http/response"
)

func (h *Handler) statisticsReport(w http.ResponseWriter, r *http.Request) {
	if h.requireStaff(w, r, "") == nil {
		return
	}
	stats, err := h.svc.GetSystemStatistics(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) popularReport(w http.ResponseWriter, r *http.Request) {
	if h.requireStaff(w, r, "") == nil {
		return
	}
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			response.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	top, err := h.svc.GetPopularItems(r.Context(), limit)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": top, "count": len(top)})
}

func (h *Handler) activityReport(w http.ResponseWriter, r *http.Request) {
	staff := h.requireStaff(w, r, "")
	if staff == nil {
		return
	}
	if !staff.CanViewMemberActivity() {
		response.Forbidden(w, "member history permission required")
		return
	}
	act, err := h.svc.GetMemberActivity(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (h *Handler) financialReport(w http.ResponseWriter, r *http.Request) {
	if h.requireStaff(w, r, "") == nil {
		return
	}
	rep, err := h.svc.GetFinancialReport(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) inventoryReport(w http.ResponseWriter, r *http.Request) {
	if h.requireStaff(w, r, "") == nil {
		return
	}
	lines, err := h.svc.GetInventoryReport(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"inventory": lines})
}

func (h *Handler) integrityReport(w http.ResponseWriter, r *http.Request) {
	if h.requireStaff(w, r, "") == nil {
		return
	}
	rep, err := h.svc.ValidateIntegrity(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
