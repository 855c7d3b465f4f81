package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/diagnosis/libris/internal/http/response"
)

func (h *Handler) getFineRate(w http.ResponseWriter, r *http.Request) {
	if h.requireStaff(w, r, "system_admin") == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"daily_fine_rate": h.svc.DailyFineRate().StringFixed(2),
	})
}

// setFineRate changes the directory's daily fine rate. Only returns
// processed after the change see the new rate.
func (h *Handler) setFineRate(w http.ResponseWriter, r *http.Request) {
	if h.requireStaff(w, r, "system_admin") == nil {
		return
	}

	var in struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.svc.SetDailyFineRate(r.Context(), in.Rate); err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"daily_fine_rate": h.svc.DailyFineRate().StringFixed(2),
	})
}
