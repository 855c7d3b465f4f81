package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/http/response"
)

// checkOut creates a loan. Members check out for themselves; acting on
// another user's behalf needs the check_out_items permission.
func (h *Handler) checkOut(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"user_id"`
		ItemID string `json:"item_id"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.UserID == "" || in.ItemID == "" {
		response.BadRequest(w, "user_id and item_id are required")
		return
	}
	if h.requireSelfOrStaff(w, r, in.UserID, "check_out_items") == nil {
		return
	}

	res, err := h.svc.CheckOutItem(r.Context(), in.UserID, in.ItemID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if !res.Success {
		writeRefusal(w, res.Message, response.CodeBorrowDenied)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// checkIn is the user+item addressed return form.
func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"user_id"`
		ItemID string `json:"item_id"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.UserID == "" || in.ItemID == "" {
		response.BadRequest(w, "user_id and item_id are required")
		return
	}
	if h.requireSelfOrStaff(w, r, in.UserID, "check_in_items") == nil {
		return
	}

	res, err := h.svc.CheckInItem(r.Context(), in.UserID, in.ItemID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if !res.Success {
		writeRefusal(w, res.Message, response.CodeNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) renewLoan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"user_id"`
		ItemID string `json:"item_id"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.UserID == "" || in.ItemID == "" {
		response.BadRequest(w, "user_id and item_id are required")
		return
	}
	if h.requireSelfOrStaff(w, r, in.UserID, "") == nil {
		return
	}

	res, err := h.svc.RenewLoan(r.Context(), in.UserID, in.ItemID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if !res.Success {
		writeRefusal(w, res.Message, response.CodeRenewalDenied)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) returnLoanByID(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.authorizeLoan(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ReturnLoan(r.Context(), loan.ID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) renewLoanByID(w http.ResponseWriter, r *http.Request) {
	loan, ok := h.authorizeLoan(w, r)
	if !ok {
		return
	}
	res, err := h.svc.RenewLoanByID(r.Context(), loan.ID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if !res.Success {
		writeRefusal(w, res.Message, response.CodeRenewalDenied)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// authorizeLoan resolves the {id} loan and checks the caller may act on
// it: the borrower themselves, or staff.
func (h *Handler) authorizeLoan(w http.ResponseWriter, r *http.Request) (*domain.Loan, bool) {
	loan, err := h.svc.GetLoan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, err)
		return nil, false
	}
	if loan == nil {
		response.NotFound(w, "loan not found")
		return nil, false
	}
	if h.requireSelfOrStaff(w, r, loan.UserID, "") == nil {
		return nil, false
	}
	return loan, true
}

func (h *Handler) listLoans(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		// Without a filter this is the whole directory's loan set.
		if h.requireStaff(w, r, "") == nil {
			return
		}
	} else if h.requireSelfOrStaff(w, r, userID, "") == nil {
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	var (
		loans []*domain.Loan
		err   error
	)
	if userID == "" {
		loans, err = h.svc.GetAllLoans(r.Context(), activeOnly)
	} else {
		loans, err = h.svc.GetUserLoans(r.Context(), userID, activeOnly)
	}
	if err != nil {
		response.FromError(w, err)
		return
	}

	out := make([]loanView, 0, len(loans))
	for _, l := range loans {
		out = append(out, loanView{Loan: l, Status: h.svc.LoanStatus(l)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": out, "count": len(out)})
}

func (h *Handler) listOverdueLoans(w http.ResponseWriter, r *http.Request) {
	if h.requireStaff(w, r, "") == nil {
		return
	}
	loans, err := h.svc.GetOverdueLoans(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	out := make([]loanView, 0, len(loans))
	for _, l := range loans {
		out = append(out, loanView{Loan: l, Status: h.svc.LoanStatus(l)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": out, "count": len(out)})
}

// loanView decorates a loan with its rendered display status.
type loanView struct {
	*domain.Loan
	Status string `json:"status"`
}

// writeRefusal maps a business refusal message onto the error envelope:
// missing references are 404s, everything else is a 409 with the
// operation's refusal code.
func writeRefusal(w http.ResponseWriter, message, code string) {
	if strings.Contains(message, "not found") || strings.Contains(message, "No active loan") {
		response.NotFound(w, message)
		return
	}
	response.WriteError(w, http.StatusConflict, message, code)
}
