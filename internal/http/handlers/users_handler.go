package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/diagnosis/libris/internal/domain"
	"github.com/diagnosis/libris/internal/http/response"
	"github.com/diagnosis/libris/internal/utils"
)

func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	if h.requireStaff(w, r, "manage_users") == nil {
		return
	}

	var in struct {
		UserID    string    `json:"user_id"`
		Kind      string    `json:"kind"`
		Name      string    `json:"name"`
		Email     string    `json:"email"`
		Phone     string    `json:"phone"`
		StaffRole string    `json:"staff_role"`
		HireDate  time.Time `json:"hire_date"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}

	kind, ok := domain.ParseUserKind(in.Kind)
	if !ok {
		response.BadRequest(w, "kind must be member or staff")
		return
	}
	in.Email = utils.NormalizeEmail(in.Email)
	in.Phone = utils.NormalizePhone(in.Phone)

	var (
		u   *domain.User
		err error
	)
	switch kind {
	case domain.UserMember:
		u, err = h.svc.RegisterMember(r.Context(), in.UserID, in.Name, in.Email, in.Phone)
	case domain.UserStaff:
		role, ok := domain.ParseStaffRole(in.StaffRole)
		if !ok {
			response.BadRequest(w, "staff_role must be manager or librarian")
			return
		}
		u, err = h.svc.RegisterStaff(r.Context(), in.UserID, in.Name, in.Email, role, in.HireDate)
	}
	if err != nil {
		var ce *domain.ConflictError
		if errors.As(err, &ce) {
			response.WriteError(w, http.StatusConflict, ce.Error(), response.CodeDuplicateID)
			return
		}
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	if h.requireStaff(w, r, "") == nil {
		return
	}
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users, "count": len(users)})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.requireSelfOrStaff(w, r, id, "") == nil {
		return
	}
	u, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if u == nil {
		response.NotFound(w, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) removeUser(w http.ResponseWriter, r *http.Request) {
	if h.requireStaff(w, r, "manage_users") == nil {
		return
	}
	if err := h.svc.RemoveUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.FromError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// payFine records a fine payment. When a payment provider is wired in,
// the charge happens first; the balance is only reduced after the
// provider accepts.
func (h *Handler) payFine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.requireSelfOrStaff(w, r, id, "manage_fines") == nil {
		return
	}

	var in struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if !in.Amount.IsPositive() {
		response.BadRequest(w, "amount must be positive")
		return
	}

	payment, err := h.payments.CreateFinePayment(r.Context(), id, in.Amount)
	if err != nil {
		response.WriteErrorWithDetails(w, http.StatusBadGateway,
			"payment provider rejected the charge", response.CodeInternalError, err.Error())
		return
	}

	u, err := h.svc.PayFine(r.Context(), id, in.Amount)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    u,
		"payment": payment,
	})
}

func (h *Handler) extendMembership(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.requireSelfOrStaff(w, r, id, "manage_users") == nil {
		return
	}

	var in struct {
		Days int `json:"days"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	u, err := h.svc.ExtendMembership(r.Context(), id, in.Days)
	if err != nil {
		response.FromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
