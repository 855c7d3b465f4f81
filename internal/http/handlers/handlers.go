// Package handlers exposes the library directory as a JSON API.
// Authentication is a session token issued by identifier lookup; role
// and permission checks always consult the stored user record so a
// role change or removal takes effect before the token expires.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/libris/internal/domain"
	mw "github.com/diagnosis/libris/internal/http/middleware"
	"github.com/diagnosis/libris/internal/http/response"
	"github.com/diagnosis/libris/internal/platform/payments"
	"github.com/diagnosis/libris/internal/service"
)

type Handler struct {
	svc        *service.LibraryService
	payments   payments.Service
	sessionTTL time.Duration
}

func New(svc *service.LibraryService, pay payments.Service, sessionTTL time.Duration) *Handler {
	return &Handler{
		svc:        svc,
		payments:   pay,
		sessionTTL: sessionTTL,
	}
}

// Routes mounts the v1 API. sessionLimiter throttles token issuance and
// may be nil in tests.
func (h *Handler) Routes(sessionLimiter func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		if sessionLimiter != nil {
			r.With(sessionLimiter).Post("/session", h.createSession)
		} else {
			r.Post("/session", h.createSession)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireSession)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.listItems)
			r.Get("/search", h.searchItems)
			r.Get("/{id}", h.getItem)
			r.Post("/", h.addItem)
			r.Delete("/{id}", h.removeItem)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.registerUser)
			r.Get("/", h.listUsers)
			r.Get("/{id}", h.getUser)
			r.Delete("/{id}", h.removeUser)
			r.Post("/{id}/fines/payments", h.payFine)
			r.Post("/{id}/membership/extensions", h.extendMembership)
		})

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.checkOut)
			r.Get("/", h.listLoans)
			r.Get("/overdue", h.listOverdueLoans)
			r.Post("/{id}/return", h.returnLoanByID)
			r.Post("/{id}/renewals", h.renewLoanByID)
		})
		// The original user+item addressing for circulation.
		r.Post("/returns", h.checkIn)
		r.Post("/renewals", h.renewLoan)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/statistics", h.statisticsReport)
			r.Get("/popular", h.popularReport)
			r.Get("/activity/{user_id}", h.activityReport)
			r.Get("/financial", h.financialReport)
			r.Get("/inventory", h.inventoryReport)
			r.Get("/integrity", h.integrityReport)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/fine-rate", h.getFineRate)
			r.Put("/fine-rate", h.setFineRate)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// sessionUser resolves the authenticated user record. A token for a
// since-removed user is as good as no token.
func (h *Handler) sessionUser(w http.ResponseWriter, r *http.Request) *domain.User {
	claims := mw.SessionClaims(r.Context())
	if claims == nil {
		response.Unauthorized(w, "authentication required")
		return nil
	}
	u, err := h.svc.GetUser(r.Context(), claims.UserID)
	if err != nil {
		response.InternalError(w, "failed to load session user")
		return nil
	}
	if u == nil {
		response.Unauthorized(w, "session user no longer exists")
		return nil
	}
	return u
}

// requireStaff resolves the session user and refuses non-staff. When
// perm is non-empty the staff member also needs that permission.
func (h *Handler) requireStaff(w http.ResponseWriter, r *http.Request, perm string) *domain.User {
	u := h.sessionUser(w, r)
	if u == nil {
		return nil
	}
	if u.Kind != domain.UserStaff {
		response.Forbidden(w, "staff access required")
		return nil
	}
	if perm != "" && !u.HasPermission(perm) {
		response.Forbidden(w, "missing permission: "+perm)
		return nil
	}
	return u
}

// requireSelfOrStaff allows the user acting on their own resource, or a
// staff member (with perm, when named).
func (h *Handler) requireSelfOrStaff(w http.ResponseWriter, r *http.Request, targetUserID, perm string) *domain.User {
	u := h.sessionUser(w, r)
	if u == nil {
		return nil
	}
	if u.ID == targetUserID {
		return u
	}
	if u.Kind != domain.UserStaff {
		response.Forbidden(w, "not your resource")
		return nil
	}
	if perm != "" && !u.HasPermission(perm) {
		response.Forbidden(w, "missing permission: "+perm)
		return nil
	}
	return u
}
