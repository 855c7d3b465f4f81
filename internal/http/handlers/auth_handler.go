package handlers

import (
	"net/http"
	"strings"

	"github.com/diagnosis/libris/internal/http/response"
	"github.com/diagnosis/libris/internal/platform/auth"
)

// createSession issues a bearer token for a known user identifier. This
// is lookup-based sign-in: possession of the identifier is the whole
// credential, which is why the endpoint sits behind a rate limiter.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID string `json:"user_id"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		response.BadRequest(w, "user_id is required")
		return
	}

	u, err := h.svc.GetUser(r.Context(), in.UserID)
	if err != nil {
		response.InternalError(w, "failed to look up user")
		return
	}
	if u == nil {
		response.NotFound(w, "unknown user identifier")
		return
	}

	token, err := auth.NewSessionToken(u.ID, u.Name, string(u.Kind), string(u.StaffRole), h.sessionTTL)
	if err != nil {
		response.InternalError(w, "failed to issue session token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": int64(h.sessionTTL.Seconds()),
		"user":       u,
	})
}
