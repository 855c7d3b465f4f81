package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/libris/internal/http/response"
	"github.com/diagnosis/libris/internal/platform/auth"
)

type ctxKey string

const CtxClaims ctxKey = "claims"

// RequireSession authenticates the bearer token and stashes the parsed
// claims in the request context. Role checks happen in the handlers,
// which consult the user record rather than trusting the token alone.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			response.Unauthorized(w, "missing or invalid authorization header")
			return
		}
		raw := strings.TrimPrefix(authz, "Bearer ")
		claims, err := auth.Parse(raw)
		if err != nil {
			response.Unauthorized(w, "invalid session token")
			return
		}
		ctx := context.WithValue(r.Context(), CtxClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionClaims retrieves the claims placed by RequireSession, nil when
// the request skipped authentication.
func SessionClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(CtxClaims).(*auth.Claims)
	return claims
}
