package auth

import (
	"context"
	"net/http"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/utils"
)

type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Authenticate verifies the bearer token and stores the caller's Identity in
// the request context. A nil revocation checker skips revocation lookups.
func Authenticate(v Verifier, revoked RevocationChecker, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, status, msg := Resolve(r, v, revoked, log)
			if id == nil {
				utils.WriteError(w, status, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Resolve runs the token checks shared by the chi and gin front ends. On
// failure it returns a nil identity with the status and message to send.
func Resolve(r *http.Request, v Verifier, revoked RevocationChecker, log *logger.Logger) (*Identity, int, string) {
	raw, err := ExtractTokenFromRequest(r)
	if err != nil {
		return nil, http.StatusUnauthorized, err.Error()
	}
	id, err := v.Verify(r.Context(), raw)
	if err != nil {
		log.LogSecurity("TOKEN_REJECTED", err.Error())
		return nil, http.StatusUnauthorized, "invalid token"
	}
	if revoked != nil {
		gone, err := revoked.IsRevoked(r.Context(), id.TokenID)
		if err != nil {
			log.Error("AUTH", err.Error())
			return nil, http.StatusServiceUnavailable, "token check unavailable"
		}
		if gone {
			log.LogSecurity("TOKEN_REVOKED", "subject "+id.UserID)
			return nil, http.StatusUnauthorized, "token revoked"
		}
	}
	return id, 0, ""
}

// RequireRole rejects callers that hold none of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !FromContext(r.Context()).HasRole(roles...) {
				utils.WriteError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
