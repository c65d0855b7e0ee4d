// Package auth authenticates callers by bearer token.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	dErrors "idlookup/pkg/domain-errors"
	"idlookup/pkg/platform/httputil"
	"idlookup/pkg/requestcontext"
)

// JWTValidator checks a raw bearer token.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims is the subset of token claims the middleware needs.
type JWTClaims struct {
	CallerID string
	JTI      string
}

// RequireAuth rejects requests without a valid bearer token with 401 and
// otherwise stores the token subject as the caller ID.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reject := func(reason, description string, attrs ...any) {
				attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "reason", reason)
				logger.WarnContext(ctx, "unauthorized request", attrs...)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, description))
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				reject("missing_token", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				reject("invalid_token", "Invalid or expired token", "error", err)
				return
			}
			if claims.CallerID == "" {
				reject("no_subject", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCallerID(ctx, claims.CallerID)))
		})
	}
}
