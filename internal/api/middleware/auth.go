// Package middleware — Bearer JWT auth for the protected route group.
// Reads Authorization: Bearer <token>, verifies it, injects the caller
// identity into context.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clinico/clinico/internal/api/ctxkeys"
	pkgauth "github.com/clinico/clinico/pkg/auth"
)

// Auth returns a middleware that validates the Bearer token with signer and
// injects ctxkeys.UserID. Applied to all /api/v1/* routes.
func Auth(signer *pkgauth.TokenSigner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractBearerToken(r)
			if tokenString == "" {
				writeUnauthorized(w, "missing or invalid Authorization header")
				return
			}

			claims, err := signer.Verify(tokenString)
			if err != nil {
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := ctxkeys.WithValue(r.Context(), ctxkeys.UserID, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken pulls the token from "Authorization: Bearer <token>".
// Returns empty on a missing header, wrong scheme, or empty token.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// writeUnauthorized writes a 401 JSON response, same shape as the handlers'
// writeError.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
