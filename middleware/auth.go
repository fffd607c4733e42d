// Package middleware holds HTTP middleware for the validator's admin surface.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"
)

// Auth requires "Authorization: Bearer <token>" on every path except those in
// bypass. An empty token disables the check.
func Auth(token string, bypass ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The pubsub endpoint checks its own query token.
			if slices.Contains(bypass, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			scheme, credential, ok := strings.Cut(authHeader, " ")
			if !ok || scheme != "Bearer" {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(credential), []byte(token)) != 1 {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
