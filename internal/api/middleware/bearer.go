package middleware

import (
	"net/http"
	"strings"

	"github.com/trafficroute/trafficroute/internal/credentials"
)

const bearerPrefix = "Bearer "

// BearerToken forwards the bearer token of the request as the history
// credential. Requests without a token pass through unchanged: the token
// only decides whether a search is recorded, never whether it is served.
func BearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := bearer(r.Header.Get("Authorization")); token != "" {
			r = r.WithContext(credentials.WithToken(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}

// bearer extracts the token of an Authorization header. The scheme is
// matched case-insensitively.
func bearer(header string) string {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
