// Package authmw provides HTTP middleware for bearer token authentication.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/linnemanlabs/go-core/log"
)

const prefix = "Bearer "

// BearerToken returns middleware that requires an Authorization header
// carrying the expected bearer token. Tokens are compared in constant time.
// An empty token disables the check and passes every request through.
func BearerToken(token string) func(http.Handler) http.Handler {
	if token == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, prefix) {
				reject(w, r, "missing or malformed authorization header")
				return
			}
			if subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), expected) != 1 {
				reject(w, r, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, reason string) {
	log.FromContext(r.Context()).Warn(r.Context(), "rejected unauthenticated request",
		"reason", reason,
		"path", r.URL.Path,
	)
	w.Header().Set("WWW-Authenticate", `Bearer realm="alarmhook"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + reason + `"}` + "\n"))
}
