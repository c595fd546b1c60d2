package httpserver

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// bearerAuth verifies an HS256-signed bearer token on the ingest route. The
// webhook forwarder and this service share the secret; claims beyond validity
// are not inspected.
func bearerAuth(secret string) func(next http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				respondError(w, http.StatusUnauthorized, "PIPEWATCH_AUTH", "bearer token required")
				return
			}
			raw := strings.TrimSpace(authz[7:])
			token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				respondError(w, http.StatusUnauthorized, "PIPEWATCH_AUTH", "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
