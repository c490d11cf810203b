package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authenticator guards the location endpoints with the static API token.
// Generic clients and the bulk tooling send it as a bearer token; the
// tracker app only speaks HTTP basic auth, so the token is also accepted as
// a basic auth password regardless of username.
func (a *API) authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
			if tokenEqual(bearer, a.token) {
				next.ServeHTTP(w, r)
				return
			}
		}
		if _, password, ok := r.BasicAuth(); ok && tokenEqual(password, a.token) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, ErrUnauthorized)
	})
}

func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
