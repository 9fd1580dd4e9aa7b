// Package authmw guards the ticket API with a static bearer token.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/linnemanlabs/go-core/log"
)

const challenge = `Bearer realm="switchboard"`

// Guard returns middleware requiring token on every request. An empty token
// disables authentication and the returned middleware passes requests
// through untouched. Rejections are logged at warn level without the
// presented credential.
func Guard(token string, logger log.Logger) func(http.Handler) http.Handler {
	if token == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	if logger == nil {
		logger = log.Nop()
	}

	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				logger.Warn(r.Context(), "rejected request without bearer token", "path", r.URL.Path)
				deny(w, `{"error":"missing or malformed authorization header"}`)
				return
			}

			if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				logger.Warn(r.Context(), "rejected request with invalid token", "path", r.URL.Path)
				deny(w, `{"error":"invalid token"}`)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearer extracts the credential of a Bearer authorization header. The
// scheme is case-insensitive.
func bearer(header string) (string, bool) {
	scheme, cred, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	cred = strings.TrimSpace(cred)
	return cred, cred != ""
}

func deny(w http.ResponseWriter, body string) {
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, body, http.StatusUnauthorized)
}
