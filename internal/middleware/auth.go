package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/radif/uploader/internal/response"
)

// RequireUploadKey returns middleware that rejects requests whose
// Authorization header does not equal key. An empty key disables the check.
func RequireUploadKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("Authorization")
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				response.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
