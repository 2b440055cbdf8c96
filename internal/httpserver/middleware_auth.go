package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	apierrors "github.com/pinionos/x402-client/internal/errors"
)

// adminAuth protects operator endpoints with a bearer key. With no key
// configured the endpoints are open; the server binds to loopback by default.
func adminAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			expected := "Bearer " + apiKey
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(expected)) != 1 {
				resp := apierrors.NewErrorResponse(apierrors.ErrCodeUnauthorized, "Invalid or missing admin API key", nil)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(apierrors.ErrCodeUnauthorized.HTTPStatus())
				_ = json.NewEncoder(w).Encode(resp)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
