package middleware

import (
	"crypto/subtle"
	"net/http"

	"transitions-api-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// APIKeyMiddleware guards admin routes behind the X-API-Key header.
// apiKey is read per request so a config reload takes effect immediately.
// When no key is configured the routes are closed rather than left open.
func APIKeyMiddleware(apiKey func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expected := apiKey()
			path := r.URL.Path

			if expected == "" {
				log.Warnf("%s API_KEY not configured, refusing admin request for %s", logcolors.LogAPIKey, path)
				WriteError(w, r, http.StatusForbidden, "ADMIN_DISABLED", "Admin endpoints are disabled until an API key is configured")
				return
			}

			providedKey := r.Header.Get("X-API-Key")
			if providedKey == "" {
				log.Warnf("%s Missing API key from %s for %s", logcolors.LogAPIKey, r.RemoteAddr, path)
				WriteError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Provide a valid API key via X-API-Key header")
				return
			}

			if subtle.ConstantTimeCompare([]byte(providedKey), []byte(expected)) != 1 {
				log.Warnf("%s Invalid API key from %s for %s", logcolors.LogAPIKey, r.RemoteAddr, path)
				WriteError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "The provided API key is not valid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
