package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS lets browser storefront pages call the order lookup. Admin routes
// carry bearer tokens, so credentials mode stays off.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Retry-After", replayedHeader},
		MaxAge:         300,
	})
}
