package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/phrazzld/ortho-api/internal/api/shared"
)

// CORS allows cross-origin requests from any origin. Credentials are not
// allowed, since browsers reject them alongside a wildcard origin.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", shared.TraceIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", shared.TraceIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
