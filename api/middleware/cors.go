package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/medidrop-backend/pkg/config"
)

// Local frontend dev servers, allowed only in the dev environment.
var devOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// CORS allows browser calls from the configured origins. With none
// configured no CORS headers are sent.
func CORS(app config.AppConfig) func(http.Handler) http.Handler {
	origins := slices.Clone(app.CORSOrigins)
	if app.IsDev() {
		origins = append(origins, devOrigins...)
	}
	if len(origins) == 0 {
		// cors treats an empty list as "allow all"
		return func(next http.Handler) http.Handler { return next }
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, replayedHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
