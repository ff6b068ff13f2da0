package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/medidrop-backend/pkg/config"
)

func preflight(t *testing.T, app config.AppConfig, origin string) *httptest.ResponseRecorder {
	t.Helper()
	handler := CORS(app)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Idempotency-Key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	app := config.AppConfig{Env: "prod", CORSOrigins: []string{"https://medidrop.app"}}

	rec := preflight(t, app, "https://medidrop.app")
	require.Equal(t, "https://medidrop.app", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = preflight(t, app, "https://evil.example")
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSLocalOriginsOnlyInDev(t *testing.T) {
	rec := preflight(t, config.AppConfig{Env: "prod"}, "http://localhost:5173")
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = preflight(t, config.AppConfig{Env: config.AppEnvDev}, "http://localhost:5173")
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
