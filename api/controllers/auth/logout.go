package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/medidrop-backend/api/middleware"
	"github.com/angelmondragon/medidrop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

// Revoker invalidates an access token id until it expires.
type Revoker interface {
	Revoke(ctx context.Context, accessID string, expiresAt time.Time) error
}

// Logout revokes the access token used for this request.
func Logout(revoker Revoker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if revoker == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session manager unavailable"))
			return
		}

		jti, expiresAt := middleware.TokenFromContext(r.Context())
		if jti == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
			return
		}

		if err := revoker.Revoke(r.Context(), jti, expiresAt); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session"))
			return
		}

		if logg != nil {
			logg.Info(r.Context(), "auth.logout")
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
