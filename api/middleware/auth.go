package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/medidrop-backend/api/responses"
	pkgAuth "github.com/angelmondragon/medidrop-backend/pkg/auth"
	"github.com/angelmondragon/medidrop-backend/pkg/auth/session"
	"github.com/angelmondragon/medidrop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/medidrop-backend/pkg/errors"
	"github.com/angelmondragon/medidrop-backend/pkg/logger"
)

// Auth requires a valid, unrevoked bearer token and puts the caller's id,
// role and session on the request context.
func Auth(cfg config.JWTConfig, checker session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	verifier := pkgAuth.NewVerifier(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if err := checkRevoked(ctx, checker, claims.ID); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			var expiresAt time.Time
			if claims.ExpiresAt != nil {
				expiresAt = claims.ExpiresAt.Time
			}
			userID := claims.UserID.String()
			ctx = WithToken(WithRole(WithUserID(ctx, userID), claims.Role), claims.ID, expiresAt)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, userID), string(claims.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token.
func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	return raw, raw != "" && !strings.EqualFold(raw, "bearer")
}

func checkRevoked(ctx context.Context, checker session.AccessSessionChecker, sessionID string) error {
	if checker == nil {
		return nil
	}
	revoked, err := checker.IsRevoked(ctx, sessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
	}
	if revoked {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "session revoked")
	}
	return nil
}
