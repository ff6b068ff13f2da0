package middleware

import (
	"context"
	"time"

	"github.com/angelmondragon/medidrop-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxRole      contextKey = "actor_role"
	ctxTokenID   contextKey = "token_id"
	ctxExpiresAt contextKey = "token_expires_at"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.ActorRole); ok {
		return v
	}
	return ""
}

// TokenFromContext returns the jti and expiry of the access token that
// authenticated the request.
func TokenFromContext(ctx context.Context) (string, time.Time) {
	if ctx == nil {
		return "", time.Time{}
	}
	id, _ := ctx.Value(ctxTokenID).(string)
	exp, _ := ctx.Value(ctxExpiresAt).(time.Time)
	return id, exp
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the actor role into the context for downstream handlers.
func WithRole(ctx context.Context, role enums.ActorRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

// WithToken records the access token id and expiry on the context.
func WithToken(ctx context.Context, id string, expiresAt time.Time) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxTokenID, id)
	return context.WithValue(ctx, ctxExpiresAt, expiresAt)
}
