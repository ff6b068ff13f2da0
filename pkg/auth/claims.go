package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/medidrop-backend/pkg/enums"
)

// AccessTokenPayload is what a token is minted for.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	JTI    string
}

// AccessTokenClaims is the bearer token presented on every protected route.
// The registered jti doubles as the session id that logout revokes.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after signature and time checks.
func (c AccessTokenClaims) Validate() error {
	switch {
	case c.UserID == uuid.Nil:
		return errors.New("user_id claim missing")
	case !userRole(c.Role):
		return fmt.Errorf("role claim %q not allowed", c.Role)
	case c.ID == "":
		return errors.New("jti claim missing")
	}
	return nil
}

// userRole excludes the system actor, which only background jobs act as.
func userRole(role enums.ActorRole) bool {
	return role.IsValid() && role != enums.ActorRoleSystem
}
