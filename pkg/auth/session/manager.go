// Package session tracks logged-out access tokens. Tokens are stateless JWTs,
// so logout records the token's jti in Redis until the token would have
// expired on its own.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxRevocation bounds the marker TTL for tokens without an expiry.
const maxRevocation = 24 * time.Hour

var errNoAccessID = errors.New("access id is required")

// RevocationStore is the Redis surface the manager writes through.
type RevocationStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	RevokedSessionKey(accessID string) string
}

// AccessSessionChecker is the read side used by the auth middleware.
type AccessSessionChecker interface {
	IsRevoked(ctx context.Context, accessID string) (bool, error)
}

type Manager struct {
	store RevocationStore
	now   func() time.Time
}

func NewManager(store RevocationStore) (*Manager, error) {
	if store == nil {
		return nil, errors.New("revocation store is required")
	}
	return &Manager{store: store, now: time.Now}, nil
}

// Revoke blocks accessID until expiresAt. Already-expired tokens need no
// marker.
func (m *Manager) Revoke(ctx context.Context, accessID string, expiresAt time.Time) error {
	accessID = strings.TrimSpace(accessID)
	if accessID == "" {
		return errNoAccessID
	}
	ttl := maxRevocation
	if !expiresAt.IsZero() {
		ttl = min(expiresAt.Sub(m.now()), maxRevocation)
	}
	if ttl <= 0 {
		return nil
	}
	return m.store.Set(ctx, m.store.RevokedSessionKey(accessID), m.now().UTC().Format(time.RFC3339), ttl)
}

func (m *Manager) IsRevoked(ctx context.Context, accessID string) (bool, error) {
	accessID = strings.TrimSpace(accessID)
	if accessID == "" {
		return false, errNoAccessID
	}
	_, err := m.store.Get(ctx, m.store.RevokedSessionKey(accessID))
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}
