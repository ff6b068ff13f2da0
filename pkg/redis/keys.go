package redis

import "strings"

const (
	keyNamespace      = "md"
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	lockPrefix        = "lock"
	sessionPrefix     = "session"
)

// IdempotencyKey namespaces a client Idempotency-Key under its request scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return buildKey(idempotencyPrefix, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return buildKey(rateLimitPrefix, scope)
}

// LockKey builds a lease key, e.g. LockKey("cron-worker", "prod").
func (c *Client) LockKey(parts ...string) string {
	return buildKey(append([]string{lockPrefix}, parts...)...)
}

// RevokedSessionKey marks an access token id as logged out.
func (c *Client) RevokedSessionKey(accessID string) string {
	return buildKey(sessionPrefix, "revoked", accessID)
}

// buildKey joins non-empty parts under the md: namespace.
func buildKey(parts ...string) string {
	clean := make([]string, 0, len(parts)+1)
	clean = append(clean, keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			clean = append(clean, part)
		}
	}
	return strings.Join(clean, ":")
}
