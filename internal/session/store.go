package session

import (
	"context"
	"time"
)

// RevocationStore tracks revoked session ids. Entries only need to outlive
// the credential's natural expiry, so every revocation carries the remaining
// TTL.
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}
