package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocationStore tracks revocations in process memory. Suitable for a
// single instance; multi-instance deployments use the Redis store.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocationStore creates an empty in-memory revocation store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke records the session id until its credential's natural expiry.
func (s *MemoryRevocationStore) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[sessionID] = s.now().Add(ttl)
	return nil
}

// IsRevoked reports whether the session id is currently revoked. Entries
// past their expiry no longer count; the sweeper removes them.
func (s *MemoryRevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiresAt, ok := s.revoked[sessionID]
	if !ok {
		return false, nil
	}
	return !s.now().After(expiresAt), nil
}

// SweepExpired drops entries whose credentials have passed natural expiry
// and reports how many were removed.
func (s *MemoryRevocationStore) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for sessionID, expiresAt := range s.revoked {
		if now.After(expiresAt) {
			delete(s.revoked, sessionID)
			removed++
		}
	}
	return removed
}
