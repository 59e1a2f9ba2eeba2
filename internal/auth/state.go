package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// LoginState carries the per-attempt secrets bound to a single authorization
// round trip. It is created at /auth/login and consumed at /auth/callback.
type LoginState struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"code_verifier"`
	RedirectTo   string    `json:"redirect_to,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// StateStore persists login states between the login redirect and the
// provider callback. Consume is an atomic take-and-delete so each state
// authorizes at most one callback.
type StateStore interface {
	Save(ctx context.Context, state LoginState) error
	Consume(ctx context.Context, state string) (*LoginState, error)
}

// DefaultStateTTL bounds how long a login attempt may take.
const DefaultStateTTL = 10 * time.Minute

// GenerateState generates a cryptographically secure random state string.
func GenerateState() (string, error) {
	return randomURLSafe(32)
}

// GenerateNonce generates a cryptographically secure random nonce string.
func GenerateNonce() (string, error) {
	return randomURLSafe(32)
}

func randomURLSafe(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// MemoryStateStore keeps login states in process memory. Suitable for local
// development and single-instance deployments.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]LoginState
	now    func() time.Time
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]LoginState),
		now:    time.Now,
	}
}

// Save stores the login state until it is consumed or expires.
func (s *MemoryStateStore) Save(ctx context.Context, state LoginState) error {
	if state.State == "" {
		return fmt.Errorf("login state value is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.State] = state
	return nil
}

// Consume removes and returns the stored state. Unknown, already-consumed and
// expired states all report ErrStateNotFound.
func (s *MemoryStateStore) Consume(ctx context.Context, state string) (*LoginState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.states[state]
	if !ok {
		return nil, ErrStateNotFound
	}
	delete(s.states, state)

	if s.now().After(stored.ExpiresAt) {
		return nil, ErrStateNotFound
	}
	return &stored, nil
}

// SweepExpired drops expired states and reports how many were removed.
func (s *MemoryStateStore) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, stored := range s.states {
		if now.After(stored.ExpiresAt) {
			delete(s.states, key)
			removed++
		}
	}
	return removed
}
