package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Validation failure taxonomy. All three map to 401 at the HTTP edge; they
// are distinguished for logging and metrics.
var (
	// ErrInvalid indicates a credential with a bad signature or shape.
	ErrInvalid = errors.New("session credential invalid")

	// ErrExpired indicates a credential past its natural expiry.
	ErrExpired = errors.New("session credential expired")

	// ErrRevoked indicates a credential whose session id was revoked.
	ErrRevoked = errors.New("session revoked")
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager mints and validates the signed credentials carried in the session
// cookie. Validation is entirely local: an HMAC signature check, claim
// checks and a revocation lookup. The identity provider is never consulted.
type Manager struct {
	secret []byte
	ttl    time.Duration
	store  RevocationStore
	now    func() time.Time
}

// NewManager creates a Manager signing with the given secret.
func NewManager(secret []byte, ttl time.Duration, store RevocationStore) *Manager {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		secret: secret,
		ttl:    ttl,
		store:  store,
		now:    time.Now,
	}
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue mints a credential for userID carrying a fresh random session id.
func (m *Manager) Issue(userID uuid.UUID) (string, error) {
	now := m.now()
	claims := sessionClaims{
		SessionID: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session credential: %w", err)
	}
	return signed, nil
}

// Validate checks the credential and returns the owning user id.
func (m *Manager) Validate(ctx context.Context, credential string) (uuid.UUID, error) {
	claims, err := m.parse(credential, true)
	if err != nil {
		return uuid.Nil, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ErrInvalid)
	}

	revoked, err := m.store.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("revocation lookup: %w", err)
	}
	if revoked {
		return uuid.Nil, ErrRevoked
	}

	return userID, nil
}

// Revoke marks the credential's session id unusable until the credential's
// natural expiry. Idempotent, and tolerates already-expired input: a
// credential past its expiry cannot validate anyway, so there is nothing
// left to deny.
func (m *Manager) Revoke(ctx context.Context, credential string) error {
	claims, err := m.parse(credential, false)
	if err != nil {
		return err
	}

	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: credential has no expiry", ErrInvalid)
	}
	remaining := claims.ExpiresAt.Sub(m.now())
	if remaining <= 0 {
		return nil
	}

	if err := m.store.Revoke(ctx, claims.SessionID, remaining); err != nil {
		return fmt.Errorf("store revocation: %w", err)
	}
	return nil
}

// parse verifies the signature and, unless skipped for Revoke, the standard
// claims.
func (m *Manager) parse(credential string, validateClaims bool) (*sessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if !validateClaims {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if claims.SessionID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing session claims", ErrInvalid)
	}
	return claims, nil
}
