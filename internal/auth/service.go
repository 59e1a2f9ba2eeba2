package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// IdentityProvider abstracts the provider client so the HTTP layer and tests
// can substitute a stub for EntraProvider.
type IdentityProvider interface {
	AuthCodeURL(state, nonce, codeVerifier string) string
	Exchange(ctx context.Context, code, codeVerifier string) (string, error)
	VerifyIDToken(ctx context.Context, rawIDToken, expectedNonce string) (*Claims, error)
}

// Service provides authentication business logic: it drives the login flow
// against the identity provider and maintains the user directory.
type Service struct {
	repo     Repository
	provider IdentityProvider
	states   StateStore
	stateTTL time.Duration
	now      func() time.Time
}

// NewService creates a new auth Service.
func NewService(repo Repository, provider IdentityProvider, states StateStore, stateTTL time.Duration) *Service {
	if stateTTL == 0 {
		stateTTL = DefaultStateTTL
	}
	return &Service{
		repo:     repo,
		provider: provider,
		states:   states,
		stateTTL: stateTTL,
		now:      time.Now,
	}
}

// LoginAttempt is everything the HTTP layer needs to start one authorization
// round trip: where to send the browser and the state to bind it with.
type LoginAttempt struct {
	URL   string
	State string
}

// BeginLogin generates the state, nonce and PKCE verifier for a fresh login
// attempt, stores them, and returns the provider authorization URL.
func (s *Service) BeginLogin(ctx context.Context, redirectTo string) (*LoginAttempt, error) {
	state, err := GenerateState()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := GenerateNonce()
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	login := LoginState{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		RedirectTo:   redirectTo,
		ExpiresAt:    s.now().Add(s.stateTTL),
	}
	if err := s.states.Save(ctx, login); err != nil {
		return nil, fmt.Errorf("save login state: %w", err)
	}

	return &LoginAttempt{
		URL:   s.provider.AuthCodeURL(state, nonce, verifier),
		State: state,
	}, nil
}

// CompleteLogin consumes the stored login state, redeems the code and
// validates the resulting ID token against the attempt's nonce, then upserts
// the user. Returns the user and the attempt's redirect target. The state is
// consumed even when a later step fails, so the attempt cannot be replayed.
func (s *Service) CompleteLogin(ctx context.Context, state, code string) (*User, string, error) {
	login, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, "", err
	}

	rawIDToken, err := s.provider.Exchange(ctx, code, login.CodeVerifier)
	if err != nil {
		return nil, "", err
	}

	claims, err := s.provider.VerifyIDToken(ctx, rawIDToken, login.Nonce)
	if err != nil {
		return nil, "", err
	}

	subject := claims.ExternalSubject()
	if subject == "" {
		return nil, "", fmt.Errorf("%w: token has no subject", ErrMalformedToken)
	}

	user, err := s.repo.UpsertUser(ctx, subject, claims.EmailAddress(), claims.FullName())
	if err != nil {
		return nil, "", fmt.Errorf("upsert user: %w", err)
	}

	return &user, login.RedirectTo, nil
}

// FindUser loads a user by id. Missing users return nil without error.
func (s *Service) FindUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.FindUserByID(ctx, id)
}
