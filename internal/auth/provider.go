package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const exchangeTries = 3

// EntraProvider drives the authorization-code flow against a Microsoft Entra
// External ID tenant and validates the ID tokens it issues.
type EntraProvider struct {
	oauth    *oauth2.Config
	issuer   string
	clientID string
	keys     *KeyCache
	logger   *slog.Logger
	now      func() time.Time
}

// NewEntraProvider discovers the tenant's OIDC metadata and prepares the
// client. The initial signing-key fetch happens here, so a returned provider
// is ready to verify tokens and the server never starts with an empty cache.
func NewEntraProvider(ctx context.Context, issuer, clientID, clientSecret, redirectURL string, logger *slog.Logger, keyOpts ...KeyCacheOption) (*EntraProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", issuer, err)
	}

	var metadata struct {
		JWKSURL string `json:"jwks_uri"`
	}
	if err := provider.Claims(&metadata); err != nil {
		return nil, fmt.Errorf("read provider metadata: %w", err)
	}
	if metadata.JWKSURL == "" {
		return nil, fmt.Errorf("provider metadata for %s has no jwks_uri", issuer)
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}

	keys := NewKeyCache(metadata.JWKSURL, logger, keyOpts...)
	if err := keys.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("initial signing-key fetch: %w", err)
	}

	return &EntraProvider{
		oauth:    config,
		issuer:   issuer,
		clientID: clientID,
		keys:     keys,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Keys exposes the signing-key cache so main can run its TTL refresh loop.
func (p *EntraProvider) Keys() *KeyCache {
	return p.keys
}

// AuthCodeURL builds the provider authorization URL for one login attempt.
// The PKCE challenge is derived from codeVerifier with S256.
func (p *EntraProvider) AuthCodeURL(state, nonce, codeVerifier string) string {
	return p.oauth.AuthCodeURL(
		state,
		oauth2.S256ChallengeOption(codeVerifier),
		oidc.Nonce(nonce),
	)
}

// Exchange redeems the authorization code for the raw ID token. Transient
// network failures are retried a bounded number of times; everything else
// fails immediately through the error taxonomy.
func (p *EntraProvider) Exchange(ctx context.Context, code, codeVerifier string) (string, error) {
	rawIDToken, err := backoff.Retry(ctx, func() (string, error) {
		raw, err := p.exchangeOnce(ctx, code, codeVerifier)
		if err != nil && !errors.Is(err, ErrNetwork) {
			return "", backoff.Permanent(err)
		}
		return raw, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(exchangeTries),
	)
	if err != nil {
		return "", err
	}
	return rawIDToken, nil
}

func (p *EntraProvider) exchangeOnce(ctx context.Context, code, codeVerifier string) (string, error) {
	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return "", classifyExchangeError(err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", fmt.Errorf("%w: token response has no id_token", ErrInvalidResponse)
	}
	return rawIDToken, nil
}

// classifyExchangeError maps transport and token-endpoint failures onto the
// exchange taxonomy. An invalid_grant means the code was already redeemed,
// expired, or bound to a different verifier.
func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return fmt.Errorf("%w: %s", ErrInvalidGrant, retrieveErr.ErrorDescription)
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			return fmt.Errorf("%w: token endpoint returned status %d", ErrNetwork, retrieveErr.Response.StatusCode)
		}
		if retrieveErr.ErrorCode != "" {
			return fmt.Errorf("%w: token endpoint returned %q", ErrInvalidResponse, retrieveErr.ErrorCode)
		}
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
}

// VerifyIDToken checks the token's signature against the key cache, then its
// issuer, audience, validity window and nonce, in that order.
func (p *EntraProvider) VerifyIDToken(ctx context.Context, rawIDToken, expectedNonce string) (*Claims, error) {
	payload, err := p.keys.VerifySignature(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if err := p.validateClaims(claims, expectedNonce); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (p *EntraProvider) validateClaims(claims Claims, expectedNonce string) error {
	if claims.Issuer != p.issuer {
		return fmt.Errorf("%w: token issued by %q", ErrWrongIssuer, claims.Issuer)
	}
	if !claims.Audience.contains(p.clientID) {
		return fmt.Errorf("%w: token audience %v", ErrWrongAudience, []string(claims.Audience))
	}

	now := p.now()
	if claims.ExpiresAt <= 0 || !now.Before(time.Unix(claims.ExpiresAt, 0)) {
		return ErrTokenExpired
	}
	if claims.NotBefore > 0 && now.Before(time.Unix(claims.NotBefore, 0)) {
		return fmt.Errorf("%w: token not valid yet", ErrTokenExpired)
	}

	if expectedNonce != "" && claims.Nonce != expectedNonce {
		return ErrNonceMismatch
	}
	return nil
}
