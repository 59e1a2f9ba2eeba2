package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const (
	testIssuer   = "https://login.microsoftonline.com/tenant-123/v2.0"
	testClientID = "client-123"
)

// newTestProvider wires an EntraProvider against a local JWKS server with a
// fixed clock, skipping discovery.
func newTestProvider(t *testing.T, key *testSigningKey, now time.Time) *EntraProvider {
	t.Helper()

	server := newJWKSServer(t, key)
	cache := NewKeyCache(server.URL, silentLogger())
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	return &EntraProvider{
		oauth: &oauth2.Config{
			ClientID:    testClientID,
			RedirectURL: "http://localhost:8000/auth/callback",
			Endpoint:    oauth2.Endpoint{AuthURL: "https://auth.test/authorize", TokenURL: "https://auth.test/token"},
			Scopes:      []string{"openid", "email", "profile"},
		},
		issuer:   testIssuer,
		clientID: testClientID,
		keys:     cache,
		logger:   silentLogger(),
		now:      func() time.Time { return now },
	}
}

func validTokenClaims(now time.Time) map[string]any {
	return map[string]any{
		"iss":   testIssuer,
		"aud":   testClientID,
		"exp":   now.Add(time.Hour).Unix(),
		"nbf":   now.Add(-time.Minute).Unix(),
		"iat":   now.Unix(),
		"oid":   "oid-123",
		"sub":   "sub-456",
		"email": "athlete@example.com",
		"name":  "Test Athlete",
		"nonce": "nonce-789",
	}
}

func TestAuthCodeURLCarriesPKCEAndNonce(t *testing.T) {
	key := newTestSigningKey(t, "kid-1")
	provider := newTestProvider(t, key, time.Now())

	verifier := oauth2.GenerateVerifier()
	authURL := provider.AuthCodeURL("state-1", "nonce-1", verifier)

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth URL: %v", err)
	}
	query := parsed.Query()

	if got := query.Get("state"); got != "state-1" {
		t.Fatalf("expected state-1, got %q", got)
	}
	if got := query.Get("nonce"); got != "nonce-1" {
		t.Fatalf("expected nonce-1, got %q", got)
	}
	if got := query.Get("code_challenge_method"); got != "S256" {
		t.Fatalf("expected S256 challenge method, got %q", got)
	}
	if got := query.Get("code_challenge"); got != oauth2.S256ChallengeFromVerifier(verifier) {
		t.Fatalf("challenge does not match verifier, got %q", got)
	}
}

func TestVerifyIDTokenValid(t *testing.T) {
	now := time.Now()
	key := newTestSigningKey(t, "kid-1")
	provider := newTestProvider(t, key, now)

	raw := key.sign(t, validTokenClaims(now))
	claims, err := provider.VerifyIDToken(context.Background(), raw, "nonce-789")
	if err != nil {
		t.Fatalf("VerifyIDToken returned error: %v", err)
	}

	if claims.ExternalSubject() != "oid-123" {
		t.Fatalf("expected oid-123 subject, got %q", claims.ExternalSubject())
	}
	if claims.EmailAddress() != "athlete@example.com" {
		t.Fatalf("unexpected email: %q", claims.EmailAddress())
	}
	if claims.FullName() != "Test Athlete" {
		t.Fatalf("unexpected name: %q", claims.FullName())
	}
}

func TestVerifyIDTokenAcceptsAudienceArray(t *testing.T) {
	now := time.Now()
	key := newTestSigningKey(t, "kid-1")
	provider := newTestProvider(t, key, now)

	tokenClaims := validTokenClaims(now)
	tokenClaims["aud"] = []string{"other-client", testClientID}

	raw := key.sign(t, tokenClaims)
	if _, err := provider.VerifyIDToken(context.Background(), raw, "nonce-789"); err != nil {
		t.Fatalf("VerifyIDToken returned error: %v", err)
	}
}

func TestVerifyIDTokenWrongIssuer(t *testing.T) {
	now := time.Now()
	key := newTestSigningKey(t, "kid-1")
	provider := newTestProvider(t, key, now)

	tokenClaims := validTokenClaims(now)
	tokenClaims["iss"] = "https://login.microsoftonline.com/other-tenant/v2.0"

	raw := key.sign(t, tokenClaims)
	if _, err := provider.VerifyIDToken(context.Background(), raw, "nonce-789"); !errors.Is(err, ErrWrongIssuer) {
		t.Fatalf("expected ErrWrongIssuer, got %v", err)
	}
}

func TestVerifyIDTokenWrongAudience(t *testing.T) {
	now := time.Now()
	key := newTestSigningKey(t, "kid-1")
	provider := newTestProvider(t, key, now)

	tokenClaims := validTokenClaims(now)
	tokenClaims["aud"] = "some-other-client"

	raw := key.sign(t, tokenClaims)
	if _, err := provider.VerifyIDToken(context.Background(), raw, "nonce-789"); !errors.Is(err, ErrWrongAudience) {
		t.Fatalf("expected ErrWrongAudience, got %v", err)
	}
}

func TestVerifyIDTokenExpired(t *testing.T) {
	now := time.Now()
	key := newTestSigningKey(t, "kid-1")
	provider := newTestProvider(t, key, now)

	tokenClaims := validTokenClaims(now)
	tokenClaims["exp"] = now.Add(-time.Second).Unix()

	raw := key.sign(t, tokenClaims)
	if _, err := provider.VerifyIDToken(context.Background(), raw, "nonce-789"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyIDTokenExpiredAtExactInstant(t *testing.T) {
	now := time.Unix(time.Now().Unix(), 0)
	key := newTestSigningKey(t, "kid-1")
	provider := newTestProvider(t, key, now)

	tokenClaims := validTokenClaims(now)
	tokenClaims["exp"] = now.Unix()

	raw := key.sign(t, tokenClaims)
	if _, err := provider.VerifyIDToken(context.Background(), raw, "nonce-789"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected token expiring now to be rejected, got %v", err)
	}
}

func TestVerifyIDTokenNonceMismatch(t *testing.T) {
	now := time.Now()
	key := newTestSigningKey(t, "kid-1")
	provider := newTestProvider(t, key, now)

	raw := key.sign(t, validTokenClaims(now))
	if _, err := provider.VerifyIDToken(context.Background(), raw, "different-nonce"); !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("expected ErrNonceMismatch, got %v", err)
	}
}

func TestVerifyIDTokenBadSignature(t *testing.T) {
	now := time.Now()
	key := newTestSigningKey(t, "kid-1")
	impostor := newTestSigningKey(t, "kid-1")
	provider := newTestProvider(t, key, now)

	raw := impostor.sign(t, validTokenClaims(now))
	if _, err := provider.VerifyIDToken(context.Background(), raw, "nonce-789"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

// newExchangeProvider points the provider's token endpoint at handler.
func newExchangeProvider(t *testing.T, handler http.HandlerFunc) (*EntraProvider, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	key := newTestSigningKey(t, "kid-1")
	provider := newTestProvider(t, key, time.Now())
	// Fixed auth style keeps x/oauth2 from probing the endpoint twice,
	// which would skew the call counts below.
	provider.oauth.Endpoint = oauth2.Endpoint{
		AuthURL:   server.URL + "/authorize",
		TokenURL:  server.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return provider, server
}

func TestExchangeMapsInvalidGrant(t *testing.T) {
	var calls atomic.Int64
	provider, _ := newExchangeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "AADSTS70008: the code has expired",
		})
	})

	_, err := provider.Exchange(context.Background(), "used-code", "verifier")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Fatalf("expected ErrInvalidGrant, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a rejected grant not to be retried, got %d calls", got)
	}
}

func TestExchangeMapsMissingIDToken(t *testing.T) {
	provider, _ := newExchangeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "opaque",
			"token_type":   "Bearer",
		})
	})

	_, err := provider.Exchange(context.Background(), "code", "verifier")
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestExchangeRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int64
	provider, _ := newExchangeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "opaque",
			"token_type":   "Bearer",
			"id_token":     "raw-id-token",
		})
	})

	raw, err := provider.Exchange(context.Background(), "code", "verifier")
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}
	if raw != "raw-id-token" {
		t.Fatalf("unexpected id token: %q", raw)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected one retry after a transient failure, got %d calls", got)
	}
}

func TestExchangeBoundsRetries(t *testing.T) {
	var calls atomic.Int64
	provider, _ := newExchangeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := provider.Exchange(context.Background(), "code", "verifier")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if got := calls.Load(); got != exchangeTries {
		t.Fatalf("expected %d bounded attempts, got %d", exchangeTries, got)
	}
}
