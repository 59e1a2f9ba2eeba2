package auth

import "errors"

// ID-token verification failures. The middleware and the callback handler
// dispatch on these with errors.Is; all of them map to 401 at the HTTP edge.
var (
	// ErrMalformedToken indicates the token could not be parsed at all.
	ErrMalformedToken = errors.New("id token malformed")

	// ErrBadSignature indicates the signature does not verify against any
	// known provider key.
	ErrBadSignature = errors.New("id token signature invalid")

	// ErrTokenExpired indicates the token is outside its validity window.
	ErrTokenExpired = errors.New("id token expired")

	// ErrWrongAudience indicates the token was issued for another client.
	ErrWrongAudience = errors.New("id token audience mismatch")

	// ErrWrongIssuer indicates the token was issued by another tenant.
	ErrWrongIssuer = errors.New("id token issuer mismatch")

	// ErrNonceMismatch indicates the token does not belong to this login
	// attempt.
	ErrNonceMismatch = errors.New("id token nonce mismatch")
)

// Authorization-code exchange failures.
var (
	// ErrInvalidGrant indicates the code was already used, expired, or the
	// PKCE verifier did not match. Never retried.
	ErrInvalidGrant = errors.New("authorization code rejected")

	// ErrNetwork indicates the provider was unreachable or timed out.
	// Transient; the exchange retries these a bounded number of times.
	ErrNetwork = errors.New("identity provider unreachable")

	// ErrInvalidResponse indicates the provider answered with something the
	// flow cannot use, such as a token response without an ID token.
	ErrInvalidResponse = errors.New("identity provider response invalid")
)

// ErrStateNotFound indicates a callback presented a state value that was
// never issued, already consumed, or expired.
var ErrStateNotFound = errors.New("login state not found")
