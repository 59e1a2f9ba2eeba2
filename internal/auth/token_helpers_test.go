package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testSigningKey is an RSA key pair for minting ID tokens in tests.
type testSigningKey struct {
	private *rsa.PrivateKey
	kid     string
}

func newTestSigningKey(t *testing.T, kid string) *testSigningKey {
	t.Helper()
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return &testSigningKey{private: private, kid: kid}
}

func (k *testSigningKey) publicJWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       &k.private.PublicKey,
		KeyID:     k.kid,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}
}

// sign mints a compact JWS over the given claims with this key's kid header.
func (k *testSigningKey) sign(t *testing.T, claims map[string]any) string {
	t.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: k.private},
		(&jose.SignerOptions{}).WithHeader("kid", k.kid),
	)
	if err != nil {
		t.Fatalf("create signer: %v", err)
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}

	jws, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("sign claims: %v", err)
	}

	raw, err := jws.CompactSerialize()
	if err != nil {
		t.Fatalf("serialize token: %v", err)
	}
	return raw
}

// jwksServer serves a JWKS document and counts fetches. The served key set
// can be swapped mid-test to simulate provider key rotation.
type jwksServer struct {
	*httptest.Server
	fetches atomic.Int64
	keys    atomic.Value
	failing atomic.Bool
}

func newJWKSServer(t *testing.T, keys ...*testSigningKey) *jwksServer {
	t.Helper()

	s := &jwksServer{}
	s.setKeys(keys...)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fetches.Add(1)
		if s.failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		set := s.keys.Load().(jose.JSONWebKeySet)
		if err := json.NewEncoder(w).Encode(set); err != nil {
			t.Errorf("encode jwks: %v", err)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(keys ...*testSigningKey) {
	set := jose.JSONWebKeySet{}
	for _, key := range keys {
		set.Keys = append(set.Keys, key.publicJWK())
	}
	s.keys.Store(set)
}

func (s *jwksServer) fetchCount() int64 {
	return s.fetches.Load()
}
