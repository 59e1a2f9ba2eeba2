package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/time/rate"
)

const (
	defaultKeyTTL   = 1 * time.Hour
	keyFetchTimeout = 10 * time.Second
	keyFetchTries   = 3

	// Forced refreshes triggered by unknown key ids are rate limited so a
	// stream of garbage tokens cannot turn into a fetch storm.
	missRefreshInterval = 1 * time.Minute

	maxJWKSBody = 1 << 20
)

// KeyRefreshRecorder receives the outcome of each JWKS refresh.
type KeyRefreshRecorder interface {
	RecordKeyRefresh(outcome string)
}

// KeyCache holds the provider's signing keys in memory so ID-token signatures
// verify without a network round trip. Refreshes build a complete replacement
// set before swapping it in; a failed refresh leaves the previous set serving.
type KeyCache struct {
	jwksURL    string
	httpClient *http.Client
	ttl        time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    KeyRefreshRecorder
	now        func() time.Time

	mu        sync.RWMutex
	keys      map[string]jose.JSONWebKey
	fetchedAt time.Time
}

// KeyCacheOption configures a KeyCache.
type KeyCacheOption func(*KeyCache)

// WithKeyCacheHTTPClient overrides the HTTP client used for JWKS fetches.
func WithKeyCacheHTTPClient(client *http.Client) KeyCacheOption {
	return func(c *KeyCache) {
		c.httpClient = client
	}
}

// WithKeyCacheTTL overrides how long a fetched key set is considered fresh.
func WithKeyCacheTTL(ttl time.Duration) KeyCacheOption {
	return func(c *KeyCache) {
		c.ttl = ttl
	}
}

// WithKeyCacheMetrics records refresh outcomes on the given recorder.
func WithKeyCacheMetrics(rec KeyRefreshRecorder) KeyCacheOption {
	return func(c *KeyCache) {
		c.metrics = rec
	}
}

// NewKeyCache creates an empty cache for the given JWKS endpoint. Callers
// must Refresh once before verifying tokens; NewEntraProvider does this.
func NewKeyCache(jwksURL string, logger *slog.Logger, opts ...KeyCacheOption) *KeyCache {
	c := &KeyCache{
		jwksURL:    jwksURL,
		httpClient: &http.Client{Timeout: keyFetchTimeout},
		ttl:        defaultKeyTTL,
		limiter:    rate.NewLimiter(rate.Every(missRefreshInterval), 1),
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh fetches the JWKS and atomically replaces the cached set.
func (c *KeyCache) Refresh(ctx context.Context) error {
	keys, err := c.fetch(ctx)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordKeyRefresh("failure")
		}
		return err
	}

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = c.now()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordKeyRefresh("success")
	}
	c.logger.Debug("signing keys refreshed", slog.Int("keys", len(keys)))
	return nil
}

// Run refreshes the key set on its TTL until ctx is cancelled. Lookups
// already refresh stale sets on demand; this keeps the cache warm so requests
// rarely pay for a fetch.
func (c *KeyCache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("scheduled signing key refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// VerifySignature checks rawToken's signature against the cached keys and
// returns the raw claims payload. An unknown kid triggers at most one
// rate-limited refresh before the token is rejected.
func (c *KeyCache) VerifySignature(ctx context.Context, rawToken string) ([]byte, error) {
	jws, err := jose.ParseSigned(rawToken, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if len(jws.Signatures) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one signature", ErrMalformedToken)
	}

	kid := jws.Signatures[0].Header.KeyID
	key, ok := c.lookup(ctx, kid)
	if !ok {
		return nil, fmt.Errorf("%w: no key for kid %q", ErrBadSignature, kid)
	}

	payload, err := jws.Verify(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return payload, nil
}

// lookup returns the key for kid, refreshing first when the set is stale or
// the kid is unknown. Miss-driven refreshes go through the rate limiter; TTL
// refreshes always run.
func (c *KeyCache) lookup(ctx context.Context, kid string) (jose.JSONWebKey, bool) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	stale := c.now().Sub(c.fetchedAt) > c.ttl
	c.mu.RUnlock()

	if ok && !stale {
		return key, true
	}

	if stale || c.limiter.Allow() {
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("signing key refresh failed", slog.String("error", err.Error()))
		}
	}

	c.mu.RLock()
	key, ok = c.keys[kid]
	c.mu.RUnlock()
	return key, ok
}

func (c *KeyCache) fetch(ctx context.Context) (map[string]jose.JSONWebKey, error) {
	keys, err := backoff.Retry(ctx, func() (map[string]jose.JSONWebKey, error) {
		return c.fetchOnce(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(keyFetchTries),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch signing keys: %w", err)
	}
	return keys, nil
}

func (c *KeyCache) fetchOnce(ctx context.Context) (map[string]jose.JSONWebKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jwksURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build jwks request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBody))
	if err != nil {
		return nil, fmt.Errorf("read jwks response: %w", err)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode jwks: %w", err))
	}

	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, key := range set.Keys {
		if key.KeyID != "" && key.Valid() {
			keys[key.KeyID] = key
		}
	}
	if len(keys) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("jwks contains no usable keys"))
	}
	return keys, nil
}
