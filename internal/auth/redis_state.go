package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginStateKeyPrefix = "endurely:login_state:"

// RedisStateStore persists login states in Redis, so any instance behind a
// load balancer can complete a callback started by another.
type RedisStateStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStateStore creates a state store backed by the given Redis client.
func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{
		client: client,
		now:    time.Now,
	}
}

// Save stores the login state with a TTL matching its expiry.
func (s *RedisStateStore) Save(ctx context.Context, state LoginState) error {
	if state.State == "" {
		return fmt.Errorf("login state value is empty")
	}

	ttl := state.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("login state already expired")
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal login state: %w", err)
	}

	if err := s.client.Set(ctx, loginStateKeyPrefix+state.State, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store login state: %w", err)
	}
	return nil
}

// Consume removes and returns the stored state. GETDEL makes the take-and-
// delete atomic, so two racing callbacks can never both succeed.
func (s *RedisStateStore) Consume(ctx context.Context, state string) (*LoginState, error) {
	raw, err := s.client.GetDel(ctx, loginStateKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume login state: %w", err)
	}

	var stored LoginState
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("decode login state: %w", err)
	}
	return &stored, nil
}
