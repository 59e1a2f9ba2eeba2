package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisStateStoreConsumeIsSingleUse(t *testing.T) {
	store := NewRedisStateStore(newTestRedisClient(t))
	login := LoginState{
		State:        "state-1",
		Nonce:        "nonce-1",
		CodeVerifier: "verifier-1",
		RedirectTo:   "/dashboard",
		ExpiresAt:    time.Now().Add(10 * time.Minute),
	}

	if err := store.Save(context.Background(), login); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := store.Consume(context.Background(), "state-1")
	if err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}
	if got.Nonce != "nonce-1" || got.CodeVerifier != "verifier-1" || got.RedirectTo != "/dashboard" {
		t.Fatalf("unexpected login state: %+v", got)
	}

	if _, err := store.Consume(context.Background(), "state-1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound on replay, got %v", err)
	}
}

func TestRedisStateStoreConsumeUnknownState(t *testing.T) {
	store := NewRedisStateStore(newTestRedisClient(t))

	if _, err := store.Consume(context.Background(), "never-issued"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
}

func TestRedisStateStoreExpiresWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisStateStore(client)
	login := LoginState{
		State:     "state-1",
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	if err := store.Save(context.Background(), login); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	mr.FastForward(11 * time.Minute)

	if _, err := store.Consume(context.Background(), "state-1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound after TTL, got %v", err)
	}
}

func TestRedisStateStoreRejectsAlreadyExpired(t *testing.T) {
	store := NewRedisStateStore(newTestRedisClient(t))
	login := LoginState{
		State:     "state-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	}

	if err := store.Save(context.Background(), login); err == nil {
		t.Fatal("expected error for already-expired state")
	}
}
