package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository implements Repository with in-process storage. Used for
// local development and tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]User
	bySubject map[string]uuid.UUID
	now       func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[uuid.UUID]User),
		bySubject: make(map[string]uuid.UUID),
		now:       time.Now,
	}
}

// UpsertUser creates or refreshes the row for externalSubject. The subject
// index is consulted and updated under one lock, so concurrent first logins
// still converge on a single user.
func (r *MemoryRepository) UpsertUser(ctx context.Context, externalSubject, email, displayName string) (User, error) {
	if externalSubject == "" {
		return User{}, fmt.Errorf("external subject is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if id, ok := r.bySubject[externalSubject]; ok {
		user := r.users[id]
		user.Email = email
		user.DisplayName = displayName
		user.LastLoginAt = now
		user.UpdatedAt = now
		r.users[id] = user
		return user, nil
	}

	user := User{
		ID:              uuid.New(),
		ExternalSubject: externalSubject,
		Email:           email,
		DisplayName:     displayName,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
		LastLoginAt:     now,
	}
	r.users[user.ID] = user
	r.bySubject[externalSubject] = user.ID
	return user, nil
}

// FindUserByID looks up a user by id.
func (r *MemoryRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}
