package auth

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for user persistence.
type Repository interface {
	// UpsertUser creates or refreshes the row for externalSubject. Safe under
	// concurrent first logins: every caller observes the same single user.
	UpsertUser(ctx context.Context, externalSubject, email, displayName string) (User, error)

	// FindUserByID returns nil without error when no user exists.
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
}
