package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// UpsertUser creates or refreshes the row for externalSubject in a single
// statement. The unique index on external_subject makes concurrent first
// logins converge on one row; every caller gets that row back via RETURNING.
func (r *PostgresRepository) UpsertUser(ctx context.Context, externalSubject, email, displayName string) (User, error) {
	if externalSubject == "" {
		return User{}, fmt.Errorf("external subject is empty")
	}

	const query = `
		INSERT INTO users (id, external_subject, email, display_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_subject) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			last_login_at = NOW(),
			updated_at = NOW()
		RETURNING id, external_subject, email, display_name, is_active, created_at, updated_at, last_login_at
	`

	var row userRow
	if err := r.db.QueryRowxContext(ctx, query, uuid.New(), externalSubject, email, displayName).StructScan(&row); err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}

	return *row.toUser(), nil
}

// FindUserByID looks up a user by id.
func (r *PostgresRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	const query = `
		SELECT id, external_subject, email, display_name, is_active, created_at, updated_at, last_login_at
		FROM users
		WHERE id = $1
	`

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return row.toUser(), nil
}

// userRow is a database row representation of User.
type userRow struct {
	ID              uuid.UUID `db:"id"`
	ExternalSubject string    `db:"external_subject"`
	Email           string    `db:"email"`
	DisplayName     string    `db:"display_name"`
	IsActive        bool      `db:"is_active"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
	LastLoginAt     time.Time `db:"last_login_at"`
}

func (r *userRow) toUser() *User {
	return &User{
		ID:              r.ID,
		ExternalSubject: r.ExternalSubject,
		Email:           r.Email,
		DisplayName:     r.DisplayName,
		IsActive:        r.IsActive,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		LastLoginAt:     r.LastLoginAt,
	}
}
