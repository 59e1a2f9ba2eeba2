package auth

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated user in the system.
type User struct {
	ID              uuid.UUID `json:"id"`
	ExternalSubject string    `json:"-"`
	Email           string    `json:"email"`
	DisplayName     string    `json:"display_name"`
	IsActive        bool      `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"-"`
	LastLoginAt     time.Time `json:"last_login_at"`
}

// Fixed identity every request resolves to when authentication is disabled.
const (
	DefaultUserSubject = "dev-user-123"
	DefaultUserEmail   = "dev@example.com"
	DefaultUserName    = "Development User"
)

// Claims contains the relevant claims from an Entra ID token.
type Claims struct {
	Subject           string        `json:"sub"`
	ObjectID          string        `json:"oid"`
	Email             string        `json:"email"`
	PreferredUsername string        `json:"preferred_username"`
	UPN               string        `json:"upn"`
	UniqueName        string        `json:"unique_name"`
	Name              string        `json:"name"`
	Nonce             string        `json:"nonce"`
	Issuer            string        `json:"iss"`
	Audience          audienceClaim `json:"aud"`
	ExpiresAt         int64         `json:"exp"`
	NotBefore         int64         `json:"nbf"`
	IssuedAt          int64         `json:"iat"`
}

// ExternalSubject returns the stable provider-side identifier for the user.
// Entra's oid claim survives app re-registration, unlike sub.
func (c Claims) ExternalSubject() string {
	if c.ObjectID != "" {
		return c.ObjectID
	}
	return c.Subject
}

// EmailAddress returns the first populated email-bearing claim. Entra tenants
// differ in which of these they emit.
func (c Claims) EmailAddress() string {
	for _, candidate := range []string{c.Email, c.PreferredUsername, c.UPN, c.UniqueName} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// FullName returns the display name, falling back to the email address.
func (c Claims) FullName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.EmailAddress()
}

// audienceClaim accepts the aud claim as either a single string or an array.
type audienceClaim []string

func (a *audienceClaim) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audienceClaim{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = audienceClaim(many)
	return nil
}

func (a audienceClaim) contains(clientID string) bool {
	for _, aud := range a {
		if aud == clientID {
			return true
		}
	}
	return false
}
