package model

import (
	"strings"
	"time"
)

// Role is the coarse authorization level stored on users.role.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// ParseRole maps free-form input onto a known role.  Unknown or empty values
// fall back to RoleClient.
func ParseRole(s string) Role {
	if Role(strings.ToLower(strings.TrimSpace(s))) == RoleAdmin {
		return RoleAdmin
	}
	return RoleClient
}

// Valid reports whether r is one of the two supported roles.
func (r Role) Valid() bool { return r == RoleClient || r == RoleAdmin }

// AuthProvider records how an account authenticates.
type AuthProvider string

const (
	ProviderLocal    AuthProvider = "local"
	ProviderExternal AuthProvider = "external"
)

// User represents a row of the `users` table.
//
// Fields:
//
//	ID              – primary key identifier of the user.
//	Email           – unique, normalized (trimmed, lower-cased) address.
//	PasswordHash    – bcrypt hash; empty when the account only has an external identity.
//	FullName        – display name.
//	AvatarURL       – display picture.
//	Role            – client or admin.
//	IsActive        – deactivated accounts fail every authentication path.
//	AuthProvider    – local or external.
//	ExternalID      – subject from the identity provider; empty when unlinked.
//	EmailVerified   – set from the identity provider's claim.
//	NewsletterOptIn – unrelated preference, updatable at login.
//	CreatedAt       – timestamp of creation.
type User struct {
	ID              uint64       // users.id
	Email           string       // users.email
	PasswordHash    string       // users.password_hash (nullable)
	FullName        string       // users.full_name
	AvatarURL       string       // users.avatar_url (nullable)
	Role            Role         // users.role
	IsActive        bool         // users.is_active
	AuthProvider    AuthProvider // users.auth_provider
	ExternalID      string       // users.external_id (nullable, unique)
	EmailVerified   bool         // users.email_verified
	NewsletterOptIn bool         // users.newsletter_opt_in
	CreatedAt       time.Time    // users.created_at
}

// HasPassword reports whether the user can authenticate locally.
func (u User) HasPassword() bool { return u.PasswordHash != "" }

// SafeUser is the projection of User that may leave the service.  It never
// carries the password hash.
type SafeUser struct {
	ID              uint64       `json:"id"`
	Email           string       `json:"email"`
	FullName        string       `json:"full_name"`
	AvatarURL       string       `json:"avatar_url,omitempty"`
	Role            Role         `json:"role"`
	IsActive        bool         `json:"is_active"`
	AuthProvider    AuthProvider `json:"auth_provider"`
	EmailVerified   bool         `json:"email_verified"`
	NewsletterOptIn bool         `json:"newsletter_opt_in"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Safe returns the public projection of u.
func (u User) Safe() SafeUser {
	return SafeUser{
		ID:              u.ID,
		Email:           u.Email,
		FullName:        u.FullName,
		AvatarURL:       u.AvatarURL,
		Role:            u.Role,
		IsActive:        u.IsActive,
		AuthProvider:    u.AuthProvider,
		EmailVerified:   u.EmailVerified,
		NewsletterOptIn: u.NewsletterOptIn,
		CreatedAt:       u.CreatedAt,
	}
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// Every lookup and insert goes through it so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RefreshToken models an entry in the `refresh_tokens` table.  The signed
// token itself stays with the client; only its SHA‑256 hex digest is kept.
//
// Fields:
//
//	ID        – primary key identifier.
//	UserID    – owner of the token.
//	TokenHash – SHA‑256 hex digest of the token value (unique).
//	ExpiresAt – expiration timestamp of the token.
//	CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64    // refresh_tokens.id
	UserID    uint64    // refresh_tokens.user_id
	TokenHash string    // refresh_tokens.token_hash
	ExpiresAt time.Time // refresh_tokens.expires_at
	CreatedAt time.Time // refresh_tokens.created_at
}
