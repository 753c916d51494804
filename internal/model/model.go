// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects an issued access/refresh token pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry (for diagnostics)
}

// Account represents a user stored on the server. The password is never stored in plaintext.
type Account struct {
	ID           uuid.UUID // PK
	Name         string
	Email        string // unique
	PasswordHash string // PHC-encoded argon2id digest
	Confirmed    bool
	RefreshToken string // empty when logged out
	AvatarURL    string
	CreatedAt    time.Time
}

// Identity returns the cacheable snapshot of the account.
func (a *Account) Identity() Identity {
	return Identity{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Confirmed: a.Confirmed,
		AvatarURL: a.AvatarURL,
		CreatedAt: a.CreatedAt,
	}
}

// Identity is the resolved caller of a protected request.
// It carries no credentials and may lag behind the stored account by the cache TTL.
type Identity struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Confirmed bool      `json:"confirmed"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
