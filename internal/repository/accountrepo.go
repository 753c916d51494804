// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/contacts-keeper/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AccountRepository provides access to user accounts.
type AccountRepository interface {
	// Create inserts a new account; ErrAlreadyExists if the email is taken.
	Create(ctx context.Context, a *model.Account) error
	// GetByEmail loads an account by email; ErrNotFound if absent.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// SetConfirmed marks the account email as confirmed.
	SetConfirmed(ctx context.Context, email string) error
	// UpdateRefreshToken stores the current refresh token; empty clears it.
	UpdateRefreshToken(ctx context.Context, id uuid.UUID, token string) error
	// UpdateAvatar stores a new avatar URL and returns the updated account.
	UpdateAvatar(ctx context.Context, email, url string) (*model.Account, error)
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
