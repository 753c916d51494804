package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/contacts-keeper/internal/errs"
	"github.com/and161185/contacts-keeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

const accountCols = `id, name, email, password_hash, confirmed, COALESCE(refresh_token, ''), COALESCE(avatar_url, ''), created_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Confirmed, &a.RefreshToken, &a.AvatarURL, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Create inserts a new account row and fills CreatedAt.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO users (id, name, email, password_hash, confirmed)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, a.ID, a.Name, a.Email, a.PasswordHash, a.Confirmed).Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByEmail selects an account by email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	q := `SELECT ` + accountCols + ` FROM users WHERE email=$1`
	a, err := scanAccount(r.db.Pool.QueryRow(ctx, q, email))
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return a, err
}

// SetConfirmed sets confirmed=true for the given email.
func (r *AccountRepo) SetConfirmed(ctx context.Context, email string) error {
	const q = `UPDATE users SET confirmed = true WHERE email = $1`
	tag, err := r.db.Pool.Exec(ctx, q, email)
	if err != nil {
		return fmt.Errorf("confirm user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdateRefreshToken replaces the stored refresh token; an empty token stores NULL.
func (r *AccountRepo) UpdateRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	const q = `UPDATE users SET refresh_token = NULLIF($2, '') WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id, token)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdateAvatar sets avatar_url and returns the updated row.
func (r *AccountRepo) UpdateAvatar(ctx context.Context, email, url string) (*model.Account, error) {
	q := `UPDATE users SET avatar_url = $2 WHERE email = $1 RETURNING ` + accountCols
	a, err := scanAccount(r.db.Pool.QueryRow(ctx, q, email, url))
	if isStringTooLong(err) {
		return nil, fmt.Errorf("%w: avatar_url too long", errs.ErrValidation)
	}
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("update avatar: %w", err)
	}
	return a, err
}

// Ping checks database connectivity.
func (r *AccountRepo) Ping(ctx context.Context) error { return r.db.Pool.Ping(ctx) }
