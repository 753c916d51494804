// Package service contains the authentication service: token issuance and
// verification, caller resolution and the account lifecycle around them.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/contacts-keeper/internal/crypto"
	"github.com/and161185/contacts-keeper/internal/cache"
	"github.com/and161185/contacts-keeper/internal/errs"
	"github.com/and161185/contacts-keeper/internal/limiter"
	"github.com/and161185/contacts-keeper/internal/model"
	"github.com/and161185/contacts-keeper/internal/repository"
	"github.com/and161185/contacts-keeper/internal/token"
)

// AuthService defines the operations exposed to the transport layer.
type AuthService interface {
	// Signup creates an unconfirmed account and sends the confirmation mail.
	Signup(ctx context.Context, name, email, password string) (*model.Account, error)
	// Login applies rate limiting, checks credentials and issues a token pair.
	Login(ctx context.Context, email, password, ip string) (model.Tokens, error)
	// Refresh rotates the stored refresh token.
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, error)
	// Logout clears the stored refresh token of the caller.
	Logout(ctx context.Context, caller model.Identity) error
	// ConfirmEmail marks the subject of an email token as confirmed.
	ConfirmEmail(ctx context.Context, emailToken string) (alreadyConfirmed bool, err error)
	// RequestConfirmation resends the confirmation mail if the account needs one.
	RequestConfirmation(ctx context.Context, email string) error
	// ResolveCaller maps an access token to the identity it was issued for.
	ResolveCaller(ctx context.Context, accessToken string) (model.Identity, error)
	// UpdateAvatar stores a new avatar URL for the caller.
	UpdateAvatar(ctx context.Context, caller model.Identity, avatarURL string) (*model.Account, error)
	// Ping checks the account store.
	Ping(ctx context.Context) error
}

// TTLs holds token lifetimes.
type TTLs struct {
	Access  time.Duration
	Refresh time.Duration
	Email   time.Duration
}

// maxAvatarURLLen matches users.avatar_url.
const maxAvatarURLLen = 255

// DefaultTTLs are 15 minutes, 1 day and 7 days.
var DefaultTTLs = TTLs{Access: 15 * time.Minute, Refresh: 24 * time.Hour, Email: 7 * 24 * time.Hour}

// Option customizes AuthServiceImpl.
type Option func(*AuthServiceImpl)

// WithTTLs overrides token lifetimes. Zero fields keep their defaults.
func WithTTLs(t TTLs) Option {
	return func(s *AuthServiceImpl) {
		if t.Access > 0 {
			s.ttl.Access = t.Access
		}
		if t.Refresh > 0 {
			s.ttl.Refresh = t.Refresh
		}
		if t.Email > 0 {
			s.ttl.Email = t.Email
		}
	}
}

// WithMailer sets the mail sender and the public base URL used in links.
func WithMailer(m Mailer, baseURL string) Option {
	return func(s *AuthServiceImpl) {
		s.mail = m
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *AuthServiceImpl) { s.log = l }
}

type AuthServiceImpl struct {
	accounts   repository.AccountRepository
	codec      *token.Codec
	identities *cache.IdentityCache
	lim        limiter.Limiter
	mail       Mailer
	log        *zap.Logger
	ttl        TTLs
	baseURL    string

	decoyOnce sync.Once
	decoy     string
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(accounts repository.AccountRepository, codec *token.Codec, identities *cache.IdentityCache, lim limiter.Limiter, opts ...Option) *AuthServiceImpl {
	s := &AuthServiceImpl{
		accounts:   accounts,
		codec:      codec,
		identities: identities,
		lim:        lim,
		ttl:        DefaultTTLs,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.mail == nil {
		s.mail = NewLogMailer(s.log)
	}
	return s
}

var _ AuthService = (*AuthServiceImpl)(nil)

// ResolveCaller validates an access token and returns the identity of its subject,
// preferring the identity cache. Missing accounts and every token defect yield
// ErrUnauthorized; a failing account store yields ErrPersistenceUnavailable.
func (s *AuthServiceImpl) ResolveCaller(ctx context.Context, accessToken string) (model.Identity, error) {
	email, err := s.accessSubject(accessToken)
	if err != nil {
		return model.Identity{}, err
	}
	return s.identities.Resolve(ctx, email, func(ctx context.Context) (model.Identity, error) {
		a, err := s.accounts.GetByEmail(ctx, email)
		if errors.Is(err, errs.ErrNotFound) {
			return model.Identity{}, errs.ErrUnauthorized
		}
		if err != nil {
			return model.Identity{}, unavailable(err)
		}
		return a.Identity(), nil
	})
}

// Signup validates input, stores the account with an argon2id digest and
// sends the confirmation mail. Mail failures are logged, not returned.
func (s *AuthServiceImpl) Signup(ctx context.Context, name, email, password string) (*model.Account, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if err := validateSignup(name, email, password); err != nil {
		return nil, err
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, errs.ErrAlreadyExists
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, unavailable(err)
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return nil, err
	}
	a := &model.Account{ID: uid, Name: name, Email: email, PasswordHash: hash}
	if err := s.accounts.Create(ctx, a); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return nil, err
		}
		return nil, unavailable(err)
	}

	s.sendConfirmation(ctx, a)
	return a, nil
}

// Login authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, email, password, ip string) (model.Tokens, error) {
	email = normalizeEmail(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, unavailable(err)
	}
	if !allowed {
		return model.Tokens{}, errs.ErrRateLimited
	}

	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, unavailable(err)
	}
	ok := false
	if a != nil {
		ok = pkgcrypto.VerifyPassword(password, a.PasswordHash)
	} else {
		// equalize timing with the known-account path
		pkgcrypto.VerifyPassword(password, s.decoyHash())
	}
	if !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, errs.ErrRateLimited
		}
		return model.Tokens{}, errs.ErrUnauthorized
	}
	if !a.Confirmed {
		return model.Tokens{}, errs.ErrNotConfirmed
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, email, ipHash)

	return s.issuePair(ctx, a)
}

// Refresh exchanges a refresh token for a new pair. A token that is valid but
// no longer the stored one logs the account out.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (model.Tokens, error) {
	email, err := s.EmailFromRefreshToken(refreshToken)
	if err != nil {
		return model.Tokens{}, err
	}
	a, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, errs.ErrUnauthorized
	}
	if err != nil {
		return model.Tokens{}, unavailable(err)
	}

	if a.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(a.RefreshToken), []byte(refreshToken)) != 1 {
		if err := s.accounts.UpdateRefreshToken(ctx, a.ID, ""); err != nil {
			s.log.Warn("refresh token reset failed", zap.Error(err))
		}
		return model.Tokens{}, errs.ErrUnauthorized
	}
	return s.issuePair(ctx, a)
}

// Logout forgets the caller's refresh token. Issued access tokens stay valid until expiry.
func (s *AuthServiceImpl) Logout(ctx context.Context, caller model.Identity) error {
	if err := s.accounts.UpdateRefreshToken(ctx, caller.ID, ""); err != nil {
		return unavailable(err)
	}
	return nil
}

// ConfirmEmail confirms the account named by an email token.
func (s *AuthServiceImpl) ConfirmEmail(ctx context.Context, emailToken string) (bool, error) {
	email, err := s.EmailFromEmailToken(emailToken)
	if err != nil {
		return false, err
	}
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, err
		}
		return false, unavailable(err)
	}
	if a.Confirmed {
		return true, nil
	}
	if err := s.accounts.SetConfirmed(ctx, email); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, err
		}
		return false, unavailable(err)
	}
	return false, nil
}

// RequestConfirmation resends the confirmation mail. Unknown and already
// confirmed addresses succeed silently.
func (s *AuthServiceImpl) RequestConfirmation(ctx context.Context, email string) error {
	a, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return unavailable(err)
	}
	if !a.Confirmed {
		s.sendConfirmation(ctx, a)
	}
	return nil
}

// UpdateAvatar persists an absolute http(s) avatar URL for the caller.
func (s *AuthServiceImpl) UpdateAvatar(ctx context.Context, caller model.Identity, avatarURL string) (*model.Account, error) {
	if len(avatarURL) > maxAvatarURLLen {
		return nil, fmt.Errorf("%w: avatar_url longer than %d", errs.ErrValidation, maxAvatarURLLen)
	}
	u, err := url.Parse(avatarURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: avatar_url", errs.ErrValidation)
	}
	a, err := s.accounts.UpdateAvatar(ctx, caller.Email, avatarURL)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrValidation) {
			return nil, err
		}
		return nil, unavailable(err)
	}
	return a, nil
}

// Ping checks the account store.
func (s *AuthServiceImpl) Ping(ctx context.Context) error {
	return s.accounts.Ping(ctx)
}

func (s *AuthServiceImpl) issuePair(ctx context.Context, a *model.Account) (model.Tokens, error) {
	access, err := s.IssueAccessToken(a.Email, 0)
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, err := s.IssueRefreshToken(a.Email, 0)
	if err != nil {
		return model.Tokens{}, err
	}
	if err := s.accounts.UpdateRefreshToken(ctx, a.ID, refresh); err != nil {
		return model.Tokens{}, unavailable(err)
	}
	return model.Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    s.codec.Now().Add(s.ttl.Access),
	}, nil
}

func (s *AuthServiceImpl) sendConfirmation(ctx context.Context, a *model.Account) {
	tok, err := s.IssueEmailToken(a.Email)
	if err != nil {
		s.log.Error("email token issue failed", zap.Error(err))
		return
	}
	link := s.baseURL + "/api/auth/confirmed_email/" + tok
	if err := s.mail.SendConfirmation(ctx, a.Email, a.Name, link); err != nil {
		s.log.Warn("confirmation mail failed", zap.String("to", a.Email), zap.Error(err))
	}
}

// decoyHash is verified against when the account does not exist.
func (s *AuthServiceImpl) decoyHash() string {
	s.decoyOnce.Do(func() {
		h, err := pkgcrypto.HashPassword("decoy-password")
		if err != nil {
			s.log.Error("decoy hash failed", zap.Error(err))
			return
		}
		s.decoy = h
	})
	return s.decoy
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", errs.ErrPersistenceUnavailable, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateSignup(name, email, password string) error {
	n := utf8.RuneCountInString(name)
	switch {
	case n < 3 || n > 40:
		return fmt.Errorf("%w: name must be 3..40 characters", errs.ErrValidation)
	case len(email) < 4 || len(email) > 120 || !strings.Contains(email, "@"):
		return fmt.Errorf("%w: invalid email", errs.ErrValidation)
	case len(password) < 8 || len(password) > 255:
		return fmt.Errorf("%w: password must be 8..255 characters", errs.ErrValidation)
	}
	return nil
}
