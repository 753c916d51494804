package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/contacts-keeper/internal/errs"
	"github.com/and161185/contacts-keeper/internal/token"
)

// IssueAccessToken signs an access token for subject. ttl <= 0 selects the configured default.
func (s *AuthServiceImpl) IssueAccessToken(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.ttl.Access
	}
	return s.issue(subject, token.ScopeAccess, ttl)
}

// IssueRefreshToken signs a refresh token for subject. ttl <= 0 selects the configured default.
func (s *AuthServiceImpl) IssueRefreshToken(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.ttl.Refresh
	}
	return s.issue(subject, token.ScopeRefresh, ttl)
}

// IssueEmailToken signs an email-verification token. It carries no scope.
func (s *AuthServiceImpl) IssueEmailToken(subject string) (string, error) {
	return s.issue(subject, token.ScopeNone, s.ttl.Email)
}

func (s *AuthServiceImpl) issue(subject string, scope token.Scope, ttl time.Duration) (string, error) {
	now := s.codec.Now()
	return s.codec.Encode(token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope: scope,
	})
}

// EmailFromEmailToken returns the subject of an email-verification token.
// Every failure is reported as ErrInvalidToken.
func (s *AuthServiceImpl) EmailFromEmailToken(tok string) (string, error) {
	c, err := s.codec.Decode(tok)
	if err != nil {
		s.log.Debug("email token rejected", zap.Error(err))
		return "", errs.ErrInvalidToken
	}
	if c.Subject == "" {
		return "", errs.ErrInvalidToken
	}
	return c.Subject, nil
}

// EmailFromRefreshToken returns the subject of a refresh token.
// A valid token of another scope yields ErrScopeMismatch; anything else ErrUnauthorized.
func (s *AuthServiceImpl) EmailFromRefreshToken(tok string) (string, error) {
	c, err := s.codec.Decode(tok)
	if err != nil {
		s.log.Debug("refresh token rejected", zap.Error(err))
		return "", errs.ErrUnauthorized
	}
	if c.Scope != token.ScopeRefresh {
		return "", errs.ErrScopeMismatch
	}
	if c.Subject == "" {
		return "", errs.ErrUnauthorized
	}
	return c.Subject, nil
}

// accessSubject validates an access token and returns its subject.
func (s *AuthServiceImpl) accessSubject(tok string) (string, error) {
	c, err := s.codec.Decode(tok)
	if err != nil {
		s.log.Debug("access token rejected", zap.Error(err))
		return "", errs.ErrUnauthorized
	}
	if c.Scope != token.ScopeAccess || c.Subject == "" {
		return "", errs.ErrUnauthorized
	}
	return c.Subject, nil
}
