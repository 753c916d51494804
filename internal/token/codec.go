// Package token encodes and decodes signed, time-bound claim sets (JWT).
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scope restricts the purpose a token may be used for.
type Scope string

const (
	// ScopeAccess marks tokens accepted on protected requests.
	ScopeAccess Scope = "access_token"
	// ScopeRefresh marks tokens accepted only by the refresh flow.
	ScopeRefresh Scope = "refresh_token"
	// ScopeNone is used by email-verification tokens.
	ScopeNone Scope = ""
)

// Decode failures. They are internal: services collapse them before replying.
var (
	ErrInvalidSignature     = errors.New("token: invalid signature")
	ErrExpired              = errors.New("token: expired")
	ErrMalformed            = errors.New("token: malformed")
	ErrUnsupportedAlgorithm = errors.New("token: unsupported algorithm")
)

// Claims is the payload of every issued token. Subject holds the account email.
type Claims struct {
	jwt.RegisteredClaims
	Scope Scope `json:"scope,omitempty"`
}

// Codec signs and verifies tokens with a shared secret and a single HMAC algorithm.
// It has no mutable state and is safe for concurrent use.
type Codec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the wall clock used for expiry checks and issuance.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec constructs a Codec. Only HS256, HS384 and HS512 are accepted.
func NewCodec(secret []byte, alg string, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: empty secret")
	}
	m, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	c := &Codec{secret: secret, method: m, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Algorithm returns the configured JWS algorithm name.
func (c *Codec) Algorithm() string { return c.method.Alg() }

// Now returns the codec's current time.
func (c *Codec) Now() time.Time { return c.now() }

// Encode serializes claims into a compact, URL-safe signed string.
func (c *Codec) Encode(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of s and returns its claims.
// Tokens signed with any other algorithm, or lacking "exp", are rejected.
func (c *Codec) Decode(s string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(s, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
