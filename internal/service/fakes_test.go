package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/contacts-keeper/internal/cache"
	pkgcrypto "github.com/and161185/contacts-keeper/internal/crypto"
	"github.com/and161185/contacts-keeper/internal/errs"
	"github.com/and161185/contacts-keeper/internal/limiter"
	"github.com/and161185/contacts-keeper/internal/model"
	"github.com/and161185/contacts-keeper/internal/repository"
	"github.com/and161185/contacts-keeper/internal/token"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeAccounts struct {
	mu      sync.Mutex
	byEmail map[string]*model.Account

	getErr    error
	createErr error
	updateErr error

	gets int
}

var _ repository.AccountRepository = (*fakeAccounts)(nil)

func (f *fakeAccounts) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.byEmail[a.Email]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *a
	f.byEmail[a.Email] = &cpy
	return nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (f *fakeAccounts) SetConfirmed(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	a, ok := f.byEmail[email]
	if !ok {
		return errs.ErrNotFound
	}
	a.Confirmed = true
	return nil
}

func (f *fakeAccounts) UpdateRefreshToken(_ context.Context, id uuid.UUID, tok string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	for _, a := range f.byEmail {
		if a.ID == id {
			a.RefreshToken = tok
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeAccounts) UpdateAvatar(_ context.Context, email, url string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	a, ok := f.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	a.AvatarURL = url
	c := *a
	return &c, nil
}

func (f *fakeAccounts) Ping(context.Context) error { return f.getErr }

func (f *fakeAccounts) account(email string) model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.byEmail[email]
}

func (f *fakeAccounts) getCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

// expStore is an in-memory cache.Store that honours TTLs against a test clock.
type expStore struct {
	mu     sync.Mutex
	clock  *testClock
	data   map[string]expEntry
	getErr error
	sets   int
}

type expEntry struct {
	val     []byte
	ttl     time.Duration
	expires time.Time
}

var _ cache.Store = (*expStore)(nil)

func (s *expStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	e, ok := s.data[key]
	if !ok || !s.clock.Now().Before(e.expires) {
		return nil, cache.ErrMiss
	}
	return e.val, nil
}

func (s *expStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	s.data[key] = expEntry{val: value, ttl: ttl, expires: s.clock.Now().Add(ttl)}
	return nil
}

func (s *expStore) entry(key string) (expEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	return e, ok
}

type sentMail struct{ to, name, link string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendConfirmation(_ context.Context, to, name, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, name: name, link: link})
	return m.err
}

func (m *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	return m.sent[len(m.sent)-1]
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fixture struct {
	svc      *AuthServiceImpl
	codec    *token.Codec
	accounts *fakeAccounts
	store    *expStore
	lim      *fakeLimiter
	mail     *fakeMailer
	clock    *testClock
}

const identityTTL = 15 * time.Minute

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)}
	codec, err := token.NewCodec([]byte("test-secret-key"), "HS256", token.WithClock(clock.Now))
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	f := &fixture{
		codec:    codec,
		accounts: &fakeAccounts{byEmail: map[string]*model.Account{}},
		store:    &expStore{clock: clock, data: map[string]expEntry{}},
		lim:      &fakeLimiter{allowOK: true},
		mail:     &fakeMailer{},
		clock:    clock,
	}
	f.svc = NewAuthService(f.accounts, codec, cache.NewIdentityCache(f.store, identityTTL, log), f.lim,
		WithLogger(log),
		WithMailer(f.mail, "http://localhost:8000/"),
	)
	return f
}

// seed stores an account with the given password digest.
func (f *fixture) seed(t *testing.T, email, password string, confirmed bool) model.Account {
	t.Helper()
	hash, err := pkgcrypto.HashPassword(password)
	require.NoError(t, err)
	a := &model.Account{
		ID:           uuid.Must(uuid.NewV4()),
		Name:         strings.Split(email, "@")[0],
		Email:        email,
		PasswordHash: hash,
		Confirmed:    confirmed,
		CreatedAt:    f.clock.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, f.accounts.Create(context.Background(), a))
	return *a
}
