package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
	"github.com/yarago/auth-service/internal/infrastructure/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef-test"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// plainHasher keeps tests fast; bcrypt itself is covered in the security package.
type plainHasher struct {
	err error
}

func (h plainHasher) Hash(password string) (string, error) {
	return "hashed:" + password, h.err
}

func (h plainHasher) Verify(password, hash string) (bool, error) {
	if h.err != nil {
		return false, h.err
	}
	return strings.TrimPrefix(hash, "hashed:") == password, nil
}

type testEnv struct {
	clock    *fakeClock
	users    *memory.UserDirectory
	roles    *memory.RoleDirectory
	sessions ports.SessionStore
	codec    *TokenCodec
	verifier *CredentialVerifier
	auth     *AuthService
	admin    *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithSessions(t, memory.NewSessionStore(4))
}

func newTestEnvWithSessions(t *testing.T, sessions ports.SessionStore) *testEnv {
	t.Helper()

	clock := newFakeClock()
	codec, err := NewTokenCodec(testSecret, "auth-service-test", WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	env := &testEnv{
		clock:    clock,
		users:    memory.NewUserDirectory(),
		roles:    memory.NewRoleDirectory(),
		sessions: sessions,
		codec:    codec,
	}
	env.verifier = NewCredentialVerifier(env.users, plainHasher{}, domain.MaxLoginAttempts, zerolog.Nop())
	env.verifier.now = clock.Now
	env.auth = NewAuthService(env.users, env.roles, env.sessions, codec, plainHasher{}, env.verifier, AuthConfig{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}, zerolog.Nop())
	env.auth.now = clock.Now
	env.admin = NewAdminService(env.users, env.roles, env.sessions, plainHasher{}, zerolog.Nop())
	env.admin.now = clock.Now
	return env
}

func (e *testEnv) seedUser(t *testing.T, username, password string, roles ...string) *domain.User {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{domain.RoleReceptionist}
	}
	u, err := e.users.Create(context.Background(), &domain.User{
		ID:           "id-" + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hashed:" + password,
		Active:       true,
		Roles:        roles,
		BranchID:     "branch-1",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (e *testEnv) user(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := e.users.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%s): %v", id, err)
	}
	return u
}
