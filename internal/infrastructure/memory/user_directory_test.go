package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarago/auth-service/internal/core/domain"
)

func seedUser(t *testing.T, d *UserDirectory, id, username, email string) {
	t.Helper()
	_, err := d.Create(context.Background(), &domain.User{
		ID:       id,
		Username: username,
		Email:    email,
		Active:   true,
		Roles:    []string{domain.RoleReceptionist},
	})
	require.NoError(t, err)
}

func TestUserDirectory_CreateRejectsDuplicates(t *testing.T) {
	d := NewUserDirectory()
	seedUser(t, d, "u1", "alice", "alice@example.com")

	_, err := d.Create(context.Background(), &domain.User{ID: "u2", Username: "alice", Email: "other@example.com"})
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentifier)

	_, err = d.Create(context.Background(), &domain.User{ID: "u3", Username: "bob", Email: "alice@example.com"})
	assert.ErrorIs(t, err, domain.ErrDuplicateIdentifier)
}

func TestUserDirectory_FindByIdentifierPrefersUsername(t *testing.T) {
	d := NewUserDirectory()
	seedUser(t, d, "u1", "alice", "alice@example.com")
	seedUser(t, d, "u2", "alice@example.com", "other@example.com")

	got, err := d.FindByIdentifier(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u2", got.ID)
}

func TestUserDirectory_FindByIdentifier(t *testing.T) {
	d := NewUserDirectory()
	seedUser(t, d, "u1", "alice", "alice@example.com")
	ctx := context.Background()

	byName, err := d.FindByIdentifier(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", byName.ID)

	byEmail, err := d.FindByIdentifier(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	_, err = d.FindByIdentifier(ctx, "mallory")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserDirectory_ReturnsCopies(t *testing.T) {
	d := NewUserDirectory()
	seedUser(t, d, "u1", "alice", "alice@example.com")
	ctx := context.Background()

	u, err := d.FindByID(ctx, "u1")
	require.NoError(t, err)
	u.Roles[0] = domain.RoleAdmin
	u.AccountLocked = true

	again, err := d.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{domain.RoleReceptionist}, again.Roles)
	assert.False(t, again.AccountLocked)
}

func TestUserDirectory_LockoutThreshold(t *testing.T) {
	d := NewUserDirectory()
	seedUser(t, d, "u1", "alice", "alice@example.com")
	ctx := context.Background()

	for i := 1; i < domain.MaxLoginAttempts; i++ {
		f, err := d.RecordLoginFailure(ctx, "u1", domain.MaxLoginAttempts)
		require.NoError(t, err)
		assert.Equal(t, i, f.Attempts)
		assert.False(t, f.Locked)
	}

	f, err := d.RecordLoginFailure(ctx, "u1", domain.MaxLoginAttempts)
	require.NoError(t, err)
	assert.True(t, f.JustLocked())

	f, err = d.RecordLoginFailure(ctx, "u1", domain.MaxLoginAttempts)
	require.NoError(t, err)
	assert.False(t, f.Recorded)
	assert.Equal(t, domain.MaxLoginAttempts, f.Attempts)

	err = d.RecordLoginSuccess(ctx, "u1", time.Now())
	assert.ErrorIs(t, err, domain.ErrAccountLocked)

	require.NoError(t, d.Unlock(ctx, "u1"))
	u, err := d.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u.AccountLocked)
	assert.Zero(t, u.FailedLoginAttempts)
}

func TestUserDirectory_ConcurrentFailuresCountExactly(t *testing.T) {
	d := NewUserDirectory()
	seedUser(t, d, "u1", "alice", "alice@example.com")
	ctx := context.Background()

	const attempts = 3
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.RecordLoginFailure(ctx, "u1", domain.MaxLoginAttempts)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := d.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, attempts, u.FailedLoginAttempts)
	assert.False(t, u.AccountLocked)
}

func TestUserDirectory_UpdatePasswordUnlocks(t *testing.T) {
	d := NewUserDirectory()
	seedUser(t, d, "u1", "alice", "alice@example.com")
	ctx := context.Background()

	for range domain.MaxLoginAttempts {
		_, err := d.RecordLoginFailure(ctx, "u1", domain.MaxLoginAttempts)
		require.NoError(t, err)
	}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, d.UpdatePassword(ctx, "u1", "new-hash", at))

	u, err := d.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", u.PasswordHash)
	assert.False(t, u.AccountLocked)
	require.NotNil(t, u.PasswordChangedAt)
	assert.Equal(t, at, *u.PasswordChangedAt)

	assert.ErrorIs(t, d.SetActive(ctx, "ghost", false), domain.ErrUserNotFound)
}

func TestRoleDirectory(t *testing.T) {
	d := NewRoleDirectory()
	ctx := context.Background()

	r, err := d.FindByName(ctx, domain.DefaultRole)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultRole, r.Name)

	_, err = d.FindByName(ctx, "ROLE_PILOT")
	assert.ErrorIs(t, err, domain.ErrRoleNotFound)

	all, err := d.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(domain.SeedRoles()))
}
