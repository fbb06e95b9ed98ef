package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
)

// newTestStore migrates POSTGRES_TEST_URL and returns a store plus a user id
// no other test touches.
func newTestStore(t *testing.T) (*SessionStore, string) {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_URL")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	require.NoError(t, Migrate(dsn, DirectionUp))

	ctx := context.Background()
	pool, err := Connect(ctx, Config{URL: dsn})
	require.NoError(t, err)

	userID := uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM auth_sessions WHERE user_id = $1`, userID)
		pool.Close()
	})
	return NewSessionStore(pool), userID
}

func createInput(userID, token string, now time.Time) ports.CreateSessionInput {
	return ports.CreateSessionInput{UserID: userID, Token: token, TTL: time.Hour, Now: now, MaxActive: domain.MaxActiveSessions}
}

func TestSessionStore_CreateResolve(t *testing.T) {
	s, userID := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	token := userID + "-a"

	res, err := s.Create(ctx, createInput(userID, token, now))
	require.NoError(t, err)
	assert.Zero(t, res.Evicted)

	got, err := s.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, res.Session.ID, got.ID)
	assert.Equal(t, userID, got.UserID)
	assert.True(t, got.ExpiresAt.Equal(now.Add(time.Hour)))
	assert.Nil(t, got.RevokedAt)

	_, err = s.Create(ctx, createInput(userID, token, now))
	assert.ErrorIs(t, err, ErrDuplicateToken)

	_, err = s.Resolve(ctx, "missing-"+userID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStore_CapRevokesAll(t *testing.T) {
	s, userID := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range domain.MaxActiveSessions {
		_, err := s.Create(ctx, createInput(userID, fmt.Sprintf("%s-%d", userID, i), now))
		require.NoError(t, err)
	}
	res, err := s.Create(ctx, createInput(userID, userID+"-new", now))
	require.NoError(t, err)
	assert.EqualValues(t, domain.MaxActiveSessions, res.Evicted)

	old, err := s.Resolve(ctx, userID+"-0")
	require.NoError(t, err)
	assert.True(t, old.Revoked)

	fresh, err := s.Resolve(ctx, userID+"-new")
	require.NoError(t, err)
	assert.True(t, fresh.IsValid(now))
}

func TestSessionStore_ConcurrentCreatesRespectCap(t *testing.T) {
	s, userID := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	const logins = 20
	var wg sync.WaitGroup
	for i := range logins {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Create(ctx, createInput(userID, fmt.Sprintf("%s-c%d", userID, i), now))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	var valid int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM auth_sessions
		WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
	`, userID, now).Scan(&valid)
	require.NoError(t, err)
	assert.LessOrEqual(t, valid, domain.MaxActiveSessions)
	assert.GreaterOrEqual(t, valid, 1)
}

func TestSessionStore_RevokeAllKeepsFirstTimestamp(t *testing.T) {
	s, userID := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.Create(ctx, createInput(userID, userID+"-a", now))
	require.NoError(t, err)

	n, err := s.RevokeAll(ctx, userID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.RevokeAll(ctx, userID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.Resolve(ctx, userID+"-a")
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	assert.True(t, got.RevokedAt.Equal(now))
}

func TestSessionStore_PurgeExpired(t *testing.T) {
	s, userID := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	short := createInput(userID, userID+"-short", now)
	short.TTL = time.Second
	_, err := s.Create(ctx, short)
	require.NoError(t, err)
	_, err = s.Create(ctx, createInput(userID, userID+"-long", now))
	require.NoError(t, err)

	_, err = s.PurgeExpired(ctx, now.Add(time.Minute))
	require.NoError(t, err)

	_, err = s.Resolve(ctx, userID+"-short")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = s.Resolve(ctx, userID+"-long")
	assert.NoError(t, err)
}
