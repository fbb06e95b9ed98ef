package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func createInput(userID, token string) ports.CreateSessionInput {
	return ports.CreateSessionInput{
		UserID:    userID,
		Token:     token,
		TTL:       time.Hour,
		Now:       t0,
		MaxActive: domain.MaxActiveSessions,
	}
}

func countValid(t *testing.T, s *SessionStore, tokens []string, now time.Time) int {
	t.Helper()
	n := 0
	for _, tok := range tokens {
		sess, err := s.Resolve(context.Background(), tok)
		require.NoError(t, err)
		if sess.IsValid(now) {
			n++
		}
	}
	return n
}

func TestSessionStore_CreateAndResolve(t *testing.T) {
	s := NewSessionStore(4)
	ctx := context.Background()

	in := createInput("u1", "tok-1")
	in.IPAddress = "10.0.0.1"
	in.UserAgent = "curl/8"
	res, err := s.Create(ctx, in)
	require.NoError(t, err)
	assert.Zero(t, res.Evicted)
	assert.NotEmpty(t, res.Session.ID)

	got, err := s.Resolve(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, t0.Add(time.Hour), got.ExpiresAt)
	assert.Equal(t, "10.0.0.1", got.IPAddress)
	assert.True(t, got.IsValid(t0))

	_, err = s.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionStore_CreateRejectsDuplicateToken(t *testing.T) {
	s := NewSessionStore(4)
	ctx := context.Background()

	_, err := s.Create(ctx, createInput("u1", "tok"))
	require.NoError(t, err)
	_, err = s.Create(ctx, createInput("u2", "tok"))
	assert.ErrorIs(t, err, ErrDuplicateToken)
}

func TestSessionStore_SixthSessionRevokesTheFirstFive(t *testing.T) {
	s := NewSessionStore(4)
	ctx := context.Background()

	var tokens []string
	for i := range domain.MaxActiveSessions {
		tok := fmt.Sprintf("tok-%d", i)
		tokens = append(tokens, tok)
		res, err := s.Create(ctx, createInput("u1", tok))
		require.NoError(t, err)
		assert.Zero(t, res.Evicted)
	}
	assert.Equal(t, domain.MaxActiveSessions, countValid(t, s, tokens, t0))

	res, err := s.Create(ctx, createInput("u1", "tok-new"))
	require.NoError(t, err)
	assert.EqualValues(t, domain.MaxActiveSessions, res.Evicted)

	assert.Zero(t, countValid(t, s, tokens, t0))
	assert.Equal(t, 1, countValid(t, s, []string{"tok-new"}, t0))
}

func TestSessionStore_ExpiredSessionsDoNotCountTowardsCap(t *testing.T) {
	s := NewSessionStore(4)
	ctx := context.Background()

	for i := range domain.MaxActiveSessions {
		in := createInput("u1", fmt.Sprintf("old-%d", i))
		in.TTL = time.Minute
		_, err := s.Create(ctx, in)
		require.NoError(t, err)
	}

	later := createInput("u1", "fresh")
	later.Now = t0.Add(2 * time.Minute)
	res, err := s.Create(ctx, later)
	require.NoError(t, err)
	assert.Zero(t, res.Evicted)
}

func TestSessionStore_CapIsPerUser(t *testing.T) {
	s := NewSessionStore(4)
	ctx := context.Background()

	for i := range domain.MaxActiveSessions {
		_, err := s.Create(ctx, createInput("u1", fmt.Sprintf("a-%d", i)))
		require.NoError(t, err)
	}
	res, err := s.Create(ctx, createInput("u2", "b-0"))
	require.NoError(t, err)
	assert.Zero(t, res.Evicted)
}

func TestSessionStore_RevokeAllIsIdempotent(t *testing.T) {
	s := NewSessionStore(4)
	ctx := context.Background()

	_, err := s.Create(ctx, createInput("u1", "tok-a"))
	require.NoError(t, err)
	_, err = s.Create(ctx, createInput("u1", "tok-b"))
	require.NoError(t, err)

	first := t0.Add(time.Minute)
	n, err := s.RevokeAll(ctx, "u1", first)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.RevokeAll(ctx, "u1", first.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	sess, err := s.Resolve(ctx, "tok-a")
	require.NoError(t, err)
	assert.True(t, sess.Revoked)
	require.NotNil(t, sess.RevokedAt)
	assert.Equal(t, first, *sess.RevokedAt)

	n, err = s.RevokeAll(ctx, "nobody", first)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionStore_PurgeExpired(t *testing.T) {
	s := NewSessionStore(4)
	ctx := context.Background()

	short := createInput("u1", "short")
	short.TTL = time.Minute
	_, err := s.Create(ctx, short)
	require.NoError(t, err)
	_, err = s.Create(ctx, createInput("u1", "long"))
	require.NoError(t, err)

	n, err := s.PurgeExpired(ctx, t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.Resolve(ctx, "short")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = s.Resolve(ctx, "long")
	assert.NoError(t, err)
}

func TestSessionStore_ConcurrentCreatesNeverExceedCap(t *testing.T) {
	s := NewSessionStore(8)
	ctx := context.Background()

	const logins = 64
	var wg sync.WaitGroup
	tokens := make([]string, logins)
	for i := range logins {
		tokens[i] = fmt.Sprintf("tok-%d", i)
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			_, err := s.Create(ctx, createInput("u1", tok))
			assert.NoError(t, err)
		}(tokens[i])
	}
	wg.Wait()

	valid := countValid(t, s, tokens, t0)
	assert.GreaterOrEqual(t, valid, 1)
	assert.LessOrEqual(t, valid, domain.MaxActiveSessions)
}
