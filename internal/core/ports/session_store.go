package ports

import (
	"context"
	"errors"
	"time"

	"github.com/yarago/auth-service/internal/core/domain"
)

// CreateSessionInput carries everything needed to open a refresh session.
type CreateSessionInput struct {
	UserID    string
	Token     string
	TTL       time.Duration
	IPAddress string
	UserAgent string
	Now       time.Time
	// MaxActive caps valid sessions per user. When the user already holds
	// MaxActive or more, all of them are revoked before the insert.
	MaxActive int
}

// Normalize fills defaults and rejects incomplete input.
func (in CreateSessionInput) Normalize() (CreateSessionInput, error) {
	if in.UserID == "" || in.Token == "" {
		return in, errors.New("create session: user id and token are required")
	}
	if in.TTL <= 0 {
		return in, errors.New("create session: ttl must be positive")
	}
	if in.MaxActive <= 0 {
		in.MaxActive = domain.MaxActiveSessions
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

// CreateSessionResult is the stored session plus how many sessions the cap
// revoked to make room for it.
type CreateSessionResult struct {
	Session *domain.Session
	Evicted int64
}

// SessionStore persists refresh sessions.
type SessionStore interface {
	// Create counts, optionally revokes and inserts as one atomic step per user.
	Create(ctx context.Context, in CreateSessionInput) (CreateSessionResult, error)
	// Resolve returns the session for token or domain.ErrSessionNotFound.
	Resolve(ctx context.Context, token string) (*domain.Session, error)
	// RevokeAll marks every session of the user revoked. Sessions revoked
	// earlier keep their original revocation time.
	RevokeAll(ctx context.Context, userID string, at time.Time) (int64, error)
	// PurgeExpired deletes sessions whose expiry is before the given instant.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
