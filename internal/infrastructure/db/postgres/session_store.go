package postgres

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
	"github.com/yarago/auth-service/internal/infrastructure/security"
)

const uniqueViolation = "23505"

// ErrDuplicateToken is returned when a session already exists for a token.
var ErrDuplicateToken = errors.New("postgres: session token already exists")

// SessionStore implements ports.SessionStore on the auth_sessions table.
//
// Creates for one user are serialised with a transaction-scoped advisory
// lock keyed on the user id, so the count and the insert see the same rows.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a Postgres-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Create(ctx context.Context, in ports.CreateSessionInput) (ports.CreateSessionResult, error) {
	in, err := in.Normalize()
	if err != nil {
		return ports.CreateSessionResult{}, err
	}

	id, err := ulid.New(ulid.Timestamp(in.Now), rand.Reader)
	if err != nil {
		return ports.CreateSessionResult{}, fmt.Errorf("session id: %w", err)
	}
	sess := &domain.Session{
		ID:        id.String(),
		Token:     in.Token,
		UserID:    in.UserID,
		ExpiresAt: in.Now.Add(in.TTL),
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		CreatedAt: in.Now,
	}

	var evicted int64
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, in.UserID); err != nil {
			return fmt.Errorf("lock user sessions: %w", err)
		}

		var valid int64
		if err := tx.QueryRow(ctx, `
			SELECT count(*)
			FROM auth_sessions
			WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
		`, in.UserID, in.Now).Scan(&valid); err != nil {
			return fmt.Errorf("count sessions: %w", err)
		}

		if valid >= int64(in.MaxActive) {
			if _, err := tx.Exec(ctx, `
				UPDATE auth_sessions
				SET revoked = TRUE,
				    revoked_at = COALESCE(revoked_at, $2)
				WHERE user_id = $1 AND revoked = FALSE
			`, in.UserID, in.Now); err != nil {
				return fmt.Errorf("revoke sessions: %w", err)
			}
			evicted = valid
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO auth_sessions (
				id, token_hash, user_id, expires_at,
				revoked, revoked_at, ip_address, user_agent, created_at
			) VALUES (
				$1, $2, $3, $4,
				FALSE, NULL, $5, $6, $7
			)
		`, sess.ID, security.HashToken(in.Token), sess.UserID, sess.ExpiresAt,
			sess.IPAddress, sess.UserAgent, sess.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return ErrDuplicateToken
			}
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return ports.CreateSessionResult{}, err
	}

	return ports.CreateSessionResult{Session: sess, Evicted: evicted}, nil
}

func (s *SessionStore) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.ErrSessionNotFound
	}

	sess := &domain.Session{Token: token}
	err := s.pool.QueryRow(ctx, `
		SELECT
			id, user_id, expires_at, revoked, revoked_at,
			ip_address, user_agent, created_at
		FROM auth_sessions
		WHERE token_hash = $1
	`, security.HashToken(token)).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.ExpiresAt,
		&sess.Revoked,
		&sess.RevokedAt,
		&sess.IPAddress,
		&sess.UserAgent,
		&sess.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	sess.ExpiresAt = sess.ExpiresAt.UTC()
	sess.CreatedAt = sess.CreatedAt.UTC()
	if sess.RevokedAt != nil {
		at := sess.RevokedAt.UTC()
		sess.RevokedAt = &at
	}
	return sess, nil
}

func (s *SessionStore) RevokeAll(ctx context.Context, userID string, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE auth_sessions
		SET revoked = TRUE,
		    revoked_at = COALESCE(revoked_at, $2)
		WHERE user_id = $1 AND revoked = FALSE
	`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *SessionStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM auth_sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
