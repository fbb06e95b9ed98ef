package memory

import (
	"context"
	"crypto/rand"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
)

const defaultShards = 32

// ErrDuplicateToken is returned when a session already exists for a token.
var ErrDuplicateToken = errors.New("memory: session token already exists")

// userShard owns the sessions of every user hashed onto it. All mutations of
// a user's sessions happen under its lock.
type userShard struct {
	mu       sync.Mutex
	sessions map[string]map[string]*domain.Session // userID -> token -> session
}

// tokenShard maps tokens to their owner so Resolve can find the user shard.
type tokenShard struct {
	mu     sync.RWMutex
	owners map[string]string
}

// SessionStore is a sharded in-process ports.SessionStore.
//
// Lock order is user shard, then token shard. Resolve never holds both.
type SessionStore struct {
	users  []*userShard
	tokens []*tokenShard
}

// NewSessionStore creates a store with numShards shards per index. If
// numShards <= 0, defaultShards is used.
func NewSessionStore(numShards int) *SessionStore {
	if numShards <= 0 {
		numShards = defaultShards
	}
	s := &SessionStore{
		users:  make([]*userShard, numShards),
		tokens: make([]*tokenShard, numShards),
	}
	for i := range numShards {
		s.users[i] = &userShard{sessions: make(map[string]map[string]*domain.Session)}
		s.tokens[i] = &tokenShard{owners: make(map[string]string)}
	}
	return s
}

// shardIndex maps a key deterministically to a shard.
func shardIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

func (s *SessionStore) userShard(userID string) *userShard {
	return s.users[shardIndex(userID, len(s.users))]
}

func (s *SessionStore) tokenShard(token string) *tokenShard {
	return s.tokens[shardIndex(token, len(s.tokens))]
}

func (s *SessionStore) Create(_ context.Context, in ports.CreateSessionInput) (ports.CreateSessionResult, error) {
	in, err := in.Normalize()
	if err != nil {
		return ports.CreateSessionResult{}, err
	}

	us := s.userShard(in.UserID)
	us.mu.Lock()
	defer us.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(in.Now), rand.Reader)
	if err != nil {
		return ports.CreateSessionResult{}, err
	}

	// Claim the token first. A concurrent Resolve that sees the claim blocks
	// on the user shard until the session is in place.
	ts := s.tokenShard(in.Token)
	ts.mu.Lock()
	if _, exists := ts.owners[in.Token]; exists {
		ts.mu.Unlock()
		return ports.CreateSessionResult{}, ErrDuplicateToken
	}
	ts.owners[in.Token] = in.UserID
	ts.mu.Unlock()

	owned := us.sessions[in.UserID]
	if owned == nil {
		owned = make(map[string]*domain.Session)
		us.sessions[in.UserID] = owned
	}

	var valid int64
	for _, sess := range owned {
		if sess.IsValid(in.Now) {
			valid++
		}
	}

	var evicted int64
	if valid >= int64(in.MaxActive) {
		revokeAll(owned, in.Now)
		evicted = valid
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
	owned[in.Token] = sess

	return ports.CreateSessionResult{Session: cloneSession(sess), Evicted: evicted}, nil
}

func (s *SessionStore) Resolve(_ context.Context, token string) (*domain.Session, error) {
	ts := s.tokenShard(token)
	ts.mu.RLock()
	userID, ok := ts.owners[token]
	ts.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	us := s.userShard(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	sess, ok := us.sessions[userID][token]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *SessionStore) RevokeAll(_ context.Context, userID string, at time.Time) (int64, error) {
	us := s.userShard(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	return revokeAll(us.sessions[userID], at), nil
}

func (s *SessionStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	var purged int64
	for _, us := range s.users {
		us.mu.Lock()
		for userID, owned := range us.sessions {
			for token, sess := range owned {
				if !sess.ExpiresAt.Before(before) {
					continue
				}
				delete(owned, token)
				ts := s.tokenShard(token)
				ts.mu.Lock()
				delete(ts.owners, token)
				ts.mu.Unlock()
				purged++
			}
			if len(owned) == 0 {
				delete(us.sessions, userID)
			}
		}
		us.mu.Unlock()
	}
	return purged, nil
}

// revokeAll revokes every unrevoked session in owned and returns how many
// changed.
func revokeAll(owned map[string]*domain.Session, at time.Time) int64 {
	var n int64
	for _, sess := range owned {
		if sess.Revoked {
			continue
		}
		revokedAt := at
		sess.Revoked = true
		sess.RevokedAt = &revokedAt
		n++
	}
	return n
}

func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
