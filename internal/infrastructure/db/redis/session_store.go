package redis

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/yarago/auth-service/internal/core/domain"
	"github.com/yarago/auth-service/internal/core/ports"
	"github.com/yarago/auth-service/internal/infrastructure/security"
)

const purgeBatch = 500

// Key layout, relative to the configured prefix:
//
//	session:<sha256(token)>   hash with the session fields
//	user_sessions:<userID>    set of token digests owned by the user
//	session_expiry            sorted set of token digests scored by expiry (ms)
//
// The scripts derive session keys from set members, so the prefix is wrapped
// in a hash tag ({auth}:) and every key of a store hashes to one cluster slot.

// createScript counts the user's valid sessions, revokes all of them when the
// cap is reached and inserts the new session, atomically.
var createScript = redis.NewScript(`
local userKey, expiryKey, sessionKey = KEYS[1], KEYS[2], KEYS[3]
local prefix, now, max, digest = ARGV[1], tonumber(ARGV[2]), tonumber(ARGV[3]), ARGV[4]

if redis.call('EXISTS', sessionKey) == 1 then
  return redis.error_reply('DUPLICATE session token')
end

local members = redis.call('SMEMBERS', userKey)
local valid = 0
for _, h in ipairs(members) do
  local f = redis.call('HMGET', prefix .. 'session:' .. h, 'revoked', 'expires_at')
  if f[2] then
    if f[1] == '0' and tonumber(f[2]) > now then
      valid = valid + 1
    end
  else
    redis.call('SREM', userKey, h)
  end
end

if valid >= max then
  for _, h in ipairs(members) do
    local key = prefix .. 'session:' .. h
    if redis.call('HGET', key, 'revoked') == '0' then
      redis.call('HSET', key, 'revoked', '1', 'revoked_at', ARGV[2])
    end
  end
else
  valid = 0
end

redis.call('HSET', sessionKey,
  'id', ARGV[5], 'user_id', ARGV[6], 'expires_at', ARGV[7],
  'revoked', '0', 'ip_address', ARGV[8], 'user_agent', ARGV[9], 'created_at', ARGV[2])
redis.call('SADD', userKey, digest)
redis.call('ZADD', expiryKey, ARGV[7], digest)
return valid
`)

// revokeAllScript revokes every unrevoked session of one user and returns how
// many changed.
var revokeAllScript = redis.NewScript(`
local prefix, at = ARGV[1], ARGV[2]
local n = 0
for _, h in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local key = prefix .. 'session:' .. h
  if redis.call('HGET', key, 'revoked') == '0' then
    redis.call('HSET', key, 'revoked', '1', 'revoked_at', at)
    n = n + 1
  end
end
return n
`)

// purgeScript deletes up to ARGV[3] sessions expiring before ARGV[2].
var purgeScript = redis.NewScript(`
local prefix = ARGV[1]
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[2], 'LIMIT', 0, tonumber(ARGV[3]))
for _, h in ipairs(expired) do
  local key = prefix .. 'session:' .. h
  local owner = redis.call('HGET', key, 'user_id')
  redis.call('DEL', key)
  if owner then
    redis.call('SREM', prefix .. 'user_sessions:' .. owner, h)
  end
  redis.call('ZREM', KEYS[1], h)
end
return #expired
`)

// ErrDuplicateToken is returned when a session already exists for a token.
var ErrDuplicateToken = errors.New("redis: session token already exists")

// SessionStore implements ports.SessionStore on Redis.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

func NewSessionStore(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: slotPrefix(prefix)}
}

// slotPrefix turns "auth:" into "{auth}:". A prefix that already carries a
// hash tag is kept as is.
func slotPrefix(prefix string) string {
	if open := strings.IndexByte(prefix, '{'); open >= 0 && strings.IndexByte(prefix[open:], '}') > 1 {
		return prefix
	}
	tag := strings.TrimSuffix(prefix, ":")
	if tag == "" {
		tag = "sessions"
	}
	return "{" + tag + "}:"
}

func (s *SessionStore) sessionKey(digest string) string { return s.prefix + "session:" + digest }
func (s *SessionStore) userKey(userID string) string   { return s.prefix + "user_sessions:" + userID }
func (s *SessionStore) expiryKey() string              { return s.prefix + "session_expiry" }

func (s *SessionStore) Create(ctx context.Context, in ports.CreateSessionInput) (ports.CreateSessionResult, error) {
	in, err := in.Normalize()
	if err != nil {
		return ports.CreateSessionResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	id, err := ulid.New(ulid.Timestamp(in.Now), rand.Reader)
	if err != nil {
		return ports.CreateSessionResult{}, err
	}
	digest := security.HashToken(in.Token)
	now := in.Now.Truncate(time.Millisecond)
	expiresAt := in.Now.Add(in.TTL).Truncate(time.Millisecond)

	evicted, err := createScript.Run(ctx, s.client,
		[]string{s.userKey(in.UserID), s.expiryKey(), s.sessionKey(digest)},
		s.prefix, now.UnixMilli(), in.MaxActive, digest,
		id.String(), in.UserID, expiresAt.UnixMilli(), in.IPAddress, in.UserAgent,
	).Int64()
	if err != nil {
		if isDuplicateReply(err) {
			return ports.CreateSessionResult{}, ErrDuplicateToken
		}
		return ports.CreateSessionResult{}, fmt.Errorf("create session: %w", err)
	}

	return ports.CreateSessionResult{
		Session: &domain.Session{
			ID:        id.String(),
			Token:     in.Token,
			UserID:    in.UserID,
			ExpiresAt: expiresAt,
			IPAddress: in.IPAddress,
			UserAgent: in.UserAgent,
			CreatedAt: now,
		},
		Evicted: evicted,
	}, nil
}

func (s *SessionStore) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	fields, err := s.client.HGetAll(ctx, s.sessionKey(security.HashToken(token))).Result()
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrSessionNotFound
	}

	sess := &domain.Session{
		ID:        fields["id"],
		Token:     token,
		UserID:    fields["user_id"],
		Revoked:   fields["revoked"] == "1",
		IPAddress: fields["ip_address"],
		UserAgent: fields["user_agent"],
	}
	if sess.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("decode session expiry: %w", err)
	}
	if sess.CreatedAt, err = parseMillis(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("decode session creation: %w", err)
	}
	if raw := fields["revoked_at"]; raw != "" {
		at, err := parseMillis(raw)
		if err != nil {
			return nil, fmt.Errorf("decode session revocation: %w", err)
		}
		sess.RevokedAt = &at
	}
	return sess, nil
}

func (s *SessionStore) RevokeAll(ctx context.Context, userID string, at time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := revokeAllScript.Run(ctx, s.client, []string{s.userKey(userID)}, s.prefix, at.UnixMilli()).Int64()
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	return n, nil
}

// PurgeExpired deletes expired sessions in batches so a large backlog never
// blocks Redis for long.
func (s *SessionStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := purgeScript.Run(ctx, s.client, []string{s.expiryKey()}, s.prefix, before.UnixMilli(), purgeBatch).Int64()
		if err != nil {
			return total, fmt.Errorf("purge sessions: %w", err)
		}
		total += n
		if n < purgeBatch {
			return total, nil
		}
	}
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func isDuplicateReply(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && strings.HasPrefix(rerr.Error(), "DUPLICATE")
}
