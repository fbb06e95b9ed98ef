package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginThrottle is a fixed-window request counter shared by every replica.
// It satisfies echo's middleware.RateLimiterStore.
//
// Key format: <prefix>throttle:<identifier>:<window start unix>
type LoginThrottle struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewLoginThrottle allows limit requests per identifier in each window.
func NewLoginThrottle(client redis.UniversalClient, prefix string, limit int64, window time.Duration) *LoginThrottle {
	return &LoginThrottle{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow counts the request and reports whether it fits in the current window.
func (t *LoginThrottle) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	key := t.key(identifier)
	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("throttle check: %w", err)
	}
	return incr.Val() <= t.limit, nil
}

func (t *LoginThrottle) key(identifier string) string {
	start := t.now().Truncate(t.window).Unix()
	return fmt.Sprintf("%sthrottle:%s:%d", t.prefix, identifier, start)
}
