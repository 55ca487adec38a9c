// Package ratelimit provides Redis-backed rate limiting using the INCR + EXPIRE
// fixed window algorithm. The chat server uses it to bound how fast a single
// user can post into event chats.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:send:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

var (
	// RuleSend allows 5 messages per 10 seconds per user.
	RuleSend = Rule{Key: "rl:send:", Limit: 5, Window: 10 * time.Second}

	// RuleDelete allows 20 deletes per minute per user.
	RuleDelete = Rule{Key: "rl:del:", Limit: 20, Window: 1 * time.Minute}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client redis.Cmdable
	logger *zap.Logger
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client redis.Cmdable, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{client: client, logger: logger.Named("ratelimit")}
}

// Allow checks whether the given identifier is within the rate limit defined by
// rule. It increments the counter in Redis and sets the expiry on first access.
//
// Returns true if the request is allowed, false if rate limited. On Redis
// errors the method fails open (returns true) so that a Redis outage does not
// block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("redis INCR failed, failing open", zap.String("key", key), zap.Error(err))
		return true, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			l.logger.Warn("redis EXPIRE failed, failing open", zap.String("key", key), zap.Error(err))
			// Without a TTL the key would block the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}

// Remaining returns the number of requests the identifier has left in the
// current window for the given rule. Returns the full limit if the key does not
// exist yet. On Redis errors it returns the full limit (fail open).
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return rule.Limit, nil
	}
	if err != nil {
		l.logger.Warn("redis GET failed, failing open", zap.String("key", key), zap.Error(err))
		return rule.Limit, err
	}

	return max(rule.Limit-count, 0), nil
}

// RetryAfter returns how long until the identifier's window resets. It is
// zero when no window is open.
func (l *Limiter) RetryAfter(ctx context.Context, identifier string, rule Rule) (time.Duration, error) {
	ttl, err := l.client.PTTL(ctx, rule.Key+identifier).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
