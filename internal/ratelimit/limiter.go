// Package ratelimit implements fixed-window request admission control
// backed by a shared atomic counter.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore is the shared counter the limiter counts against. Increment
// must be atomic across concurrent callers and across process instances.
type CounterStore interface {
	// Increment atomically increments the counter for key and returns the
	// post-increment value. When the increment created the key (returned
	// value is 1) the implementation sets the key to expire after window —
	// and only then. Expiry is never refreshed on later increments; that
	// would silently stretch the window.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool

	// Limit and Window echo the configured policy so a denied caller can
	// back off correctly. Nothing about the caller's identity or the
	// internal counter key is exposed.
	Limit  int
	Window time.Duration
}

// Config holds the admission policy.
type Config struct {
	// Limit is the number of requests admitted per window.
	Limit int

	// Window is the fixed counting window, started by the first request.
	Window time.Duration

	// FailOpen decides behavior when the counter store is unreachable:
	// true admits, false denies. Chosen explicitly by configuration.
	FailOpen bool
}

// Limiter gates admission per caller identity and operation using a fixed
// window: the window starts on the first hit and expires unconditionally
// after the configured duration, regardless of further hits.
type Limiter struct {
	store  CounterStore
	config Config
	logger *slog.Logger
}

// NewLimiter creates a Limiter with the given counter store and policy.
func NewLimiter(store CounterStore, config Config, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:  store,
		config: config,
		logger: logger.With("component", "rate_limiter"),
	}
}

// Admit decides whether one request from the given caller for the given
// operation may proceed. The counter key scopes the limit per operation per
// caller, so one noisy client cannot exhaust another's budget, and one
// operation's traffic cannot exhaust another's.
func (l *Limiter) Admit(ctx context.Context, operation, callerID string) Decision {
	key := counterKey(operation, callerID)

	count, err := l.store.Increment(ctx, key, l.config.Window)
	if err != nil {
		// Counter store unreachable: fail open or closed per configuration,
		// never silently.
		l.logger.Error("counter store unavailable",
			"operation", operation,
			"fail_open", l.config.FailOpen,
			"error", err)
		return Decision{Allowed: l.config.FailOpen, Limit: l.config.Limit, Window: l.config.Window}
	}

	if count > int64(l.config.Limit) {
		l.logger.Warn("rate limit exceeded",
			"operation", operation,
			"count", count,
			"limit", l.config.Limit)
		return Decision{Allowed: false, Limit: l.config.Limit, Window: l.config.Window}
	}

	return Decision{Allowed: true, Limit: l.config.Limit, Window: l.config.Window}
}

// counterKey builds the shared counter key for an operation/caller pair.
func counterKey(operation, callerID string) string {
	return fmt.Sprintf("rate_limit:%s:%s", operation, callerID)
}

// RedisCounterStore implements CounterStore on a shared Redis instance,
// making the limit hold across all process instances.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore wraps an already-connected client. The client's
// lifecycle (open/close) belongs to the process bootstrap, not this package.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Increment performs INCR and, only when the increment created the key,
// PEXPIRE. INCR is atomic server-side, so two racing requests always see
// distinct, correct counts.
func (s *RedisCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("failed to set counter expiry: %w", err)
		}
	}

	return count, nil
}
