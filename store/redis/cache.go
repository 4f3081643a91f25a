// Package redis provides a read-through session cache in front of any
// session.Store. Reads are served from Redis when possible; writes go to
// the wrapped store and invalidate the cached entry before and after.
// A stale entry can survive a racing read for at most the cache TTL.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	sessions := redisstore.NewSessionCache(client, pgStore)
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/rvoc/session"
)

// Compile-time interface check.
var (
	_ session.Store       = (*SessionCache)(nil)
	_ session.Invalidator = (*SessionCache)(nil)
)

// Option configures the SessionCache.
type Option func(*SessionCache)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *SessionCache) { c.logger = l }
}

// WithTTL bounds how long an entry is cached.
func WithTTL(d time.Duration) Option {
	return func(c *SessionCache) { c.ttl = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *SessionCache) { c.now = now }
}

// SessionCache decorates a session.Store with a Redis read cache. Redis
// errors are logged and the wrapped store is used instead.
type SessionCache struct {
	client redis.Cmdable
	inner  session.Store
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionCache creates a SessionCache. The caller owns the Redis client
// lifecycle.
func NewSessionCache(client redis.Cmdable, inner session.Store, opts ...Option) *SessionCache {
	c := &SessionCache{
		client: client,
		inner:  inner,
		logger: slog.Default(),
		ttl:    15 * time.Second,
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Client returns the underlying Redis client.
func (c *SessionCache) Client() redis.Cmdable { return c.client }

// Ping verifies the Redis connection is alive.
func (c *SessionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// generation returns the current cache generation. Missing means zero.
func (c *SessionCache) generation(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, generationKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

func (c *SessionCache) warn(msg string, err error) {
	c.logger.Warn(msg, slog.String("error", err.Error()))
}

// ReadSession implements session.Store.
func (c *SessionCache) ReadSession(ctx context.Context, id session.ID) (*session.Record, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.warn("session cache unavailable", err)
		return c.inner.ReadSession(ctx, id)
	}
	key := sessionKey(gen, id)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rec session.Record
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			return &rec, nil
		}
		c.logger.Warn("dropping undecodable session cache entry")
		c.client.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.warn("session cache get failed", err)
		return c.inner.ReadSession(ctx, id)
	}

	rec, err := c.inner.ReadSession(ctx, id)
	if err != nil || rec == nil {
		return rec, err
	}

	ttl := min(c.ttl, rec.Expiry.Sub(c.now()))
	if ttl <= 0 {
		return rec, nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return rec, nil
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.warn("session cache set failed", err)
	}
	return rec, nil
}

// invalidate drops cached entries for ids in the current generation.
func (c *SessionCache) invalidate(ctx context.Context, ids ...session.ID) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.warn("session cache invalidate failed", err)
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(gen, id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.warn("session cache invalidate failed", err)
	}
}

// bump starts a new generation, orphaning every cached entry.
func (c *SessionCache) bump(ctx context.Context) {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		c.warn("session cache clear failed", err)
	}
}

// Invalidate implements session.Invalidator by starting a new generation.
// Unlike the invalidation done around writes, a failure is returned.
func (c *SessionCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("rvoc/redis: invalidate sessions: %w", err)
	}
	return nil
}

// CreateSession implements session.Store. The id is invalidated in case a
// stale entry from a deleted session with the same id is still cached.
func (c *SessionCache) CreateSession(ctx context.Context, id session.ID, expiry time.Time, data session.Data) (session.WriteResult, error) {
	res, err := c.inner.CreateSession(ctx, id, expiry, data)
	if err == nil && res == session.WriteOK {
		c.invalidate(ctx, id)
	}
	return res, err
}

// UpdateSession implements session.Store.
func (c *SessionCache) UpdateSession(ctx context.Context, current, previous session.ID, expiry time.Time, data session.Data) (session.WriteResult, error) {
	c.invalidate(ctx, previous, current)
	res, err := c.inner.UpdateSession(ctx, current, previous, expiry, data)
	c.invalidate(ctx, previous, current)
	return res, err
}

// DeleteSession implements session.Store.
func (c *SessionCache) DeleteSession(ctx context.Context, id session.ID) error {
	c.invalidate(ctx, id)
	err := c.inner.DeleteSession(ctx, id)
	c.invalidate(ctx, id)
	return err
}

// ClearSessions implements session.Store.
func (c *SessionCache) ClearSessions(ctx context.Context) error {
	c.bump(ctx)
	err := c.inner.ClearSessions(ctx)
	c.bump(ctx)
	return err
}

// DeleteExpiredSessions implements session.Store. Cached entries never
// outlive their expiry, so nothing needs invalidating.
func (c *SessionCache) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	return c.inner.DeleteExpiredSessions(ctx, now)
}
