package patrol

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"guard-patrol-logistics-system/api/internal/models"
	"guard-patrol-logistics-system/shared/cachex"
	"guard-patrol-logistics-system/shared/logx"
)

// CachedPostRegistry fronts token resolution with Redis. Tokens are
// immutable once printed on a QR plate, so a short TTL only has to
// absorb post edits, not token churn. Authorization checks always go to
// the database.
type CachedPostRegistry struct {
	inner PostRegistry
	cache *cachex.Client
	ttl   time.Duration
	log   logx.Logger
}

func NewCachedPostRegistry(inner PostRegistry, cache *cachex.Client, ttl time.Duration, log logx.Logger) *CachedPostRegistry {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedPostRegistry{inner: inner, cache: cache, ttl: ttl, log: log}
}

func (c *CachedPostRegistry) ResolveToken(ctx context.Context, token string) (models.Post, error) {
	key := "post:token:" + token

	if c.cache != nil {
		var cached models.Post
		found, err := c.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			c.log.Warn(ctx, "post_cache_read_failed", "post token cache read failed", slog.Any("error", err))
		} else if found {
			return cached, nil
		}
	}

	post, err := c.inner.ResolveToken(ctx, token)
	if err != nil {
		return models.Post{}, err
	}

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, key, post, c.ttl); err != nil {
			c.log.Warn(ctx, "post_cache_write_failed", "post token cache write failed", slog.Any("error", err))
		}
	}
	return post, nil
}

// Invalidate drops a token from the cache. Called when the post behind
// it is edited or deleted so a stale entry can never be served past the
// change.
func (c *CachedPostRegistry) Invalidate(ctx context.Context, token string) {
	if c.cache == nil || token == "" {
		return
	}
	if err := c.cache.Delete(ctx, "post:token:"+token); err != nil {
		c.log.Warn(ctx, "post_cache_invalidate_failed", "post token cache invalidate failed", slog.Any("error", err))
	}
}

func (c *CachedPostRegistry) IsGuardAuthorized(ctx context.Context, postID uuid.UUID, guardID uuid.UUID) (bool, error) {
	return c.inner.IsGuardAuthorized(ctx, postID, guardID)
}
