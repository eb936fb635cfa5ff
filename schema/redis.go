package schema

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

func cacheKey(boardID string) string {
	return "schema:" + boardID
}

func (c *Cache) loadFromRedis(ctx context.Context, boardID string) (Schema, bool) {
	if c.redis == nil {
		return Schema{}, false
	}
	data, err := c.redis.Get(ctx, cacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the remote fetch without failing.
			c.log.WithError(err).WithField("board", boardID).Warn("schema cache read failed")
		}
		return Schema{}, false
	}
	var s Schema
	if err := sonic.Unmarshal(data, &s); err != nil || s.BoardID != boardID {
		_ = c.redis.Del(ctx, cacheKey(boardID)).Err()
		return Schema{}, false
	}
	if c.expired(s) {
		return Schema{}, false
	}
	return s, true
}

func (c *Cache) storeInRedis(ctx context.Context, s Schema) {
	if c.redis == nil {
		return
	}
	data, err := sonic.Marshal(s)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cacheKey(s.BoardID), data, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("board", s.BoardID).Warn("schema cache write failed")
	}
}
