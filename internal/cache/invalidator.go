// Package cache notifies the shared Redis response cache that resources
// changed.  The cache itself is owned by the resource routers; this package
// only deletes keys by pattern.
package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/cafeteria-procurement/internal/config"
)

// UsersPattern matches every cached response derived from user records.
const UsersPattern = "users:*"

const scanBatch = 100

// Invalidator deletes cached entries under a key prefix.  A nil client or a
// disabled config turns every call into a no-op.
type Invalidator struct {
	rdb    *redis.Client
	prefix string
	log    *zap.Logger
}

func NewInvalidator(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) *Invalidator {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.InvalidationEnabled {
		rdb = nil
	}
	return &Invalidator{rdb: rdb, prefix: cfg.Prefix, log: log.Named("cache")}
}

// Invalidate removes keys matching prefix:pattern for each pattern and
// returns how many were deleted.
func (i *Invalidator) Invalidate(ctx context.Context, patterns ...string) (int64, error) {
	if i == nil || i.rdb == nil {
		return 0, nil
	}
	var deleted int64
	for _, p := range patterns {
		match := p
		if i.prefix != "" {
			match = i.prefix + ":" + p
		}
		iter := i.rdb.Scan(ctx, 0, match, scanBatch).Iterator()
		batch := make([]string, 0, scanBatch)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == scanBatch {
				n, err := i.rdb.Del(ctx, batch...).Result()
				if err != nil {
					return deleted, err
				}
				deleted += n
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return deleted, err
		}
		if len(batch) > 0 {
			n, err := i.rdb.Del(ctx, batch...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
	}
	i.log.Debug("cache invalidated", zap.Strings("patterns", patterns), zap.Int64("deleted", deleted))
	return deleted, nil
}
