package history

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client abstracts the Redis operations RedisStore needs, so a real
// go-redis client or an in-memory fake can be used interchangeably.
type Client interface {
	// PushTrim appends values to the list at key, keeps only the newest
	// maxLen entries (maxLen <= 0 keeps all) and resets the key's TTL
	// (ttl <= 0 leaves it persistent).
	PushTrim(ctx context.Context, key string, values []string, maxLen int64, ttl time.Duration) error
	// Range returns list elements start..stop inclusive; negative indexes
	// count from the tail.
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	// Touch records member in the sorted set index with score.
	Touch(ctx context.Context, index, member string, score float64) error
	// Stale returns members of index scored at or below maxScore.
	Stale(ctx context.Context, index string, maxScore float64) ([]string, error)
	// Forget deletes keys and removes members from index.
	Forget(ctx context.Context, index string, members, keys []string) error
	Ping(ctx context.Context) error
	Close() error
}

// redisClient adapts a go-redis client to Client.
type redisClient struct {
	rdb *goredis.Client
}

var _ Client = (*redisClient)(nil)

// Dial parses a redis:// URL, connects and verifies the connection.
func Dial(ctx context.Context, url string) (Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisClient{rdb: rdb}, nil
}

func (c *redisClient) PushTrim(ctx context.Context, key string, values []string, maxLen int64, ttl time.Duration) error {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, args...)
		if maxLen > 0 {
			pipe.LTrim(ctx, key, -maxLen, -1)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

func (c *redisClient) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return c.rdb.LRange(ctx, key, start, stop).Result()
}

func (c *redisClient) Touch(ctx context.Context, index, member string, score float64) error {
	return c.rdb.ZAdd(ctx, index, goredis.Z{Score: score, Member: member}).Err()
}

func (c *redisClient) Stale(ctx context.Context, index string, maxScore float64) ([]string, error) {
	return c.rdb.ZRangeByScore(ctx, index, &goredis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", maxScore),
	}).Result()
}

func (c *redisClient) Forget(ctx context.Context, index string, members, keys []string) error {
	if len(members) == 0 && len(keys) == 0 {
		return nil
	}
	zargs := make([]any, len(members))
	for i, m := range members {
		zargs[i] = m
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		if len(zargs) > 0 {
			pipe.ZRem(ctx, index, zargs...)
		}
		return nil
	})
	return err
}

func (c *redisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *redisClient) Close() error {
	return c.rdb.Close()
}
