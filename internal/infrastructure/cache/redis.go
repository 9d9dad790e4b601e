package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Redis Redis实现，同时满足 TTLStore 与 WindowCounter。
// 滑动窗口用有序集合保存命中时间（纳秒分值）
type Redis struct {
	client    *redis.Client
	namespace string
	now       func() time.Time
}

// NewRedis 创建Redis存储，所有键加上 namespace 前缀
func NewRedis(client *redis.Client, namespace string, opts ...Option) *Redis {
	o := buildOptions(opts)
	return &Redis{client: client, namespace: namespace, now: o.now}
}

func (r *Redis) key(k string) string {
	return r.namespace + k
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, r.key(prefix)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	now := r.now()
	k := r.key(key)
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(now.Add(-window).UnixNano(), 10))
		pipe.ZAdd(ctx, k, &redis.Z{
			Score:  float64(now.UnixNano()),
			Member: uuid.NewString(),
		})
		card = pipe.ZCard(ctx, k)
		pipe.Expire(ctx, k, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("hit %s: %w", key, err)
	}
	return int(card.Val()), nil
}

func (r *Redis) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	k := r.key(key)
	cutoff := strconv.FormatInt(r.now().Add(-window).UnixNano(), 10)
	n, err := r.client.ZCount(ctx, k, "("+cutoff, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", key, err)
	}
	return int(n), nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
