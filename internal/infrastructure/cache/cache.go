// Package cache holds the process-local keyed state of the service: a TTL map
// for response caching and sliding-window counters for throttling and
// failed-login tracking. Both have an in-memory and a Redis backing; neither is
// a source of truth.
package cache

import (
	"context"
	"time"
)

// TTLStore 带过期时间的键值存储
type TTLStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// WindowCounter 滑动窗口计数器
type WindowCounter interface {
	// Hit 记录一次命中并返回窗口内（含本次）的命中数
	Hit(ctx context.Context, key string, window time.Duration) (int, error)
	// Count 返回窗口内的命中数，不记录命中
	Count(ctx context.Context, key string, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}

// Option configures a backing
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock 替换时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
