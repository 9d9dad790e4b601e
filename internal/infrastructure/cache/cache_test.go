package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type backing interface {
	TTLStore
	WindowCounter
}

func backings(t *testing.T, clock *fakeClock) map[string]backing {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]backing{
		"memory": NewMemory(WithClock(clock.now)),
		"redis":  NewRedis(client, "test:", WithClock(clock.now)),
	}
}

func TestWindowCounter_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}

	for name, b := range backings(t, clock) {
		t.Run(name, func(t *testing.T) {
			key := "login:" + name
			for i := 1; i <= 4; i++ {
				n, err := b.Hit(ctx, key, 15*time.Minute)
				require.NoError(t, err)
				assert.Equal(t, i, n)
				clock.advance(time.Minute)
			}

			// 第一次命中滑出窗口
			clock.advance(11*time.Minute + time.Second)
			n, err := b.Count(ctx, key, 15*time.Minute)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			n, err = b.Hit(ctx, key, 15*time.Minute)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			require.NoError(t, b.Reset(ctx, key))
			n, err = b.Count(ctx, key, 15*time.Minute)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestTTLStore_GetSetDeletePrefix(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}

	for name, b := range backings(t, clock) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Set(ctx, "resp:alerts:1", []byte(`{"a":1}`), time.Minute))
			require.NoError(t, b.Set(ctx, "resp:alerts:2", []byte(`{"a":2}`), time.Minute))
			require.NoError(t, b.Set(ctx, "resp:emergency:1", []byte(`{}`), time.Minute))

			v, ok, err := b.Get(ctx, "resp:alerts:1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.JSONEq(t, `{"a":1}`, string(v))

			require.NoError(t, b.DeletePrefix(ctx, "resp:alerts:"))
			_, ok, err = b.Get(ctx, "resp:alerts:2")
			require.NoError(t, err)
			assert.False(t, ok)

			_, ok, err = b.Get(ctx, "resp:emergency:1")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, b.Delete(ctx, "resp:emergency:1"))
			_, ok, err = b.Get(ctx, "resp:emergency:1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestMemory_ExpiryAndSweep(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	m := NewMemory(WithClock(clock.now))

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := m.Hit(ctx, "w", time.Minute)
	require.NoError(t, err)

	clock.advance(2 * time.Minute)
	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	m.Sweep()
	items, windows := m.Len()
	assert.Zero(t, items)
	assert.Zero(t, windows)
}

func TestMemory_RunJanitorStopsOnCancel(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
