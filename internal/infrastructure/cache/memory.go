package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

type memoryWindow struct {
	hits   []time.Time
	window time.Duration
}

// Memory 进程内实现，同时满足 TTLStore 与 WindowCounter
type Memory struct {
	mu      sync.Mutex
	items   map[string]memoryItem
	windows map[string]*memoryWindow
	now     func() time.Time
}

// NewMemory 创建内存存储
func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{
		items:   make(map[string]memoryItem),
		windows: make(map[string]*memoryWindow),
		now:     o.now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.After(m.now()) {
		delete(m.items, key)
		return nil, false, nil
	}
	return item.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memoryItem{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	delete(m.windows, key)
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

func (m *Memory) Hit(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok {
		w = &memoryWindow{}
		m.windows[key] = w
	}
	w.window = window
	w.hits = append(prune(w.hits, now.Add(-window)), now)
	return len(w.hits), nil
}

func (m *Memory) Count(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok {
		return 0, nil
	}
	w.hits = prune(w.hits, m.now().Add(-window))
	return len(w.hits), nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, key)
	return nil
}

// prune 丢弃不晚于 cutoff 的命中，hits 按时间升序
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// Sweep 清理过期条目和已无命中的窗口
func (m *Memory) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, item := range m.items {
		if !item.expiresAt.After(now) {
			delete(m.items, key)
		}
	}
	for key, w := range m.windows {
		w.hits = prune(w.hits, now.Add(-w.window))
		if len(w.hits) == 0 {
			delete(m.windows, key)
		}
	}
}

// Len 返回当前条目数与窗口数
func (m *Memory) Len() (items, windows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), len(m.windows)
}

// RunJanitor 按间隔清理，ctx 取消后返回
func (m *Memory) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
