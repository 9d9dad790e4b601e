// Package events defines domain events and the in-process bus that carries them
// from the domain services to the hub, the alert rules and the device bridge.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"sams-http-service/internal/domain/models"
)

// Type 事件类型
type Type string

const (
	EntryCreated         Type = "entry_created"
	EntryExited          Type = "entry_exited"
	AlertCreated         Type = "alert_created"
	EmergencyActivated   Type = "emergency_activated"
	EmergencyDeactivated Type = "emergency_deactivated"
	OccupancyChanged     Type = "occupancy_changed"
)

// Event 领域事件。SiteID 为空表示全局事件（如全局紧急模式）
type Event struct {
	Type      Type
	SiteID    *uint
	Entry     *models.Entry
	Alert     *models.Alert
	Emergency *models.EmergencyMode
	// SiteIDs 仅用于 OccupancyChanged，为空表示全部站点
	SiteIDs []uint
	// Bulk 批量操作拆分出的单条事件，随后会发布一次 OccupancyChanged
	Bulk       bool
	OccurredAt time.Time
}

// Handler 事件处理函数
type Handler func(Event)

// Publisher is implemented by anything services can emit events to
type Publisher interface {
	Publish(Event)
}

// Bus 进程内同步事件总线，处理函数按订阅顺序在发布者的goroutine中执行
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
	log      *zap.Logger
}

// NewBus 创建事件总线
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{handlers: make(map[Type][]Handler), log: log}
}

// Subscribe 订阅指定类型的事件
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll 订阅所有事件
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish 发布事件，单个处理函数的panic被记录后不影响其他处理函数和发布者
func (b *Bus) Publish(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[e.Type])+len(b.all))
	hs = append(hs, b.handlers[e.Type]...)
	hs = append(hs, b.all...)
	b.mu.RUnlock()

	for _, h := range hs {
		b.dispatch(h, e)
	}
}

func (b *Bus) dispatch(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", zap.String("event", string(e.Type)), zap.Any("panic", r))
		}
	}()
	h(e)
}

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) Publish(Event) {}
