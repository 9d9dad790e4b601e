// Package realtime holds the Broadcast Hub: the set of live websocket
// connections and the per-frame access rules used to fan out domain events.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sams-http-service/internal/domain/events"
	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/domain/services"
)

// Config 连接参数
type Config struct {
	Heartbeat  time.Duration // 心跳探测间隔
	WriteWait  time.Duration // 单次写入超时
	SendBuffer int           // 每个连接的发送队列长度
	InboxSize  int           // 待分发事件队列长度
}

// DefaultConfig 默认连接参数
var DefaultConfig = Config{
	Heartbeat:  30 * time.Second,
	WriteWait:  10 * time.Second,
	SendBuffer: 64,
	InboxSize:  256,
}

// Hub 管理所有连接。注册表只由 Hub 修改，事件在单独的goroutine中分发
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	occupancy services.InterfaceOccupancyService
	inbox     chan events.Event
	log       *zap.Logger

	heartbeat  time.Duration
	writeWait  time.Duration
	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewHub 创建广播中心
func NewHub(occupancy services.InterfaceOccupancyService, cfg Config, log *zap.Logger) *Hub {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultConfig.Heartbeat
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = DefaultConfig.WriteWait
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig.SendBuffer
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultConfig.InboxSize
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:    make(map[string]*Client),
		occupancy:  occupancy,
		inbox:      make(chan events.Event, cfg.InboxSize),
		log:        log,
		heartbeat:  cfg.Heartbeat,
		writeWait:  cfg.WriteWait,
		sendBuffer: cfg.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 令牌认证，不限制来源
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SubscribeTo 订阅事件总线，事件进入队列后由 Run 分发
func (h *Hub) SubscribeTo(bus *events.Bus) {
	bus.SubscribeAll(func(e events.Event) {
		select {
		case h.inbox <- e:
		default:
			h.log.Warn("推送队列已满，丢弃事件", zap.String("event", string(e.Type)))
		}
	})
}

// Run 分发事件并执行心跳，ctx 取消后关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case e := <-h.inbox:
			h.dispatch(ctx, e)
		case <-ticker.C:
			h.probe()
		}
	}
}

// Serve 升级HTTP连接并阻塞读取直到连接关闭。site 非空时只推送该站点的快照
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, identity models.Identity, site *uint) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{
		id:       uuid.New().String(),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, h.sendBuffer),
		hub:      h,
	}
	c.alive.Store(true)

	if site != nil && identity.CanAccessSite(*site) {
		c.site = site
	}

	h.register(c)
	go c.writePump()

	if site != nil && c.site == nil {
		h.sendTo(c, Frame{Type: FrameError, Message: "site not accessible"})
	}
	h.sendSnapshot(r.Context(), c, c.site)

	c.readPump()
	return nil
}

// Count 返回当前连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.log.Info("连接已建立",
		zap.String("client", c.id),
		zap.Uint("user_id", c.identity.UserID),
		zap.String("role", string(c.identity.Role)),
	)
}

// remove 注销连接并关闭其发送队列，可重复调用
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[c.id]; !ok || cur != c {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.log.Info("连接已移除", zap.String("client", c.id))
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.remove(c)
	}
}

// probe 关闭未响应上一次探测的连接，并向其余连接发送新的探测
func (h *Hub) probe() {
	h.mu.RLock()
	var dead, live []*Client
	for _, c := range h.clients {
		if c.alive.Swap(false) {
			live = append(live, c)
		} else {
			dead = append(dead, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range dead {
		h.log.Info("心跳超时，关闭连接", zap.String("client", c.id))
		h.remove(c)
		_ = c.conn.Close()
	}

	deadline := time.Now().Add(h.writeWait)
	for _, c := range live {
		if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			h.log.Debug("发送心跳失败", zap.String("client", c.id), zap.Error(err))
			h.remove(c)
		}
	}
}

// broadcast 投递给满足条件的连接，发送队列已满的连接被移除
func (h *Hub) broadcast(frame Frame, allow func(*Client) bool) {
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("序列化推送帧失败", zap.String("type", frame.Type), zap.Error(err))
		return
	}

	var slow []*Client
	h.mu.RLock()
	for _, c := range h.clients {
		if !allow(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("发送队列已满，移除连接", zap.String("client", c.id))
		h.remove(c)
	}
}

// sendTo 向单个连接发送，连接已注销时忽略
func (h *Hub) sendTo(c *Client, frame Frame) {
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("序列化推送帧失败", zap.String("type", frame.Type), zap.Error(err))
		return
	}

	h.mu.RLock()
	full := false
	if cur, ok := h.clients[c.id]; ok && cur == c {
		select {
		case c.send <- data:
		default:
			full = true
		}
	}
	h.mu.RUnlock()

	if full {
		h.log.Warn("发送队列已满，移除连接", zap.String("client", c.id))
		h.remove(c)
	}
}

func (h *Hub) handleRequest(c *Client, req Request) {
	switch req.Type {
	case RequestPing:
		c.alive.Store(true)
		h.sendTo(c, Frame{Type: FramePong})
	case RequestGetOccupancy:
		if req.Site != nil && !c.identity.CanAccessSite(*req.Site) {
			h.sendTo(c, Frame{Type: FrameError, Message: "site not accessible"})
			return
		}
		h.sendSnapshot(context.Background(), c, req.Site)
	default:
		h.sendTo(c, Frame{Type: FrameError, Message: "unknown frame type"})
	}
}

// sendSnapshot 单站点或连接可访问的全部站点
func (h *Hub) sendSnapshot(ctx context.Context, c *Client, site *uint) {
	var (
		data interface{}
		err  error
	)
	switch {
	case site != nil:
		data, err = h.occupancy.OccupancyOf(ctx, *site)
	case c.identity.AllAccess():
		data, err = h.occupancy.OccupancyOfAll(ctx)
	default:
		data, err = h.occupancy.OccupancyOfSites(ctx, c.identity.SiteIDs)
	}
	if err != nil {
		h.log.Warn("获取占用快照失败", zap.String("client", c.id), zap.Error(err))
		h.sendTo(c, Frame{Type: FrameError, Message: "occupancy unavailable"})
		return
	}
	h.sendTo(c, Frame{Type: FrameOccupancyUpdate, Data: data, Site: site})
}

// dispatch 将领域事件转换为推送帧
func (h *Hub) dispatch(ctx context.Context, e events.Event) {
	switch e.Type {
	case events.EntryCreated, events.EntryExited:
		if e.Entry == nil {
			return
		}
		frameType := FrameEntryCreated
		if e.Type == events.EntryExited {
			frameType = FrameEntryUpdated
		}
		siteID := e.Entry.SiteID
		h.broadcast(Frame{Type: frameType, Entry: e.Entry, Site: &siteID, Timestamp: e.OccurredAt}, func(c *Client) bool {
			return canSeeEntry(c.identity, siteID)
		})
		if !e.Bulk {
			h.pushOccupancy(ctx, []uint{siteID})
		}

	case events.AlertCreated:
		if e.Alert == nil {
			return
		}
		h.broadcast(Frame{Type: FrameAlert, Alert: e.Alert, Site: e.Alert.SiteID, Timestamp: e.OccurredAt}, func(c *Client) bool {
			return canSeeAlert(c.identity, e.Alert)
		})

	case events.EmergencyActivated, events.EmergencyDeactivated:
		if e.Emergency == nil {
			return
		}
		active := e.Type == events.EmergencyActivated
		h.broadcast(Frame{
			Type:      FrameEmergencyMode,
			Emergency: e.Emergency,
			Active:    &active,
			Site:      e.Emergency.SiteID,
			Timestamp: e.OccurredAt,
		}, func(c *Client) bool {
			return canSeeEmergency(c.identity, e.Emergency)
		})

	case events.OccupancyChanged:
		h.pushOccupancy(ctx, e.SiteIDs)
	}
}

// pushOccupancy 重新计算并推送站点占用，siteIDs 为空表示全部启用站点
func (h *Hub) pushOccupancy(ctx context.Context, siteIDs []uint) {
	var (
		snapshots []services.SiteOccupancy
		err       error
	)
	if len(siteIDs) == 0 {
		snapshots, err = h.occupancy.OccupancyOfAll(ctx)
	} else {
		snapshots, err = h.occupancy.OccupancyOfSites(ctx, siteIDs)
	}
	if err != nil {
		h.log.Warn("计算站点占用失败", zap.Error(err))
		return
	}

	for i := range snapshots {
		snapshot := snapshots[i]
		siteID := snapshot.SiteID
		h.broadcast(Frame{Type: FrameOccupancyUpdate, Data: snapshot, Site: &siteID}, func(c *Client) bool {
			return canSeeOccupancy(c.identity, c.site, siteID)
		})
	}
}
