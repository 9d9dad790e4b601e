package realtime

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sams-http-service/internal/domain/models"
)

const maxMessageSize = 4096

// Client 一个已认证的长连接
type Client struct {
	id       string
	identity models.Identity
	site     *uint // 连接时订阅的站点
	conn     *websocket.Conn
	send     chan []byte
	alive    atomic.Bool
	hub      *Hub
}

// ID returns the connection id
func (c *Client) ID() string { return c.id }

// Identity returns the authenticated identity of the connection
func (c *Client) Identity() models.Identity { return c.identity }

// writePump 独占连接的写端，发送队列关闭后发送关闭帧并断开
func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.hub.log.Debug("写入连接失败", zap.String("client", c.id), zap.Error(err))
			c.hub.remove(c)
			return
		}
	}

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.hub.writeWait),
	)
}

// readPump 读取客户端请求，连接断开时注销
func (c *Client) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("连接异常断开", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.hub.sendTo(c, Frame{Type: FrameError, Message: "invalid frame"})
			continue
		}
		c.hub.handleRequest(c, req)
	}
}
