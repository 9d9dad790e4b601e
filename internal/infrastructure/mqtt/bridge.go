// Package mqtt bridges domain events to on-site devices (gate controllers,
// sirens, displays) over an MQTT broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sams-http-service/internal/domain/events"
	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/infrastructure/config"
)

// Publisher is the subset of paho.Client the bridge needs
type Publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Message 发布到设备的事件消息
type Message struct {
	Event     events.Type           `json:"event"`
	SiteID    *uint                 `json:"site_id,omitempty"`
	SiteIDs   []uint                `json:"site_ids,omitempty"`
	Entry     *models.Entry         `json:"entry,omitempty"`
	Alert     *models.Alert         `json:"alert,omitempty"`
	Emergency *models.EmergencyMode `json:"emergency,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// Bridge 订阅事件总线并将事件发布到MQTT，发布失败只记录日志
type Bridge struct {
	client  Publisher
	prefix  string
	qos     byte
	timeout time.Duration
	log     *zap.Logger
	async   bool
}

// NewClient 按配置创建paho客户端，自动重连
func NewClient(cfg *config.Config, log *zap.Logger) paho.Client {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.MQTTBrokerURL)
	// 使用唯一的客户端ID，避免同一服务多实例冲突
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.MQTTClientID, uuid.New().String()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)

	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn("MQTT连接丢失", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(_ paho.Client) {
		log.Info("MQTT已连接", zap.String("broker", cfg.MQTTBrokerURL))
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		log.Info("MQTT正在重连")
	})

	return paho.NewClient(opts)
}

// NewBridge 创建事件桥接
func NewBridge(client Publisher, prefix string, qos int, log *zap.Logger) *Bridge {
	if qos < 0 || qos > 2 {
		qos = 1
	}
	return &Bridge{
		client:  client,
		prefix:  prefix,
		qos:     byte(qos),
		timeout: 3 * time.Second,
		log:     log,
		async:   true,
	}
}

// SubscribeTo 订阅全部领域事件
func (b *Bridge) SubscribeTo(bus *events.Bus) {
	bus.SubscribeAll(b.Handle)
}

// Handle 发布一个事件，不阻塞事件发布者
func (b *Bridge) Handle(e events.Event) {
	topic := Topic(b.prefix, e)
	msg := NewMessage(e)
	if b.async {
		go b.publish(topic, msg)
		return
	}
	b.publish(topic, msg)
}

func (b *Bridge) publish(topic string, msg Message) {
	if !b.client.IsConnected() {
		b.log.Debug("MQTT未连接，丢弃事件", zap.String("topic", topic))
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("序列化MQTT消息失败", zap.String("topic", topic), zap.Error(err))
		return
	}

	token := b.client.Publish(topic, b.qos, false, data)
	if !token.WaitTimeout(b.timeout) {
		b.log.Warn("发布MQTT消息超时", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		b.log.Warn("发布MQTT消息失败", zap.String("topic", topic), zap.Error(err))
		return
	}
	b.log.Debug("已发布MQTT消息", zap.String("topic", topic))
}

// Topic 站点事件发布到 <prefix>/sites/<id>/<event>，其他发布到 <prefix>/global/<event>
func Topic(prefix string, e events.Event) string {
	if e.SiteID != nil {
		return fmt.Sprintf("%s/sites/%d/%s", prefix, *e.SiteID, e.Type)
	}
	return fmt.Sprintf("%s/global/%s", prefix, e.Type)
}

// NewMessage 将事件转换为消息体
func NewMessage(e events.Event) Message {
	return Message{
		Event:     e.Type,
		SiteID:    e.SiteID,
		SiteIDs:   e.SiteIDs,
		Entry:     e.Entry,
		Alert:     e.Alert,
		Emergency: e.Emergency,
		Timestamp: e.OccurredAt,
	}
}
