package container

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sams-http-service/internal/domain/events"
	"sams-http-service/internal/domain/services"
	"sams-http-service/internal/infrastructure/cache"
	"sams-http-service/internal/infrastructure/config"
)

// ServiceContainer 管理所有服务的依赖注入
type ServiceContainer struct {
	db     *gorm.DB
	config *config.Config
	redis  *redis.Client
	log    *zap.Logger

	// 基础设施
	bus     *events.Bus
	store   cache.TTLStore
	counter cache.WindowCounter
	memory  *cache.Memory

	// 基础服务
	jwtService   services.InterfaceJWTService
	auditService *services.AuditService

	// 业务服务
	fieldSchemaService services.InterfaceFieldSchemaService
	occupancyService   services.InterfaceOccupancyService
	alertService       services.InterfaceAlertService
	emergencyService   services.InterfaceEmergencyService
	entryService       services.InterfaceEntryService

	mu sync.RWMutex
}

// NewServiceContainer 创建新的服务容器，redisClient 为空或不可用时使用内存存储
func NewServiceContainer(db *gorm.DB, cfg *config.Config, redisClient *redis.Client, log *zap.Logger) *ServiceContainer {
	if db == nil {
		panic("数据库连接为空")
	}

	if cfg == nil {
		panic("配置为空")
	}

	if log == nil {
		log = zap.NewNop()
	}

	// 测试Redis连接
	if redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("Redis连接测试失败，将使用内存存储", zap.Error(err))
			redisClient = nil
		}
	}

	container := &ServiceContainer{
		db:     db,
		config: cfg,
		redis:  redisClient,
		log:    log,
	}
	container.initializeServices()
	return container
}

// initializeServices 初始化所有服务
func (c *ServiceContainer) initializeServices() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bus = events.NewBus(c.log.Named("events"))

	// 限流计数与响应缓存的存储
	if c.redis != nil {
		r := cache.NewRedis(c.redis, "sams:")
		c.store, c.counter = r, r
	} else {
		c.memory = cache.NewMemory()
		c.store, c.counter = c.memory, c.memory
	}

	c.auditService = services.NewAuditService(c.db, c.log.Named("audit"))
	c.fieldSchemaService = services.NewFieldSchemaService(c.db)
	c.occupancyService = services.NewOccupancyService(c.db)

	alerts := services.NewAlertService(c.db, c.occupancyService, c.counter, c.bus, c.log.Named("alert"))
	alerts.SubscribeTo(c.bus)
	c.alertService = alerts

	emergency := services.NewEmergencyService(c.db, c.auditService, c.bus, c.log.Named("emergency"))
	c.emergencyService = emergency

	c.entryService = services.NewEntryService(c.db, c.fieldSchemaService, emergency, alerts, c.auditService, c.bus, c.log.Named("entry"))
	c.jwtService = services.NewJWTService(c.config, c.db, alerts, c.log.Named("auth"))
}

// GetService 获取指定名称的服务
func (c *ServiceContainer) GetService(name string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch name {
	case "config":
		return c.config
	case "db":
		return c.db
	case "logger":
		return c.log
	case "jwt":
		return c.jwtService
	case "audit":
		return c.auditService
	case "field_schema":
		return c.fieldSchemaService
	case "occupancy":
		return c.occupancyService
	case "alert":
		return c.alertService
	case "emergency":
		return c.emergencyService
	case "entry":
		return c.entryService
	default:
		return nil
	}
}

// GetDB 获取数据库连接
func (c *ServiceContainer) GetDB() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// Bus 获取事件总线
func (c *ServiceContainer) Bus() *events.Bus {
	return c.bus
}

// Store 获取响应缓存存储
func (c *ServiceContainer) Store() cache.TTLStore {
	return c.store
}

// Counter 获取滑动窗口计数器
func (c *ServiceContainer) Counter() cache.WindowCounter {
	return c.counter
}

// CacheBackend 返回当前使用的存储类型
func (c *ServiceContainer) CacheBackend() string {
	if c.redis != nil {
		return "redis"
	}
	return "memory"
}

// RunJanitor 内存存储时定期清理过期条目，使用Redis时依赖键过期直接返回
func (c *ServiceContainer) RunJanitor(ctx context.Context, interval time.Duration) {
	if c.memory == nil {
		return
	}
	c.memory.RunJanitor(ctx, interval)
}

// Close 等待进行中的审计写入
func (c *ServiceContainer) Close() {
	c.auditService.Wait()
}
