package middleware

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sams-http-service/internal/domain/events"
	"sams-http-service/internal/infrastructure/cache"
)

// 响应缓存键前缀
const responseCachePrefix = "resp:"

// CacheConfig 缓存配置
type CacheConfig struct {
	Expiration time.Duration             // 缓存过期时间
	Methods    []string                  // 需要缓存的HTTP方法
	KeyFunc    func(*gin.Context) string // 自定义缓存键生成函数
	Log        *zap.Logger
}

// DefaultCacheConfig 默认缓存配置
var DefaultCacheConfig = CacheConfig{
	Expiration: 5 * time.Second,
	Methods:    []string{http.MethodGet},
	KeyFunc:    defaultKeyFunc,
}

// 默认缓存键生成函数，包含调用者ID以免跨站点权限泄露
func defaultKeyFunc(c *gin.Context) string {
	path := c.Request.URL.Path

	// 获取查询参数并排序
	queryParams := c.Request.URL.Query()
	queryKeys := make([]string, 0, len(queryParams))
	for key := range queryParams {
		queryKeys = append(queryKeys, key)
	}
	sort.Strings(queryKeys)

	var b strings.Builder
	for _, key := range queryKeys {
		values := queryParams[key]
		sort.Strings(values)
		for _, value := range values {
			b.WriteString(key + "=" + value + "&")
		}
	}

	user := ""
	if identity, ok := CurrentIdentity(c); ok {
		user = fmt.Sprint(identity.UserID)
	}

	hasher := md5.New()
	hasher.Write([]byte(user + "|" + path + "?" + b.String()))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Cache 创建缓存中间件，只缓存200响应
func Cache(store cache.TTLStore, config ...CacheConfig) gin.HandlerFunc {
	var cfg CacheConfig
	if len(config) > 0 {
		cfg = config[0]
	} else {
		cfg = DefaultCacheConfig
	}

	// 确保配置有效
	if cfg.Expiration <= 0 {
		cfg.Expiration = DefaultCacheConfig.Expiration
	}
	if len(cfg.Methods) == 0 {
		cfg.Methods = DefaultCacheConfig.Methods
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = DefaultCacheConfig.KeyFunc
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	return func(c *gin.Context) {
		methodAllowed := false
		for _, method := range cfg.Methods {
			if c.Request.Method == method {
				methodAllowed = true
				break
			}
		}
		if !methodAllowed {
			c.Next()
			return
		}

		key := responseCachePrefix + cfg.KeyFunc(c)

		content, found, err := store.Get(c.Request.Context(), key)
		if err != nil {
			cfg.Log.Warn("读取响应缓存失败", zap.Error(err))
		}
		if found {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", content)
			c.Abort()
			return
		}

		// 缓存未命中，捕获响应
		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = writer

		c.Next()

		if c.Writer.Status() == http.StatusOK {
			if err := store.Set(c.Request.Context(), key, writer.body.Bytes(), cfg.Expiration); err != nil {
				cfg.Log.Warn("写入响应缓存失败", zap.Error(err))
			}
		}
	}
}

// PurgeCache 清除所有响应缓存
func PurgeCache(ctx context.Context, store cache.TTLStore) error {
	return store.DeletePrefix(ctx, responseCachePrefix)
}

// PurgeCacheOn 登记、离场和紧急模式变化时清除响应缓存
func PurgeCacheOn(bus *events.Bus, store cache.TTLStore, log *zap.Logger) {
	purge := func(e events.Event) {
		if e.Bulk {
			return
		}
		if err := PurgeCache(context.Background(), store); err != nil {
			log.Warn("清除响应缓存失败", zap.String("event", string(e.Type)), zap.Error(err))
		}
	}
	for _, t := range []events.Type{
		events.EntryCreated,
		events.EntryExited,
		events.AlertCreated,
		events.EmergencyActivated,
		events.EmergencyDeactivated,
		events.OccupancyChanged,
	} {
		bus.Subscribe(t, purge)
	}
}

// 自定义响应写入器，用于捕获响应内容
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 重写Write方法，同时写入原始响应和缓冲区
func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// WriteString 重写WriteString方法，同时写入原始响应和缓冲区
func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
