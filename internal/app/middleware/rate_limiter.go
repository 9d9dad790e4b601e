package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sams-http-service/internal/error/code"
	"sams-http-service/internal/error/response"
	"sams-http-service/internal/infrastructure/cache"
)

// RateLimiterConfig 滑动窗口限流配置
type RateLimiterConfig struct {
	Limit     int                       // 窗口内允许的请求数
	Window    time.Duration             // 窗口长度
	KeyFunc   func(*gin.Context) string // 限流键，默认按IP
	OnLimited func(c *gin.Context, key string, count int)
	Log       *zap.Logger
}

// DefaultRateLimiterConfig 默认限流器配置
var DefaultRateLimiterConfig = RateLimiterConfig{
	Limit:  60,
	Window: time.Minute,
}

func ipKey(c *gin.Context) string {
	return "rate:ip:" + c.ClientIP()
}

// RateLimiter 创建限流中间件。计数存储不可用时放行
func RateLimiter(counter cache.WindowCounter, config ...RateLimiterConfig) gin.HandlerFunc {
	var cfg RateLimiterConfig
	if len(config) > 0 {
		cfg = config[0]
	} else {
		cfg = DefaultRateLimiterConfig
	}

	// 确保配置有效
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultRateLimiterConfig.Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultRateLimiterConfig.Window
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ipKey
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	return func(c *gin.Context) {
		key := cfg.KeyFunc(c)
		count, err := counter.Hit(c.Request.Context(), key, cfg.Window)
		if err != nil {
			cfg.Log.Warn("限流计数失败，放行请求", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if count > cfg.Limit {
			if cfg.OnLimited != nil {
				cfg.OnLimited(c, key, count)
			}
			response.Fail(c, code.ErrTooManyRequests, nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// IPRateLimiter 按IP限流
func IPRateLimiter(counter cache.WindowCounter, limit int, window time.Duration) gin.HandlerFunc {
	return RateLimiter(counter, RateLimiterConfig{Limit: limit, Window: window})
}

// AccountLockReporter 登录被限流时上报
type AccountLockReporter interface {
	RaiseAccountLocked(ctx context.Context, username, ip string)
}

// LoginThrottle 按IP和用户名限制登录尝试，首次超限时上报账户锁定告警
func LoginThrottle(counter cache.WindowCounter, reporter AccountLockReporter, limit int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return RateLimiter(counter, RateLimiterConfig{
		Limit:   limit,
		Window:  window,
		Log:     log,
		KeyFunc: loginKey,
		OnLimited: func(c *gin.Context, _ string, count int) {
			if count != limit+1 || reporter == nil {
				return
			}
			reporter.RaiseAccountLocked(c.Request.Context(), loginUsername(c), c.ClientIP())
		},
	})
}

func loginKey(c *gin.Context) string {
	return "rate:login:" + c.ClientIP() + ":" + loginUsername(c)
}

// loginUsername 读取并重置请求体，取出用户名
func loginUsername(c *gin.Context) string {
	if v, ok := c.Get("loginUsername"); ok {
		return v.(string)
	}

	var bodyBytes []byte
	if c.Request.Body != nil {
		bodyBytes, _ = io.ReadAll(c.Request.Body)
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}

	var body struct {
		Username string `json:"username"`
	}
	_ = json.Unmarshal(bodyBytes, &body)
	username := strings.ToLower(strings.TrimSpace(body.Username))
	c.Set("loginUsername", username)
	return username
}
