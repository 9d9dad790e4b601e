package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sams-http-service/internal/app/controllers"
	"sams-http-service/internal/app/middleware"
	"sams-http-service/internal/app/realtime"
	"sams-http-service/internal/domain/services"
	"sams-http-service/internal/domain/services/container"
	"sams-http-service/internal/infrastructure/config"
)

// SetupRouter 初始化并返回配置好的路由
func SetupRouter(container *container.ServiceContainer, hub *realtime.Hub) *gin.Engine {
	log := container.GetService("logger").(*zap.Logger)

	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.RequestLogger(log))

	// 添加 CORS 中间件
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// 状态变化时清除响应缓存
	middleware.PurgeCacheOn(container.Bus(), container.Store(), log)

	registerRoutes(r, container, hub)
	return r
}

// registerRoutes 配置所有API路由
func registerRoutes(r *gin.Engine, container *container.ServiceContainer, hub *realtime.Hub) {
	// API 路由根路径
	api := r.Group("/api")
	// 按IP限流，默认每分钟300个请求
	cfg := container.GetService("config").(*config.Config)
	api.Use(middleware.IPRateLimiter(container.Counter(), cfg.APIRateLimit, time.Minute))

	registerPublicRoutes(api, container)
	registerAuthenticatedRoutes(api, container, hub)
}

// registerPublicRoutes 注册公共路由
func registerPublicRoutes(api *gin.RouterGroup, container *container.ServiceContainer) {
	cfg := container.GetService("config").(*config.Config)
	log := container.GetService("logger").(*zap.Logger)
	alerts := container.GetService("alert").(services.InterfaceAlertService)

	// 健康检查路由
	api.GET("/ping", controllers.HandleHealthFunc(container, "ping"))
	api.GET("/health", controllers.HandleHealthFunc(container, "status"))

	// 认证路由，按IP和用户名限制尝试次数
	api.POST("/auth/login",
		middleware.LoginThrottle(container.Counter(), alerts, cfg.LoginThrottleLimit, cfg.LoginThrottleWindow, log),
		controllers.HandleJWTFunc(container, "login"),
	)
}

// registerAuthenticatedRoutes 注册需要认证的路由
func registerAuthenticatedRoutes(api *gin.RouterGroup, container *container.ServiceContainer, hub *realtime.Hub) {
	jwtService := container.GetService("jwt").(services.InterfaceJWTService)
	log := container.GetService("logger").(*zap.Logger)

	auth := api.Group("")
	auth.Use(middleware.Authentication(jwtService))

	// 实时推送
	auth.GET("/ws", controllers.HandleWebSocketFunc(container, hub))

	// 出入登记，查询对所有角色开放（按站点权限过滤）
	entryGroup := auth.Group("/entries")
	{
		entryGroup.POST("", middleware.RequireOperator(), controllers.HandleEntryFunc(container, "createEntry"))
		entryGroup.POST("/exit", middleware.RequireOperator(), controllers.HandleEntryFunc(container, "exitEntry"))
		entryGroup.POST("/manual-exit", middleware.RequireOperator(), controllers.HandleEntryFunc(container, "manualExit"))
		entryGroup.GET("/active/:site", controllers.HandleEntryFunc(container, "listActiveEntries"))
		entryGroup.GET("/:id", controllers.HandleEntryFunc(container, "getEntry"))
	}

	// 站点占用，短时缓存
	occupancyCache := middleware.Cache(container.Store(), middleware.CacheConfig{Expiration: 5 * time.Second, Log: log})
	occupancyGroup := auth.Group("/occupancy")
	{
		occupancyGroup.GET("", occupancyCache, controllers.HandleOccupancyFunc(container, "listOccupancy"))
		occupancyGroup.GET("/:site", occupancyCache, controllers.HandleOccupancyFunc(container, "getOccupancy"))
	}

	// 告警
	alertGroup := auth.Group("/alerts")
	alertGroup.Use(middleware.RequireOperator())
	{
		alertGroup.GET("", controllers.HandleAlertFunc(container, "listAlerts"))
		alertGroup.POST("/:id/acknowledge", controllers.HandleAlertFunc(container, "acknowledgeAlert"))
		alertGroup.POST("/trigger-checks", middleware.RequirePrivileged(), controllers.HandleAlertFunc(container, "triggerChecks"))
	}

	// 紧急模式，全局范围的权限由服务层校验
	emergencyGroup := auth.Group("/emergency")
	emergencyGroup.Use(middleware.RequireOperator())
	{
		emergencyGroup.POST("/activate", controllers.HandleEmergencyFunc(container, "activate"))
		emergencyGroup.POST("/bulk-exit", controllers.HandleEmergencyFunc(container, "bulkExit"))
		emergencyGroup.POST("/:id/deactivate", controllers.HandleEmergencyFunc(container, "deactivate"))
		emergencyGroup.GET("/active", controllers.HandleEmergencyFunc(container, "listActive"))
		emergencyGroup.GET("/:id", controllers.HandleEmergencyFunc(container, "get"))
	}
}
