package controllers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"sams-http-service/internal/domain/services/container"
	"sams-http-service/internal/error/code"
	"sams-http-service/internal/error/response"
	"sams-http-service/internal/infrastructure/database"
)

// HealthCheckController 健康检查控制器
type HealthCheckController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewHealthCheckController 创建健康检查控制器实例
func NewHealthCheckController(ctx *gin.Context, container *container.ServiceContainer) *HealthCheckController {
	return &HealthCheckController{
		Ctx:       ctx,
		Container: container,
	}
}

// HandleHealthFunc 返回一个处理健康检查请求的Gin处理函数
func HandleHealthFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewHealthCheckController(ctx, container)

		switch method {
		case "ping":
			controller.Ping()
		case "status":
			controller.Status()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// Ping 健康检查端点
// @Summary      Ping
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /ping [get]
func (h *HealthCheckController) Ping() {
	response.Success(h.Ctx, gin.H{
		"status":  "healthy",
		"message": "pong",
	})
}

// Status 检查数据库连接并返回连接池状态
// @Summary      Health Status
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  ErrorResponse
// @Router       /health [get]
func (h *HealthCheckController) Status() {
	db := h.Container.GetService("db").(*gorm.DB)
	pool := &database.ConnectionPool{DB: db}

	if err := pool.HealthCheck(h.Ctx.Request.Context()); err != nil {
		response.FailWithMessage(h.Ctx, code.ErrDatabase, "数据库不可用", gin.H{"status": "unhealthy"})
		return
	}

	stats, _ := pool.Stats()
	response.Success(h.Ctx, gin.H{
		"status":   "healthy",
		"database": stats,
		"cache":    h.Container.CacheBackend(),
	})
}
