package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sams-http-service/internal/app/realtime"
	"sams-http-service/internal/domain/services/container"
	"sams-http-service/internal/error/response"
)

// HandleWebSocketFunc 返回实时推送连接的处理函数，需在认证中间件之后注册
// @Summary      Real-time channel
// @Description  Websocket upgrade; token in the Authorization header or the token query parameter
// @Tags         Realtime
// @Param        site  query int    false "Only send this site's occupancy snapshot"
// @Param        token query string false "Bearer token"
// @Router       /ws [get]
func HandleWebSocketFunc(container *container.ServiceContainer, hub *realtime.Hub) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		identity, ok := currentIdentity(ctx)
		if !ok {
			return
		}

		var site *uint
		if s := ctx.Query("site"); s != "" {
			id, err := strconv.ParseUint(s, 10, 64)
			if err != nil || id == 0 {
				response.ParamError(ctx, "无效的site")
				return
			}
			v := uint(id)
			site = &v
		}

		if err := hub.Serve(ctx.Writer, ctx.Request, identity, site); err != nil {
			log := container.GetService("logger").(*zap.Logger)
			log.Debug("WebSocket升级失败", zap.Error(err))
		}
	}
}
