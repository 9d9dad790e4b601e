package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/domain/services"
	"sams-http-service/internal/error/code"
	"sams-http-service/internal/error/response"
)

const identityKey = "identity"

// extractToken 从授权头中提取token，WebSocket握手无法设置请求头时使用 ?token= 参数
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

// Authentication 通用的认证中间件，验证通过后将身份写入上下文
func Authentication(jwtService services.InterfaceJWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			response.Unauthorized(c, "Authorization header format must be Bearer {token}")
			c.Abort()
			return
		}

		identity, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "")
			c.Abort()
			return
		}

		c.Set(identityKey, *identity)
		c.Set("userID", identity.UserID)
		c.Set("role", string(identity.Role))
		c.Next()
	}
}

// CurrentIdentity 获取认证中间件写入的身份
func CurrentIdentity(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	identity, ok := v.(models.Identity)
	return identity, ok
}

// RequireOperator 值守人员及以上角色
func RequireOperator() gin.HandlerFunc {
	return requireRole(models.Identity.IsOperator, "Insufficient permissions: requires operator role")
}

// RequirePrivileged 管理员或主管
func RequirePrivileged() gin.HandlerFunc {
	return requireRole(models.Identity.Privileged, "Insufficient permissions: requires supervisor role")
}

func requireRole(allowed func(models.Identity) bool, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			response.Unauthorized(c, "")
			c.Abort()
			return
		}
		if !allowed(identity) {
			response.FailWithMessage(c, code.ErrAccessDenied, message, nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
