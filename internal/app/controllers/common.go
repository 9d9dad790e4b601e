package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"sams-http-service/internal/app/middleware"
	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/error/response"
)

// ErrorResponse 表示错误响应
type ErrorResponse struct {
	Code    int         `json:"code" example:"106003"`
	Message string      `json:"message" example:"该登记记录已离场"`
	Data    interface{} `json:"data"`
}

// PageResult 分页结果
type PageResult struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// currentIdentity 读取认证中间件写入的身份，缺失时直接响应401
func currentIdentity(ctx *gin.Context) (models.Identity, bool) {
	identity, ok := middleware.CurrentIdentity(ctx)
	if !ok {
		response.Unauthorized(ctx, "")
	}
	return identity, ok
}

// uintParam 解析路径中的ID参数
func uintParam(ctx *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || v == 0 {
		response.ParamError(ctx, "无效的"+name)
		return 0, false
	}
	return uint(v), true
}
