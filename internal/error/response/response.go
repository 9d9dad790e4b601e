package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sams-http-service/internal/error/code"
)

// Response 定义统一的响应格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    code.ErrSuccess,
		Message: code.GetMessage(code.ErrSuccess),
		Data:    data,
	})
}

// Fail 失败响应
func Fail(c *gin.Context, errorCode int, data interface{}) {
	httpStatus := code.GetStatus(errorCode)
	message := code.GetMessage(errorCode)

	c.JSON(httpStatus, Response{
		Code:    errorCode,
		Message: message,
		Data:    data,
	})
}

// FailWithMessage 失败响应（自定义消息）
func FailWithMessage(c *gin.Context, errorCode int, message string, data interface{}) {
	httpStatus := code.GetStatus(errorCode)

	c.JSON(httpStatus, Response{
		Code:    errorCode,
		Message: message,
		Data:    data,
	})
}

// Error 将服务层错误映射为响应，非业务错误按数据库错误处理
func Error(c *gin.Context, err error) {
	var e *code.Error
	if errors.As(err, &e) {
		FailWithMessage(c, e.Code, e.Message, nil)
		return
	}
	Fail(c, code.ErrDatabase, nil)
}

// ParamError 参数错误响应
func ParamError(c *gin.Context, message string) {
	FailWithMessage(c, code.ErrValidation, message, nil)
}

// Unauthorized 未授权响应
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = code.GetMessage(code.ErrTokenInvalid)
	}
	FailWithMessage(c, code.ErrTokenInvalid, message, nil)
}

// Forbidden 权限不足响应
func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = code.GetMessage(code.ErrAccessDenied)
	}
	FailWithMessage(c, code.ErrAccessDenied, message, nil)
}
