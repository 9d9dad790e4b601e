package controllers

import (
	"github.com/gin-gonic/gin"

	"sams-http-service/internal/domain/services"
	"sams-http-service/internal/domain/services/container"
	"sams-http-service/internal/error/code"
	"sams-http-service/internal/error/response"
)

// InterfaceEmergencyController 定义紧急模式控制器接口
type InterfaceEmergencyController interface {
	ActivateEmergency()
	DeactivateEmergency()
	BulkExit()
	ListActiveEmergencies()
	GetEmergency()
}

// EmergencyController 处理紧急模式相关的请求
type EmergencyController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewEmergencyController 创建一个新的紧急模式控制器
func NewEmergencyController(ctx *gin.Context, container *container.ServiceContainer) *EmergencyController {
	return &EmergencyController{
		Ctx:       ctx,
		Container: container,
	}
}

// HandleEmergencyFunc 返回一个处理紧急模式请求的Gin处理函数
func HandleEmergencyFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewEmergencyController(ctx, container)

		switch method {
		case "activate":
			controller.ActivateEmergency()
		case "deactivate":
			controller.DeactivateEmergency()
		case "bulkExit":
			controller.BulkExit()
		case "listActive":
			controller.ListActiveEmergencies()
		case "get":
			controller.GetEmergency()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

func (c *EmergencyController) service() services.InterfaceEmergencyService {
	return c.Container.GetService("emergency").(services.InterfaceEmergencyService)
}

// 1. ActivateEmergency 激活紧急模式
// @Summary      Activate Emergency Mode
// @Description  Activate emergency mode for a site, or globally when site_id is omitted
// @Tags         Emergency
// @Accept       json
// @Produce      json
// @Param        request body services.ActivateEmergencyRequest true "Activation request"
// @Success      200  {object}  models.EmergencyMode
// @Failure      403  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /emergency/activate [post]
// @Security     BearerAuth
func (c *EmergencyController) ActivateEmergency() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}

	var req services.ActivateEmergencyRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
		return
	}

	emergency, err := c.service().Activate(c.Ctx.Request.Context(), identity, req)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, emergency)
}

// 2. DeactivateEmergency 解除紧急模式
// @Summary      Deactivate Emergency Mode
// @Tags         Emergency
// @Accept       json
// @Produce      json
// @Param        id      path int true "Emergency ID"
// @Param        request body services.DeactivateEmergencyRequest false "Deactivation summary"
// @Success      200  {object}  models.EmergencyMode
// @Failure      404  {object}  ErrorResponse
// @Router       /emergency/{id}/deactivate [post]
// @Security     BearerAuth
func (c *EmergencyController) DeactivateEmergency() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}
	emergencyID, ok := uintParam(c.Ctx, "id")
	if !ok {
		return
	}

	var req services.DeactivateEmergencyRequest
	if c.Ctx.Request.ContentLength > 0 {
		if err := c.Ctx.ShouldBindJSON(&req); err != nil {
			response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数", nil)
			return
		}
	}

	emergency, err := c.service().Deactivate(c.Ctx.Request.Context(), identity, emergencyID, req)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, emergency)
}

// 3. BulkExit 紧急批量离场
// @Summary      Emergency Bulk Exit
// @Description  Check out every active entry at a site (or the listed ids) under an active emergency
// @Tags         Emergency
// @Accept       json
// @Produce      json
// @Param        request body services.BulkExitRequest true "Bulk exit request"
// @Success      200  {object}  services.BulkExitResult
// @Failure      409  {object}  ErrorResponse
// @Router       /emergency/bulk-exit [post]
// @Security     BearerAuth
func (c *EmergencyController) BulkExit() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}

	var req services.BulkExitRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	result, err := c.service().ProcessBulkExit(c.Ctx.Request.Context(), identity, req)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, result)
}

// 4. ListActiveEmergencies 当前激活的紧急模式
// @Summary      List Active Emergencies
// @Tags         Emergency
// @Produce      json
// @Success      200  {array}  models.EmergencyMode
// @Router       /emergency/active [get]
// @Security     BearerAuth
func (c *EmergencyController) ListActiveEmergencies() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}

	list, err := c.service().ListActive(c.Ctx.Request.Context(), identity)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, list)
}

// 5. GetEmergency 紧急模式详情及操作记录
// @Summary      Get Emergency
// @Tags         Emergency
// @Produce      json
// @Param        id path int true "Emergency ID"
// @Success      200  {object}  models.EmergencyMode
// @Failure      404  {object}  ErrorResponse
// @Router       /emergency/{id} [get]
// @Security     BearerAuth
func (c *EmergencyController) GetEmergency() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}
	emergencyID, ok := uintParam(c.Ctx, "id")
	if !ok {
		return
	}

	emergency, err := c.service().Get(c.Ctx.Request.Context(), identity, emergencyID)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, emergency)
}
