package controllers

import (
	"github.com/gin-gonic/gin"

	"sams-http-service/internal/domain/services"
	"sams-http-service/internal/domain/services/container"
	"sams-http-service/internal/error/code"
	"sams-http-service/internal/error/response"
)

// AlertController 处理告警相关的请求
type AlertController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewAlertController 创建告警控制器
func NewAlertController(ctx *gin.Context, container *container.ServiceContainer) *AlertController {
	return &AlertController{
		Ctx:       ctx,
		Container: container,
	}
}

// HandleAlertFunc 返回一个处理告警请求的Gin处理函数
func HandleAlertFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewAlertController(ctx, container)

		switch method {
		case "listAlerts":
			controller.ListAlerts()
		case "acknowledgeAlert":
			controller.AcknowledgeAlert()
		case "triggerChecks":
			controller.TriggerChecks()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

func (c *AlertController) service() services.InterfaceAlertService {
	return c.Container.GetService("alert").(services.InterfaceAlertService)
}

// 1. ListAlerts 告警列表
// @Summary      List Alerts
// @Tags         Alert
// @Produce      json
// @Param        type          query string false "Alert type"
// @Param        severity      query string false "Severity"
// @Param        acknowledged  query bool   false "Acknowledged flag"
// @Param        site_id       query int    false "Site ID"
// @Param        page          query int    false "Page"
// @Param        page_size     query int    false "Page size"
// @Success      200  {object}  PageResult
// @Router       /alerts [get]
// @Security     BearerAuth
func (c *AlertController) ListAlerts() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}

	var filter services.AlertFilter
	if err := c.Ctx.ShouldBindQuery(&filter); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的查询参数: "+err.Error(), nil)
		return
	}
	filter.Normalize()

	alerts, total, err := c.service().List(c.Ctx.Request.Context(), identity, filter)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, PageResult{
		Items:    alerts,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

// 2. AcknowledgeAlert 确认告警
// @Summary      Acknowledge Alert
// @Tags         Alert
// @Produce      json
// @Param        id path int true "Alert ID"
// @Success      200  {object}  models.Alert
// @Failure      404  {object}  ErrorResponse
// @Router       /alerts/{id}/acknowledge [post]
// @Security     BearerAuth
func (c *AlertController) AcknowledgeAlert() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}
	alertID, ok := uintParam(c.Ctx, "id")
	if !ok {
		return
	}

	alert, err := c.service().Acknowledge(c.Ctx.Request.Context(), identity, alertID)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, alert)
}

// 3. TriggerChecks 立即执行超时与容量检查
// @Summary      Trigger Alert Checks
// @Tags         Alert
// @Produce      json
// @Success      200  {object}  services.CheckResult
// @Router       /alerts/trigger-checks [post]
// @Security     BearerAuth
func (c *AlertController) TriggerChecks() {
	result, err := c.service().RunChecks(c.Ctx.Request.Context())
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, result)
}
