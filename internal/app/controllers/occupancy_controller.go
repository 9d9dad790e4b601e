package controllers

import (
	"github.com/gin-gonic/gin"

	"sams-http-service/internal/domain/services"
	"sams-http-service/internal/domain/services/container"
	"sams-http-service/internal/error/code"
	"sams-http-service/internal/error/response"
)

// OccupancyController 处理站点占用查询
type OccupancyController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewOccupancyController 创建占用查询控制器
func NewOccupancyController(ctx *gin.Context, container *container.ServiceContainer) *OccupancyController {
	return &OccupancyController{
		Ctx:       ctx,
		Container: container,
	}
}

// HandleOccupancyFunc 返回一个处理占用查询请求的Gin处理函数
func HandleOccupancyFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewOccupancyController(ctx, container)

		switch method {
		case "listOccupancy":
			controller.ListOccupancy()
		case "getOccupancy":
			controller.GetOccupancy()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

// 1. ListOccupancy 可访问站点的占用情况
// @Summary      List Occupancy
// @Tags         Occupancy
// @Produce      json
// @Success      200  {array}   services.SiteOccupancy
// @Router       /occupancy [get]
// @Security     BearerAuth
func (c *OccupancyController) ListOccupancy() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}
	svc := c.Container.GetService("occupancy").(services.InterfaceOccupancyService)

	var (
		result []services.SiteOccupancy
		err    error
	)
	if identity.AllAccess() {
		result, err = svc.OccupancyOfAll(c.Ctx.Request.Context())
	} else {
		result, err = svc.OccupancyOfSites(c.Ctx.Request.Context(), identity.SiteIDs)
	}
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, result)
}

// 2. GetOccupancy 单个站点的占用情况
// @Summary      Get Site Occupancy
// @Tags         Occupancy
// @Produce      json
// @Param        site path int true "Site ID"
// @Success      200  {object}  services.SiteOccupancy
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /occupancy/{site} [get]
// @Security     BearerAuth
func (c *OccupancyController) GetOccupancy() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}
	siteID, ok := uintParam(c.Ctx, "site")
	if !ok {
		return
	}
	if !identity.CanAccessSite(siteID) {
		response.Forbidden(c.Ctx, "")
		return
	}

	svc := c.Container.GetService("occupancy").(services.InterfaceOccupancyService)
	result, err := svc.OccupancyOf(c.Ctx.Request.Context(), siteID)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, result)
}
