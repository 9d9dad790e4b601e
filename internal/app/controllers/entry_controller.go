package controllers

import (
	"github.com/gin-gonic/gin"

	"sams-http-service/internal/domain/services"
	"sams-http-service/internal/domain/services/container"
	"sams-http-service/internal/error/code"
	"sams-http-service/internal/error/response"
)

// InterfaceEntryController 定义出入登记控制器接口
type InterfaceEntryController interface {
	CreateEntry()
	ExitEntry()
	ManualExit()
	ListActiveEntries()
	GetEntry()
}

// EntryController 处理出入登记相关的请求
type EntryController struct {
	Ctx       *gin.Context
	Container *container.ServiceContainer
}

// NewEntryController 创建一个新的出入登记控制器
func NewEntryController(ctx *gin.Context, container *container.ServiceContainer) *EntryController {
	return &EntryController{
		Ctx:       ctx,
		Container: container,
	}
}

// HandleEntryFunc 返回一个处理出入登记请求的Gin处理函数
func HandleEntryFunc(container *container.ServiceContainer, method string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		controller := NewEntryController(ctx, container)

		switch method {
		case "createEntry":
			controller.CreateEntry()
		case "exitEntry":
			controller.ExitEntry()
		case "manualExit":
			controller.ManualExit()
		case "listActiveEntries":
			controller.ListActiveEntries()
		case "getEntry":
			controller.GetEntry()
		default:
			response.FailWithMessage(ctx, code.ErrBind, "无效的方法", nil)
		}
	}
}

func (c *EntryController) service() services.InterfaceEntryService {
	return c.Container.GetService("entry").(services.InterfaceEntryService)
}

// 1. CreateEntry 登记入场
// @Summary      Create Entry
// @Description  Record a vehicle, visitor or truck entering a job site
// @Tags         Entry
// @Accept       json
// @Produce      json
// @Param        request body services.CreateEntryRequest true "Entry request"
// @Success      200  {object}  models.Entry
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /entries [post]
// @Security     BearerAuth
func (c *EntryController) CreateEntry() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}

	var req services.CreateEntryRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	entry, err := c.service().Create(c.Ctx.Request.Context(), identity, req)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, entry)
}

// 2. ExitEntry 登记离场
// @Summary      Exit Entry
// @Description  Check out an active entry; override marks it as an emergency exit
// @Tags         Entry
// @Accept       json
// @Produce      json
// @Param        request body services.ExitEntryRequest true "Exit request"
// @Success      200  {object}  models.Entry
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /entries/exit [post]
// @Security     BearerAuth
func (c *EntryController) ExitEntry() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}

	var req services.ExitEntryRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	entry, err := c.service().Exit(c.Ctx.Request.Context(), identity, req)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, entry)
}

// 3. ManualExit 补录离场
// @Summary      Manual Exit
// @Description  Record a vehicle or truck that left without an entry record
// @Tags         Entry
// @Accept       json
// @Produce      json
// @Param        request body services.CreateEntryRequest true "Manual exit request"
// @Success      200  {object}  models.Entry
// @Failure      400  {object}  ErrorResponse
// @Router       /entries/manual-exit [post]
// @Security     BearerAuth
func (c *EntryController) ManualExit() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}

	var req services.CreateEntryRequest
	if err := c.Ctx.ShouldBindJSON(&req); err != nil {
		response.FailWithMessage(c.Ctx, code.ErrBind, "无效的请求参数: "+err.Error(), nil)
		return
	}

	entry, err := c.service().ManualExit(c.Ctx.Request.Context(), identity, req)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, entry)
}

// 4. ListActiveEntries 站点在场登记
// @Summary      List Active Entries
// @Description  List entries currently on a site, newest first
// @Tags         Entry
// @Produce      json
// @Param        site path int true "Site ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  ErrorResponse
// @Router       /entries/active/{site} [get]
// @Security     BearerAuth
func (c *EntryController) ListActiveEntries() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}
	siteID, ok := uintParam(c.Ctx, "site")
	if !ok {
		return
	}

	entries, err := c.service().ListActive(c.Ctx.Request.Context(), identity, siteID)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, gin.H{
		"entries": entries,
		"total":   len(entries),
	})
}

// 5. GetEntry 获取登记详情
// @Summary      Get Entry
// @Tags         Entry
// @Produce      json
// @Param        id path int true "Entry ID"
// @Success      200  {object}  models.Entry
// @Failure      404  {object}  ErrorResponse
// @Router       /entries/{id} [get]
// @Security     BearerAuth
func (c *EntryController) GetEntry() {
	identity, ok := currentIdentity(c.Ctx)
	if !ok {
		return
	}
	entryID, ok := uintParam(c.Ctx, "id")
	if !ok {
		return
	}

	entry, err := c.service().Get(c.Ctx.Request.Context(), identity, entryID)
	if err != nil {
		response.Error(c.Ctx, err)
		return
	}
	response.Success(c.Ctx, entry)
}
