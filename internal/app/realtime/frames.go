package realtime

import (
	"time"

	"sams-http-service/internal/domain/models"
)

// 服务端推送的帧类型
const (
	FrameOccupancyUpdate = "occupancy_update"
	FrameAlert           = "alert"
	FrameEmergencyMode   = "emergency_mode"
	FrameEntryCreated    = "entry:created"
	FrameEntryUpdated    = "entry:updated"
	FramePong            = "pong"
	FrameError           = "error"
)

// 客户端发送的帧类型
const (
	RequestGetOccupancy = "get_occupancy"
	RequestPing         = "ping"
)

// Frame 服务端推送帧
type Frame struct {
	Type      string                `json:"type"`
	Data      interface{}           `json:"data,omitempty"`
	Alert     *models.Alert         `json:"alert,omitempty"`
	Emergency *models.EmergencyMode `json:"emergency,omitempty"`
	Active    *bool                 `json:"active,omitempty"`
	Entry     *models.Entry         `json:"entry,omitempty"`
	Site      *uint                 `json:"site,omitempty"`
	Message   string                `json:"message,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// Request 客户端请求帧
type Request struct {
	Type string `json:"type"`
	Site *uint  `json:"site,omitempty"`
}

// 以下为按帧类型的投递规则

// canSeeOccupancy 全部站点权限、站点在权限范围内或显式订阅了该站点
func canSeeOccupancy(identity models.Identity, subscribed *uint, siteID uint) bool {
	if identity.CanAccessSite(siteID) {
		return true
	}
	return subscribed != nil && *subscribed == siteID
}

// canSeeAlert 值守及以上角色，有站点的告警还需站点权限（特权角色除外）
func canSeeAlert(identity models.Identity, alert *models.Alert) bool {
	if !identity.IsOperator() {
		return false
	}
	if alert.SiteID == nil || identity.Privileged() {
		return true
	}
	return identity.CanAccessSite(*alert.SiteID)
}

// canSeeEmergency 规则同告警，全局紧急模式投递给所有值守及以上角色
func canSeeEmergency(identity models.Identity, emergency *models.EmergencyMode) bool {
	if !identity.IsOperator() {
		return false
	}
	if emergency.SiteID == nil || identity.Privileged() {
		return true
	}
	return identity.CanAccessSite(*emergency.SiteID)
}

// canSeeEntry 任何角色，只要站点在权限范围内
func canSeeEntry(identity models.Identity, siteID uint) bool {
	return identity.CanAccessSite(siteID)
}
