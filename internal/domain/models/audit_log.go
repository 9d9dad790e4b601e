package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog 操作审计日志
type AuditLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	ActorID      uint              `gorm:"index" json:"actor_id"`
	Action       string            `gorm:"type:varchar(50);not null" json:"action"` // 如: entry_create, entry_exit, emergency_activate
	ResourceType string            `gorm:"type:varchar(30)" json:"resource_type"`
	ResourceID   uint              `json:"resource_id"`
	SiteID       *uint             `gorm:"index" json:"site_id,omitempty"`
	Details      datatypes.JSONMap `json:"details,omitempty"`
	IPAddress    string            `gorm:"type:varchar(45)" json:"ip_address"`
	Timestamp    time.Time         `gorm:"index" json:"timestamp"`
}
