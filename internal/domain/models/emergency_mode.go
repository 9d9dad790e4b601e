package models

import (
	"fmt"
	"time"
)

// EmergencyMode 紧急模式记录，SiteID 为空表示全局紧急模式
type EmergencyMode struct {
	BaseModel
	SiteID   *uint `gorm:"index" json:"site_id"`
	IsActive bool  `gorm:"index;not null" json:"is_active"`
	// ActiveScope 激活期间为 "global" 或 "site:<id>"，解除后置空；唯一索引保证同一范围至多一条激活记录
	ActiveScope   *string    `gorm:"type:varchar(32);uniqueIndex" json:"-"`
	ActivatedBy   uint       `json:"activated_by"`
	ActivatedAt   time.Time  `json:"activated_at"`
	DeactivatedBy *uint      `json:"deactivated_by,omitempty"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	Reason        string     `gorm:"type:text" json:"reason,omitempty"`
	Summary       string     `gorm:"type:text" json:"summary,omitempty"`

	// Relations
	Actions []EmergencyAction `gorm:"foreignKey:EmergencyID" json:"actions,omitempty"`
}

// IsGlobal reports whether the emergency covers every site
func (m EmergencyMode) IsGlobal() bool {
	return m.SiteID == nil
}

// Covers reports whether the emergency applies to siteID
func (m EmergencyMode) Covers(siteID uint) bool {
	return m.SiteID == nil || *m.SiteID == siteID
}

// ScopeKey 返回紧急模式范围键
func ScopeKey(siteID *uint) string {
	if siteID == nil {
		return "global"
	}
	return fmt.Sprintf("site:%d", *siteID)
}

// EmergencyActionType 紧急模式操作类型
type EmergencyActionType string

const (
	EmergencyActionActivated   EmergencyActionType = "activated"
	EmergencyActionBulkExit    EmergencyActionType = "bulk_exit"
	EmergencyActionDeactivated EmergencyActionType = "deactivated"
)

// EmergencyAction 紧急模式操作日志，只追加不修改
type EmergencyAction struct {
	ID            uint                `gorm:"primaryKey" json:"id"`
	EmergencyID   uint                `gorm:"index;not null" json:"emergency_id"`
	Type          EmergencyActionType `gorm:"type:varchar(30);not null" json:"type"`
	Description   string              `gorm:"type:text" json:"description"`
	ActorID       uint                `json:"actor_id"`
	SiteID        *uint               `json:"site_id,omitempty"`
	AffectedCount int64               `json:"affected_count"`
	Timestamp     time.Time           `json:"timestamp"`
}
