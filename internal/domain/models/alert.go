package models

import (
	"time"

	"gorm.io/datatypes"
)

// AlertType 告警类型
type AlertType string

const (
	AlertTypeOverstay        AlertType = "overstay"
	AlertTypeCapacityWarning AlertType = "capacity_warning"
	AlertTypeWatchlistMatch  AlertType = "watchlist_match"
	AlertTypeFailedLogin     AlertType = "failed_login"
	AlertTypeInvalidExit     AlertType = "invalid_exit"
	AlertTypeAccountLocked   AlertType = "account_locked"
)

// AlertSeverity 告警级别
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Rank orders severities, unknown values rank lowest
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Alert 告警记录，创建后仅允许确认操作修改
type Alert struct {
	BaseModel
	Type             AlertType         `gorm:"type:varchar(30);index:idx_alerts_type_ack;not null" json:"type"`
	Severity         AlertSeverity     `gorm:"type:varchar(20);not null" json:"severity"`
	Title            string            `gorm:"type:varchar(200)" json:"title"`
	Message          string            `gorm:"type:text" json:"message"`
	SiteID           *uint             `gorm:"index" json:"site_id,omitempty"`
	EntryID          *uint             `gorm:"index" json:"entry_id,omitempty"`
	WatchlistEntryID *uint             `json:"watchlist_entry_id,omitempty"`
	UserID           *uint             `json:"user_id,omitempty"`
	Acknowledged     bool              `gorm:"index:idx_alerts_type_ack;not null" json:"acknowledged"`
	AcknowledgedBy   *uint             `json:"acknowledged_by,omitempty"`
	AcknowledgedAt   *time.Time        `json:"acknowledged_at,omitempty"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
}
