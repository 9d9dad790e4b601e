package models

import "gorm.io/datatypes"

// FieldType 自定义字段类型
type FieldType string

const (
	FieldTypeText    FieldType = "text"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeSelect  FieldType = "select"
)

// SiteFieldDefinition 站点为某类登记配置的扩展字段，由外部管理后台维护
type SiteFieldDefinition struct {
	BaseModel
	SiteID    uint                        `gorm:"index:idx_field_site_type;not null" json:"site_id"`
	EntryType EntryType                   `gorm:"type:varchar(20);index:idx_field_site_type;not null" json:"entry_type"`
	Key       string                      `gorm:"type:varchar(50);not null" json:"key"`
	Label     string                      `gorm:"type:varchar(100)" json:"label"`
	FieldType FieldType                   `gorm:"type:varchar(20);not null" json:"field_type"`
	Required  bool                        `gorm:"not null" json:"required"`
	Options   datatypes.JSONSlice[string] `json:"options,omitempty"`
}
