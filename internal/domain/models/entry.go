package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// EntryType represents the kind of occupant logged at a site
type EntryType string

const (
	EntryTypeVehicle EntryType = "vehicle"
	EntryTypeVisitor EntryType = "visitor"
	EntryTypeTruck   EntryType = "truck"
)

// EntryTypes lists every entry type in display order
var EntryTypes = []EntryType{EntryTypeVehicle, EntryTypeVisitor, EntryTypeTruck}

// Valid reports whether t is a known entry type
func (t EntryType) Valid() bool {
	return t == EntryTypeVehicle || t == EntryTypeVisitor || t == EntryTypeTruck
}

// EntryStatus represents the lifecycle state of an entry
type EntryStatus string

const (
	EntryStatusActive        EntryStatus = "active"
	EntryStatusExited        EntryStatus = "exited"
	EntryStatusEmergencyExit EntryStatus = "emergency_exit"
)

// Entry represents one logged site visit.
// active 状态与 exit_time 为空一一对应；手动离场记录创建即为 exited 且 entry_time 为空
type Entry struct {
	BaseModel
	SiteID          uint              `gorm:"index:idx_entries_site_status;not null" json:"site_id"`
	Type            EntryType         `gorm:"type:varchar(20);not null" json:"type"`
	Data            datatypes.JSON    `json:"data"`
	CustomFields    datatypes.JSONMap `json:"custom_fields,omitempty"`
	Identifier      string            `gorm:"type:varchar(100);index" json:"identifier"` // 规范化后的车牌或访客姓名
	EntryTime       *time.Time        `gorm:"index" json:"entry_time"`
	ExitTime        *time.Time        `json:"exit_time"`
	Status          EntryStatus       `gorm:"type:varchar(20);index:idx_entries_site_status;not null" json:"status"`
	OperatorID      uint              `json:"operator_id"`
	ExitOperatorID  *uint             `json:"exit_operator_id,omitempty"`
	ExitOverride    bool              `json:"exit_override"`
	OverrideReason  string            `gorm:"type:varchar(255)" json:"override_reason,omitempty"`
	DurationSeconds *int64            `json:"duration_seconds,omitempty"`

	Photos datatypes.JSONSlice[string] `json:"photos,omitempty"`

	// Relations
	Site *JobSite `gorm:"foreignKey:SiteID" json:"site,omitempty"`
}

// Payload decodes the stored type-tagged data
func (e Entry) Payload() (EntryData, error) {
	return DecodeEntryData(e.Type, json.RawMessage(e.Data))
}

// EntryData is the type-tagged payload of an entry
type EntryData interface {
	EntryType() EntryType
	// RawIdentifier 返回用于黑名单比对的原始标识（车牌或姓名）
	RawIdentifier() string
}

// VehicleData 车辆登记信息
type VehicleData struct {
	LicensePlate string `json:"license_plate" validate:"required,max=20"`
	Make         string `json:"make,omitempty" validate:"max=50"`
	Model        string `json:"model,omitempty" validate:"max=50"`
	Color        string `json:"color,omitempty" validate:"max=30"`
	DriverName   string `json:"driver_name,omitempty" validate:"max=100"`
	Company      string `json:"company,omitempty" validate:"max=100"`
	Purpose      string `json:"purpose,omitempty" validate:"max=255"`
}

func (VehicleData) EntryType() EntryType    { return EntryTypeVehicle }
func (d VehicleData) RawIdentifier() string { return d.LicensePlate }

// VisitorData 访客登记信息
type VisitorData struct {
	Name     string `json:"name" validate:"required,max=100"`
	Company  string `json:"company,omitempty" validate:"max=100"`
	HostName string `json:"host_name,omitempty" validate:"max=100"`
	Purpose  string `json:"purpose,omitempty" validate:"max=255"`
	Phone    string `json:"phone,omitempty" validate:"max=30"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}

func (VisitorData) EntryType() EntryType    { return EntryTypeVisitor }
func (d VisitorData) RawIdentifier() string { return d.Name }

// TruckData 货车登记信息
type TruckData struct {
	LicensePlate      string `json:"license_plate" validate:"required,max=20"`
	TrailerNumber     string `json:"trailer_number,omitempty" validate:"max=30"`
	Carrier           string `json:"carrier,omitempty" validate:"max=100"`
	DriverName        string `json:"driver_name,omitempty" validate:"max=100"`
	CargoDescription  string `json:"cargo_description,omitempty" validate:"max=255"`
	DeliveryReference string `json:"delivery_reference,omitempty" validate:"max=100"`
}

func (TruckData) EntryType() EntryType    { return EntryTypeTruck }
func (d TruckData) RawIdentifier() string { return d.LicensePlate }

// DecodeEntryData decodes raw JSON into the payload struct for t
func DecodeEntryData(t EntryType, raw json.RawMessage) (EntryData, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch t {
	case EntryTypeVehicle:
		var d VehicleData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode vehicle data: %w", err)
		}
		return d, nil
	case EntryTypeVisitor:
		var d VisitorData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode visitor data: %w", err)
		}
		return d, nil
	case EntryTypeTruck:
		var d TruckData
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode truck data: %w", err)
		}
		return d, nil
	}
	return nil, fmt.Errorf("unknown entry type %q", t)
}

// NormalizeIdentifier 统一大小写并去除首尾空白
func NormalizeIdentifier(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
