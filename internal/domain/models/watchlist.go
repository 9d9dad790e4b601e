package models

// WatchlistType 黑名单类型
type WatchlistType string

const (
	WatchlistTypePerson  WatchlistType = "person"
	WatchlistTypeVehicle WatchlistType = "vehicle"
)

// WatchlistLevel 黑名单告警等级
type WatchlistLevel string

const (
	WatchlistLevelLow    WatchlistLevel = "low"
	WatchlistLevelMedium WatchlistLevel = "medium"
	WatchlistLevelHigh   WatchlistLevel = "high"
)

// WatchlistEntry 黑名单记录，Identifier 以规范化形式存储
type WatchlistEntry struct {
	BaseModel
	Type       WatchlistType  `gorm:"type:varchar(20);index:idx_watchlist_lookup;not null" json:"type"`
	Identifier string         `gorm:"type:varchar(100);index:idx_watchlist_lookup;not null" json:"identifier"`
	Reason     string         `gorm:"type:text" json:"reason"`
	AlertLevel WatchlistLevel `gorm:"type:varchar(10);not null" json:"alert_level"`
	IsActive   bool           `gorm:"index:idx_watchlist_lookup;not null" json:"is_active"`
	CreatedBy  uint           `json:"created_by"`
}

// WatchlistTypeFor 访客对应人员黑名单，车辆和货车对应车辆黑名单
func WatchlistTypeFor(t EntryType) WatchlistType {
	if t == EntryTypeVisitor {
		return WatchlistTypePerson
	}
	return WatchlistTypeVehicle
}
