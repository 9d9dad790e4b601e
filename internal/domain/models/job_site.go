package models

// JobSite represents a physical site whose entries are logged.
// 占用人数始终由出入登记实时推导，不在站点上缓存
type JobSite struct {
	BaseModel
	Name            string `gorm:"type:varchar(100);not null" json:"name"`
	Address         string `gorm:"type:varchar(255)" json:"address"`
	VehicleCapacity int    `gorm:"not null" json:"vehicle_capacity"`
	VisitorCapacity int    `gorm:"not null" json:"visitor_capacity"`
	TruckCapacity   int    `gorm:"not null" json:"truck_capacity"`
	IsActive        bool   `gorm:"index;not null" json:"is_active"`
}

// CapacityFor returns the configured capacity for one entry type
func (s JobSite) CapacityFor(t EntryType) int {
	switch t {
	case EntryTypeVehicle:
		return s.VehicleCapacity
	case EntryTypeVisitor:
		return s.VisitorCapacity
	case EntryTypeTruck:
		return s.TruckCapacity
	}
	return 0
}
