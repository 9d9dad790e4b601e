package services

import (
	"context"
	"math"
	"time"

	"gorm.io/gorm"

	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/error/code"
)

// TypeOccupancy 某类登记的占用情况
type TypeOccupancy struct {
	Count       int64   `json:"count"`
	Capacity    int     `json:"capacity"`
	Utilization float64 `json:"utilization"` // 百分比，容量为0时为0
	Warning     bool    `json:"warning"`
}

// SiteOccupancy 站点占用快照
type SiteOccupancy struct {
	SiteID    uint          `json:"site_id"`
	SiteName  string        `json:"site_name"`
	Vehicles  TypeOccupancy `json:"vehicles"`
	Visitors  TypeOccupancy `json:"visitors"`
	Trucks    TypeOccupancy `json:"trucks"`
	Total     int64         `json:"total"`
	Timestamp time.Time     `json:"timestamp"`
}

// MaxUtilization 返回三类容量中的最高使用率，仅用于展示
func (o SiteOccupancy) MaxUtilization() float64 {
	return math.Max(o.Vehicles.Utilization, math.Max(o.Visitors.Utilization, o.Trucks.Utilization))
}

// ReachesPercent 任一类使用率达到 percent 时返回 true，按整数精确比较
func (o SiteOccupancy) ReachesPercent(percent int) bool {
	return o.Vehicles.reaches(percent) || o.Visitors.reaches(percent) || o.Trucks.reaches(percent)
}

func (t TypeOccupancy) reaches(percent int) bool {
	return t.Capacity > 0 && t.Count*100 >= int64(t.Capacity)*int64(percent)
}

// InterfaceOccupancyService 占用统计接口，每次读取都从登记记录重新计算
type InterfaceOccupancyService interface {
	OccupancyOf(ctx context.Context, siteID uint) (*SiteOccupancy, error)
	OccupancyOfAll(ctx context.Context) ([]SiteOccupancy, error)
	OccupancyOfSites(ctx context.Context, siteIDs []uint) ([]SiteOccupancy, error)
}

// OccupancyService 占用统计服务，不保存任何状态
type OccupancyService struct {
	DB  *gorm.DB
	now clock
}

// NewOccupancyService 创建占用统计服务
func NewOccupancyService(db *gorm.DB) *OccupancyService {
	return &OccupancyService{DB: db, now: utcNow}
}

type occupancyRow struct {
	SiteID uint
	Type   models.EntryType
	Count  int64
}

// 1 OccupancyOf 获取单个站点的占用情况
func (s *OccupancyService) OccupancyOf(ctx context.Context, siteID uint) (*SiteOccupancy, error) {
	var site models.JobSite
	if err := s.DB.WithContext(ctx).First(&site, siteID).Error; err != nil {
		return nil, dbError(err, code.ErrSiteNotFound)
	}
	result, err := s.compute(ctx, []models.JobSite{site})
	if err != nil {
		return nil, err
	}
	return &result[0], nil
}

// 2 OccupancyOfAll 获取所有启用站点的占用情况
func (s *OccupancyService) OccupancyOfAll(ctx context.Context) ([]SiteOccupancy, error) {
	var sites []models.JobSite
	if err := s.DB.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&sites).Error; err != nil {
		return nil, dbError(err, 0)
	}
	return s.compute(ctx, sites)
}

// 3 OccupancyOfSites 获取指定启用站点的占用情况，用于按权限范围推送快照
func (s *OccupancyService) OccupancyOfSites(ctx context.Context, siteIDs []uint) ([]SiteOccupancy, error) {
	if len(siteIDs) == 0 {
		return []SiteOccupancy{}, nil
	}
	var sites []models.JobSite
	err := s.DB.WithContext(ctx).
		Where("is_active = ? AND id IN ?", true, siteIDs).
		Order("id").
		Find(&sites).Error
	if err != nil {
		return nil, dbError(err, 0)
	}
	return s.compute(ctx, sites)
}

// compute 一次分组查询统计所有站点的在场数量
func (s *OccupancyService) compute(ctx context.Context, sites []models.JobSite) ([]SiteOccupancy, error) {
	result := make([]SiteOccupancy, 0, len(sites))
	if len(sites) == 0 {
		return result, nil
	}

	ids := make([]uint, 0, len(sites))
	for _, site := range sites {
		ids = append(ids, site.ID)
	}

	var rows []occupancyRow
	err := s.DB.WithContext(ctx).
		Model(&models.Entry{}).
		Select("site_id, type, COUNT(*) AS count").
		Where("status = ? AND site_id IN ?", models.EntryStatusActive, ids).
		Group("site_id, type").
		Scan(&rows).Error
	if err != nil {
		return nil, dbError(err, 0)
	}

	counts := make(map[uint]map[models.EntryType]int64, len(sites))
	for _, r := range rows {
		if counts[r.SiteID] == nil {
			counts[r.SiteID] = make(map[models.EntryType]int64)
		}
		counts[r.SiteID][r.Type] = r.Count
	}

	now := s.now()
	for _, site := range sites {
		c := counts[site.ID]
		occ := SiteOccupancy{
			SiteID:    site.ID,
			SiteName:  site.Name,
			Vehicles:  typeOccupancy(c[models.EntryTypeVehicle], site.VehicleCapacity),
			Visitors:  typeOccupancy(c[models.EntryTypeVisitor], site.VisitorCapacity),
			Trucks:    typeOccupancy(c[models.EntryTypeTruck], site.TruckCapacity),
			Timestamp: now,
		}
		occ.Total = occ.Vehicles.Count + occ.Visitors.Count + occ.Trucks.Count
		result = append(result, occ)
	}
	return result, nil
}

// typeOccupancy 使用率超过90%时标记预警，容量为0时不预警
func typeOccupancy(count int64, capacity int) TypeOccupancy {
	t := TypeOccupancy{Count: count, Capacity: capacity}
	if capacity > 0 {
		t.Utilization = math.Round(float64(count)*1000/float64(capacity)) / 10
		t.Warning = count*10 > int64(capacity)*9
	}
	return t
}
