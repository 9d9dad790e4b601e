package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"sams-http-service/internal/domain/events"
	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/error/code"
	"sams-http-service/internal/infrastructure/cache"
)

const (
	overstayThreshold     = 4 * time.Hour
	capacityWarnPercent   = 90
	capacityHighPercent   = 95
	capacityAlertCooldown = time.Hour
	failedLoginWindow     = 15 * time.Minute
	failedLoginThreshold  = 5
)

// AlertFilter 告警查询条件
type AlertFilter struct {
	models.PaginationQuery
	Type         string `form:"type"`
	Severity     string `form:"severity"`
	Acknowledged *bool  `form:"acknowledged"`
	SiteID       *uint  `form:"site_id"`
}

// CheckResult 周期检查结果
type CheckResult struct {
	Overstay []models.Alert `json:"overstay"`
	Capacity []models.Alert `json:"capacity"`
}

// InterfaceAlertService 告警规则引擎接口
type InterfaceAlertService interface {
	Raise(ctx context.Context, alert *models.Alert) error
	Acknowledge(ctx context.Context, identity models.Identity, alertID uint) (*models.Alert, error)
	List(ctx context.Context, identity models.Identity, filter AlertFilter) ([]models.Alert, int64, error)
	CheckWatchlist(ctx context.Context, entry *models.Entry) (*models.Alert, error)
	CheckOverstay(ctx context.Context) ([]models.Alert, error)
	CheckCapacity(ctx context.Context) ([]models.Alert, error)
	RunChecks(ctx context.Context) (*CheckResult, error)
	RecordFailedLogin(ctx context.Context, username, ip string) (*models.Alert, error)
	ClearFailedLogins(ctx context.Context, username string) error
	RaiseAccountLocked(ctx context.Context, username, ip string)
	RaiseInvalidExit(ctx context.Context, entry *models.Entry, actorID uint)
}

// AlertService 告警规则引擎：持久化告警后发布 AlertCreated 事件
type AlertService struct {
	DB        *gorm.DB
	occupancy InterfaceOccupancyService
	counter   cache.WindowCounter
	publisher events.Publisher
	log       *zap.Logger
	now       clock
}

// NewAlertService 创建告警服务
func NewAlertService(db *gorm.DB, occupancy InterfaceOccupancyService, counter cache.WindowCounter, publisher events.Publisher, log *zap.Logger) *AlertService {
	return &AlertService{
		DB:        db,
		occupancy: occupancy,
		counter:   counter,
		publisher: publisher,
		log:       log,
		now:       utcNow,
	}
}

// SubscribeTo 在新登记事件上执行黑名单比对
func (s *AlertService) SubscribeTo(bus *events.Bus) {
	bus.Subscribe(events.EntryCreated, func(e events.Event) {
		if e.Entry == nil {
			return
		}
		if _, err := s.CheckWatchlist(context.Background(), e.Entry); err != nil {
			s.log.Warn("黑名单比对失败", zap.Uint("entry_id", e.Entry.ID), zap.Error(err))
		}
	})
}

// 1 Raise 持久化告警并发布事件，发布失败不影响已保存的告警
func (s *AlertService) Raise(ctx context.Context, alert *models.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now()
	}
	if err := s.DB.WithContext(ctx).Create(alert).Error; err != nil {
		return dbError(err, 0)
	}

	s.log.Info("告警已创建",
		zap.Uint("alert_id", alert.ID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)))

	published := *alert
	s.publisher.Publish(events.Event{
		Type:       events.AlertCreated,
		SiteID:     alert.SiteID,
		Alert:      &published,
		OccurredAt: alert.CreatedAt,
	})
	return nil
}

// 2 Acknowledge 确认告警，重复确认直接返回当前状态
func (s *AlertService) Acknowledge(ctx context.Context, identity models.Identity, alertID uint) (*models.Alert, error) {
	db := s.DB.WithContext(ctx)

	var alert models.Alert
	if err := db.First(&alert, alertID).Error; err != nil {
		return nil, dbError(err, code.ErrAlertNotFound)
	}
	if !canSeeAlert(identity, &alert) {
		return nil, code.New(code.ErrAccessDenied, "")
	}
	if alert.Acknowledged {
		return &alert, nil
	}

	now := s.now()
	res := db.Model(&models.Alert{}).
		Where("id = ? AND acknowledged = ?", alertID, false).
		Updates(map[string]interface{}{
			"acknowledged":    true,
			"acknowledged_by": identity.UserID,
			"acknowledged_at": now,
		})
	if res.Error != nil {
		return nil, dbError(res.Error, 0)
	}

	// 并发确认时以先写入者为准
	if err := db.First(&alert, alertID).Error; err != nil {
		return nil, dbError(err, code.ErrAlertNotFound)
	}
	return &alert, nil
}

// 3 List 按条件分页查询告警，非特权用户只能看到其站点的告警
func (s *AlertService) List(ctx context.Context, identity models.Identity, filter AlertFilter) ([]models.Alert, int64, error) {
	filter.Normalize()
	query := s.DB.WithContext(ctx).Model(&models.Alert{})

	if !identity.Privileged() {
		switch {
		case identity.AllSites:
			query = query.Where("site_id IS NOT NULL")
		case len(identity.SiteIDs) == 0:
			return []models.Alert{}, 0, nil
		default:
			query = query.Where("site_id IN ?", identity.SiteIDs)
		}
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Acknowledged != nil {
		query = query.Where("acknowledged = ?", *filter.Acknowledged)
	}
	if filter.SiteID != nil {
		query = query.Where("site_id = ?", *filter.SiteID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, dbError(err, 0)
	}

	var alerts []models.Alert
	err := query.Order("created_at DESC, id DESC").
		Limit(filter.PageSize).
		Offset(filter.Offset()).
		Find(&alerts).Error
	if err != nil {
		return nil, 0, dbError(err, 0)
	}
	return alerts, total, nil
}

// 4 CheckWatchlist 将登记标识与启用的黑名单比对，命中时创建告警
func (s *AlertService) CheckWatchlist(ctx context.Context, entry *models.Entry) (*models.Alert, error) {
	payload, err := entry.Payload()
	if err != nil {
		return nil, err
	}
	identifier := models.NormalizeIdentifier(payload.RawIdentifier())
	if identifier == "" {
		return nil, nil
	}
	wlType := models.WatchlistTypeFor(entry.Type)

	var matches []models.WatchlistEntry
	err = s.DB.WithContext(ctx).
		Where("type = ? AND is_active = ? AND UPPER(TRIM(identifier)) = ?", wlType, true, identifier).
		Order("id").
		Limit(1).
		Find(&matches).Error
	if err != nil {
		return nil, dbError(err, 0)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	match := matches[0]

	alert := &models.Alert{
		Type:             models.AlertTypeWatchlistMatch,
		Severity:         watchlistSeverity(match.AlertLevel),
		Title:            "黑名单命中",
		Message:          fmt.Sprintf("%s %s 命中黑名单: %s", wlType, identifier, match.Reason),
		SiteID:           uintPtr(entry.SiteID),
		EntryID:          uintPtr(entry.ID),
		WatchlistEntryID: uintPtr(match.ID),
		Metadata: map[string]interface{}{
			"identifier":     identifier,
			"watchlist_type": string(wlType),
			"alert_level":    string(match.AlertLevel),
			"reason":         match.Reason,
		},
	}
	if err := s.Raise(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func watchlistSeverity(level models.WatchlistLevel) models.AlertSeverity {
	switch level {
	case models.WatchlistLevelHigh:
		return models.SeverityCritical
	case models.WatchlistLevelMedium:
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

// 5 CheckOverstay 为超过4小时仍在场的登记创建超时告警。
// 存在未确认的超时告警时跳过；已确认后只有级别升高才再次告警
func (s *AlertService) CheckOverstay(ctx context.Context) ([]models.Alert, error) {
	db := s.DB.WithContext(ctx)
	now := s.now()

	var entries []models.Entry
	err := db.Where("status = ? AND entry_time IS NOT NULL AND entry_time < ?",
		models.EntryStatusActive, now.Add(-overstayThreshold)).
		Order("id").
		Find(&entries).Error
	if err != nil {
		return nil, dbError(err, 0)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	var existing []models.Alert
	err = db.Where("type = ? AND entry_id IN ?", models.AlertTypeOverstay, ids).Find(&existing).Error
	if err != nil {
		return nil, dbError(err, 0)
	}

	type history struct {
		open   bool
		maxAck int
		any    bool
	}
	seen := make(map[uint]*history, len(existing))
	for _, a := range existing {
		h := seen[*a.EntryID]
		if h == nil {
			h = &history{}
			seen[*a.EntryID] = h
		}
		h.any = true
		if !a.Acknowledged {
			h.open = true
		} else if r := a.Severity.Rank(); r > h.maxAck {
			h.maxAck = r
		}
	}

	var raised []models.Alert
	for _, e := range entries {
		hours := now.Sub(*e.EntryTime).Hours()
		severity := overstaySeverity(hours)
		if h := seen[e.ID]; h != nil && (h.open || severity.Rank() <= h.maxAck) {
			continue
		}

		label := string(e.Type)
		if payload, err := e.Payload(); err == nil && payload.RawIdentifier() != "" {
			label = fmt.Sprintf("%s %s", e.Type, payload.RawIdentifier())
		}
		alert := &models.Alert{
			Type:     models.AlertTypeOverstay,
			Severity: severity,
			Title:    "超时停留",
			Message:  fmt.Sprintf("%s 已在场 %.1f 小时", label, hours),
			SiteID:   uintPtr(e.SiteID),
			EntryID:  uintPtr(e.ID),
			Metadata: map[string]interface{}{
				"hours_overdue": round2(hours),
				"entry_time":    e.EntryTime.Format(time.RFC3339),
			},
		}
		if err := s.Raise(ctx, alert); err != nil {
			return raised, err
		}
		raised = append(raised, *alert)
	}
	return raised, nil
}

func overstaySeverity(hours float64) models.AlertSeverity {
	switch {
	case hours > 8:
		return models.SeverityHigh
	case hours > 4:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

// round2 保留两位小数
func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// 6 CheckCapacity 站点最高使用率达到90%且一小时内没有未确认的容量告警时创建告警
func (s *AlertService) CheckCapacity(ctx context.Context) ([]models.Alert, error) {
	snapshots, err := s.occupancy.OccupancyOfAll(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var raised []models.Alert
	for _, occ := range snapshots {
		if !occ.ReachesPercent(capacityWarnPercent) {
			continue
		}
		util := occ.MaxUtilization()

		var recent int64
		err := s.DB.WithContext(ctx).Model(&models.Alert{}).
			Where("type = ? AND site_id = ? AND acknowledged = ? AND created_at > ?",
				models.AlertTypeCapacityWarning, occ.SiteID, false, now.Add(-capacityAlertCooldown)).
			Count(&recent).Error
		if err != nil {
			return raised, dbError(err, 0)
		}
		if recent > 0 {
			continue
		}

		severity := models.SeverityMedium
		if occ.ReachesPercent(capacityHighPercent) {
			severity = models.SeverityHigh
		}
		alert := &models.Alert{
			Type:     models.AlertTypeCapacityWarning,
			Severity: severity,
			Title:    "容量预警",
			Message:  fmt.Sprintf("站点 %s 使用率达到 %.1f%%", occ.SiteName, util),
			SiteID:   uintPtr(occ.SiteID),
			Metadata: map[string]interface{}{
				"utilization": util,
				"vehicles":    occ.Vehicles.Count,
				"visitors":    occ.Visitors.Count,
				"trucks":      occ.Trucks.Count,
			},
		}
		if err := s.Raise(ctx, alert); err != nil {
			return raised, err
		}
		raised = append(raised, *alert)
	}
	return raised, nil
}

// 7 RunChecks 立即执行超时与容量检查
func (s *AlertService) RunChecks(ctx context.Context) (*CheckResult, error) {
	overstay, err := s.CheckOverstay(ctx)
	if err != nil {
		return nil, fmt.Errorf("overstay check: %w", err)
	}
	capacity, err := s.CheckCapacity(ctx)
	if err != nil {
		return nil, fmt.Errorf("capacity check: %w", err)
	}
	if overstay == nil {
		overstay = []models.Alert{}
	}
	if capacity == nil {
		capacity = []models.Alert{}
	}
	return &CheckResult{Overstay: overstay, Capacity: capacity}, nil
}

func failedLoginKey(username string) string {
	return "failed_login:" + strings.ToLower(strings.TrimSpace(username))
}

// 8 RecordFailedLogin 记录一次登录失败，15分钟内达到5次时创建高级别告警
func (s *AlertService) RecordFailedLogin(ctx context.Context, username, ip string) (*models.Alert, error) {
	n, err := s.counter.Hit(ctx, failedLoginKey(username), failedLoginWindow)
	if err != nil {
		return nil, fmt.Errorf("record failed login: %w", err)
	}
	if n != failedLoginThreshold {
		return nil, nil
	}

	alert := &models.Alert{
		Type:     models.AlertTypeFailedLogin,
		Severity: models.SeverityHigh,
		Title:    "多次登录失败",
		Message:  fmt.Sprintf("用户 %s 在15分钟内登录失败 %d 次", username, n),
		Metadata: map[string]interface{}{
			"username": username,
			"ip":       ip,
			"attempts": n,
		},
	}
	var user models.User
	if err := s.DB.WithContext(ctx).Where("username = ?", username).Limit(1).Find(&user).Error; err == nil && user.ID != 0 {
		alert.UserID = uintPtr(user.ID)
	}
	if err := s.Raise(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// 9 ClearFailedLogins 登录成功后清除失败记录
func (s *AlertService) ClearFailedLogins(ctx context.Context, username string) error {
	return s.counter.Reset(ctx, failedLoginKey(username))
}

// 10 RaiseAccountLocked 登录被限流时创建告警，失败只记录日志
func (s *AlertService) RaiseAccountLocked(ctx context.Context, username, ip string) {
	alert := &models.Alert{
		Type:     models.AlertTypeAccountLocked,
		Severity: models.SeverityHigh,
		Title:    "登录已被限制",
		Message:  fmt.Sprintf("来自 %s 的用户 %s 登录尝试过多，已暂时限制", ip, username),
		Metadata: map[string]interface{}{
			"username": username,
			"ip":       ip,
		},
	}
	if err := s.Raise(ctx, alert); err != nil {
		s.log.Warn("创建登录限制告警失败", zap.String("username", username), zap.Error(err))
	}
}

// 11 RaiseInvalidExit 对非在场登记的离场尝试创建低级别告警，失败只记录日志
func (s *AlertService) RaiseInvalidExit(ctx context.Context, entry *models.Entry, actorID uint) {
	alert := &models.Alert{
		Type:     models.AlertTypeInvalidExit,
		Severity: models.SeverityLow,
		Title:    "无效离场",
		Message:  fmt.Sprintf("登记 #%d 当前状态为 %s，不能再次离场", entry.ID, entry.Status),
		SiteID:   uintPtr(entry.SiteID),
		EntryID:  uintPtr(entry.ID),
		UserID:   uintPtr(actorID),
		Metadata: map[string]interface{}{
			"status": string(entry.Status),
		},
	}
	if err := s.Raise(ctx, alert); err != nil {
		s.log.Warn("创建无效离场告警失败", zap.Uint("entry_id", entry.ID), zap.Error(err))
	}
}

// canSeeAlert 站点告警需要站点权限，无站点的告警只对特权角色可见
func canSeeAlert(identity models.Identity, alert *models.Alert) bool {
	if identity.Privileged() {
		return true
	}
	if !identity.IsOperator() {
		return false
	}
	if alert.SiteID == nil {
		return false
	}
	return identity.CanAccessSite(*alert.SiteID)
}
