package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sams-http-service/internal/domain/events"
	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/error/code"
)

// ActivateEmergencyRequest 激活紧急模式请求，site_id 为空表示全局
type ActivateEmergencyRequest struct {
	SiteID *uint  `json:"site_id"`
	Reason string `json:"reason"`
}

// DeactivateEmergencyRequest 解除紧急模式请求
type DeactivateEmergencyRequest struct {
	Summary string `json:"summary"`
}

// BulkExitRequest 紧急批量离场请求，entry_ids 为空表示站点全部在场登记
type BulkExitRequest struct {
	EmergencyID uint   `json:"emergency_id" binding:"required"`
	SiteID      uint   `json:"site_id" binding:"required"`
	EntryIDs    []uint `json:"entry_ids"`
}

// BulkExitResult 批量离场结果
type BulkExitResult struct {
	EmergencyID uint      `json:"emergency_id"`
	SiteID      uint      `json:"site_id"`
	Affected    int64     `json:"affected"`
	ExitTime    time.Time `json:"exit_time"`
}

// InterfaceEmergencyService 紧急模式协调接口
type InterfaceEmergencyService interface {
	Activate(ctx context.Context, identity models.Identity, req ActivateEmergencyRequest) (*models.EmergencyMode, error)
	Deactivate(ctx context.Context, identity models.Identity, emergencyID uint, req DeactivateEmergencyRequest) (*models.EmergencyMode, error)
	ProcessBulkExit(ctx context.Context, identity models.Identity, req BulkExitRequest) (*BulkExitResult, error)
	ListActive(ctx context.Context, identity models.Identity) ([]models.EmergencyMode, error)
	Get(ctx context.Context, identity models.Identity, emergencyID uint) (*models.EmergencyMode, error)
	IsActiveForSite(ctx context.Context, siteID uint) (bool, error)
}

// EmergencyService 紧急模式服务。
// 同一范围至多一条激活记录，全局紧急模式与任一站点紧急模式互斥
type EmergencyService struct {
	DB        *gorm.DB
	audit     InterfaceAuditService
	publisher events.Publisher
	log       *zap.Logger
	now       clock
}

// NewEmergencyService 创建紧急模式服务
func NewEmergencyService(db *gorm.DB, audit InterfaceAuditService, publisher events.Publisher, log *zap.Logger) *EmergencyService {
	return &EmergencyService{
		DB:        db,
		audit:     audit,
		publisher: publisher,
		log:       log,
		now:       utcNow,
	}
}

// 1 Activate 激活紧急模式
func (s *EmergencyService) Activate(ctx context.Context, identity models.Identity, req ActivateEmergencyRequest) (*models.EmergencyMode, error) {
	db := s.DB.WithContext(ctx)

	if req.SiteID == nil && !identity.Privileged() {
		return nil, code.New(code.ErrAccessDenied, "只有管理员或主管可以激活全局紧急模式")
	}

	now := s.now()
	scope := models.ScopeKey(req.SiteID)
	mode := models.EmergencyMode{
		SiteID:      req.SiteID,
		IsActive:    true,
		ActiveScope: &scope,
		ActivatedBy: identity.UserID,
		ActivatedAt: now,
		Reason:      req.Reason,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		// 激活按站点行加锁串行化：站点激活锁定该站点，全局激活锁定全部站点
		if err := lockSites(tx, req.SiteID); err != nil {
			return err
		}
		if req.SiteID != nil && !identity.CanAccessSite(*req.SiteID) {
			return code.New(code.ErrAccessDenied, "")
		}

		q := tx.Model(&models.EmergencyMode{}).Where("is_active = ?", true)
		if req.SiteID != nil {
			q = q.Where("(site_id IS NULL OR site_id = ?)", *req.SiteID)
		}
		var overlapping int64
		if err := q.Count(&overlapping).Error; err != nil {
			return err
		}
		if overlapping > 0 {
			return code.New(code.ErrEmergencyAlreadyActive, "")
		}

		if err := tx.Create(&mode).Error; err != nil {
			if isDuplicate(err) {
				return code.New(code.ErrEmergencyAlreadyActive, "")
			}
			return err
		}
		return tx.Create(&models.EmergencyAction{
			EmergencyID: mode.ID,
			Type:        models.EmergencyActionActivated,
			Description: activationDescription(req),
			ActorID:     identity.UserID,
			SiteID:      req.SiteID,
			Timestamp:   now,
		}).Error
	})
	if err != nil {
		return nil, dbError(err, 0)
	}

	s.log.Warn("紧急模式已激活",
		zap.Uint("emergency_id", mode.ID),
		zap.String("scope", scope),
		zap.Uint("actor", identity.UserID))

	s.publishTransition(events.EmergencyActivated, &mode, now)
	s.audit.Record(models.AuditLog{
		ActorID:      identity.UserID,
		Action:       "emergency_activate",
		ResourceType: "emergency",
		ResourceID:   mode.ID,
		SiteID:       req.SiteID,
		Details:      map[string]interface{}{"reason": req.Reason, "scope": scope},
	})
	return &mode, nil
}

// lockSites 对激活范围内的站点行加行锁，站点不存在时返回 ErrSiteNotFound
func lockSites(tx *gorm.DB, siteID *uint) error {
	locked := tx.Clauses(clause.Locking{Strength: "UPDATE"})
	if siteID != nil {
		var site models.JobSite
		return dbError(locked.First(&site, *siteID).Error, code.ErrSiteNotFound)
	}
	var ids []uint
	return locked.Model(&models.JobSite{}).Order("id").Pluck("id", &ids).Error
}

func activationDescription(req ActivateEmergencyRequest) string {
	desc := "全局紧急模式已激活"
	if req.SiteID != nil {
		desc = fmt.Sprintf("站点 %d 紧急模式已激活", *req.SiteID)
	}
	if req.Reason != "" {
		desc += ": " + req.Reason
	}
	return desc
}

// isDuplicate 唯一索引冲突，兼容未开启错误翻译的驱动
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// 2 Deactivate 解除紧急模式，记录不存在或已解除时返回 NotFound
func (s *EmergencyService) Deactivate(ctx context.Context, identity models.Identity, emergencyID uint, req DeactivateEmergencyRequest) (*models.EmergencyMode, error) {
	now := s.now()
	var mode models.EmergencyMode

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&mode, emergencyID).Error; err != nil {
			return err
		}
		if !mode.IsActive {
			return code.New(code.ErrEmergencyNotFound, "")
		}
		if mode.SiteID == nil && !identity.Privileged() {
			return code.New(code.ErrAccessDenied, "只有管理员或主管可以解除全局紧急模式")
		}
		if mode.SiteID != nil && !identity.CanAccessSite(*mode.SiteID) {
			return code.New(code.ErrAccessDenied, "")
		}

		res := tx.Model(&models.EmergencyMode{}).
			Where("id = ? AND is_active = ?", mode.ID, true).
			Updates(map[string]interface{}{
				"is_active":      false,
				"active_scope":   nil,
				"deactivated_by": identity.UserID,
				"deactivated_at": now,
				"summary":        req.Summary,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return code.New(code.ErrEmergencyNotFound, "")
		}

		desc := "紧急模式已解除"
		if req.Summary != "" {
			desc += ": " + req.Summary
		}
		if err := tx.Create(&models.EmergencyAction{
			EmergencyID: mode.ID,
			Type:        models.EmergencyActionDeactivated,
			Description: desc,
			ActorID:     identity.UserID,
			SiteID:      mode.SiteID,
			Timestamp:   now,
		}).Error; err != nil {
			return err
		}
		return tx.First(&mode, mode.ID).Error
	})
	if err != nil {
		return nil, dbError(err, code.ErrEmergencyNotFound)
	}

	s.log.Info("紧急模式已解除", zap.Uint("emergency_id", mode.ID), zap.Uint("actor", identity.UserID))

	s.publishTransition(events.EmergencyDeactivated, &mode, now)
	s.audit.Record(models.AuditLog{
		ActorID:      identity.UserID,
		Action:       "emergency_deactivate",
		ResourceType: "emergency",
		ResourceID:   mode.ID,
		SiteID:       mode.SiteID,
		Details:      map[string]interface{}{"summary": req.Summary},
	})
	return &mode, nil
}

// 3 ProcessBulkExit 紧急批量离场：一次条件更新将站点在场登记全部置为 emergency_exit
func (s *EmergencyService) ProcessBulkExit(ctx context.Context, identity models.Identity, req BulkExitRequest) (*BulkExitResult, error) {
	if !identity.CanAccessSite(req.SiteID) {
		return nil, code.New(code.ErrAccessDenied, "")
	}

	now := s.now()
	result := &BulkExitResult{EmergencyID: req.EmergencyID, SiteID: req.SiteID, ExitTime: now}
	var exited []models.Entry

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var mode models.EmergencyMode
		if err := tx.First(&mode, req.EmergencyID).Error; err != nil {
			return err
		}
		if !mode.IsActive {
			return code.New(code.ErrEmergencyNotActive, "")
		}
		if !mode.Covers(req.SiteID) {
			return code.New(code.ErrEmergencyNotActive, "站点不在该紧急模式范围内")
		}

		// 锁定待离场的登记，单条离场需等待本事务提交
		q := tx.Model(&models.Entry{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("site_id = ? AND status = ?", req.SiteID, models.EntryStatusActive)
		if len(req.EntryIDs) > 0 {
			q = q.Where("id IN ?", req.EntryIDs)
		}
		var ids []uint
		if err := q.Order("id").Pluck("id", &ids).Error; err != nil {
			return err
		}

		var affected int64
		if len(ids) > 0 {
			res := tx.Model(&models.Entry{}).
				Where("id IN ? AND status = ?", ids, models.EntryStatusActive).
				Updates(map[string]interface{}{
					"status":           models.EntryStatusEmergencyExit,
					"exit_time":        gorm.Expr("CASE WHEN entry_time > ? THEN entry_time ELSE ? END", now, now),
					"exit_operator_id": identity.UserID,
					"exit_override":    true,
					"override_reason":  fmt.Sprintf("emergency #%d bulk exit", mode.ID),
				})
			if res.Error != nil {
				return res.Error
			}
			affected = res.RowsAffected
			if err := tx.Where("id IN ?", ids).Order("id").Find(&exited).Error; err != nil {
				return err
			}
		}
		result.Affected = affected

		return tx.Create(&models.EmergencyAction{
			EmergencyID:   mode.ID,
			Type:          models.EmergencyActionBulkExit,
			Description:   fmt.Sprintf("站点 %d 批量离场 %d 条登记", req.SiteID, affected),
			ActorID:       identity.UserID,
			SiteID:        uintPtr(req.SiteID),
			AffectedCount: affected,
			Timestamp:     now,
		}).Error
	})
	if err != nil {
		return nil, dbError(err, code.ErrEmergencyNotFound)
	}

	s.log.Warn("紧急批量离场完成",
		zap.Uint("emergency_id", req.EmergencyID),
		zap.Uint("site_id", req.SiteID),
		zap.Int64("affected", result.Affected))

	for i := range exited {
		entry := exited[i]
		s.publisher.Publish(events.Event{
			Type:       events.EntryExited,
			SiteID:     uintPtr(entry.SiteID),
			Entry:      &entry,
			Bulk:       true,
			OccurredAt: now,
		})
	}
	s.publisher.Publish(events.Event{
		Type:       events.OccupancyChanged,
		SiteID:     uintPtr(req.SiteID),
		SiteIDs:    []uint{req.SiteID},
		OccurredAt: now,
	})
	s.audit.Record(models.AuditLog{
		ActorID:      identity.UserID,
		Action:       "emergency_bulk_exit",
		ResourceType: "emergency",
		ResourceID:   req.EmergencyID,
		SiteID:       uintPtr(req.SiteID),
		Details:      map[string]interface{}{"affected": result.Affected, "entry_ids": exitedIDs(exited)},
	})
	return result, nil
}

func exitedIDs(entries []models.Entry) []uint {
	ids := make([]uint, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

// 4 ListActive 获取调用方可见的激活中紧急模式
func (s *EmergencyService) ListActive(ctx context.Context, identity models.Identity) ([]models.EmergencyMode, error) {
	q := s.DB.WithContext(ctx).Where("is_active = ?", true)
	if !identity.AllAccess() {
		if len(identity.SiteIDs) == 0 {
			q = q.Where("site_id IS NULL")
		} else {
			q = q.Where("(site_id IS NULL OR site_id IN ?)", identity.SiteIDs)
		}
	}
	var modes []models.EmergencyMode
	if err := q.Order("activated_at DESC, id DESC").Find(&modes).Error; err != nil {
		return nil, dbError(err, 0)
	}
	return modes, nil
}

// 5 Get 获取紧急模式记录及其操作日志
func (s *EmergencyService) Get(ctx context.Context, identity models.Identity, emergencyID uint) (*models.EmergencyMode, error) {
	var mode models.EmergencyMode
	err := s.DB.WithContext(ctx).
		Preload("Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp, id")
		}).
		First(&mode, emergencyID).Error
	if err != nil {
		return nil, dbError(err, code.ErrEmergencyNotFound)
	}
	if mode.SiteID != nil && !identity.CanAccessSite(*mode.SiteID) {
		return nil, code.New(code.ErrAccessDenied, "")
	}
	return &mode, nil
}

// 6 IsActiveForSite 站点自身或全局处于紧急模式时返回 true
func (s *EmergencyService) IsActiveForSite(ctx context.Context, siteID uint) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.EmergencyMode{}).
		Where("is_active = ? AND (site_id IS NULL OR site_id = ?)", true, siteID).
		Count(&n).Error
	if err != nil {
		return false, dbError(err, 0)
	}
	return n > 0, nil
}

// publishTransition 发布紧急模式变化及受影响站点的占用刷新
func (s *EmergencyService) publishTransition(t events.Type, mode *models.EmergencyMode, at time.Time) {
	published := *mode
	s.publisher.Publish(events.Event{
		Type:       t,
		SiteID:     mode.SiteID,
		Emergency:  &published,
		OccurredAt: at,
	})

	refresh := events.Event{Type: events.OccupancyChanged, SiteID: mode.SiteID, OccurredAt: at}
	if mode.SiteID != nil {
		refresh.SiteIDs = []uint{*mode.SiteID}
	}
	s.publisher.Publish(refresh)
}
