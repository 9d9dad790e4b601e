package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sams-http-service/internal/domain/events"
	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/error/code"
)

// CreateEntryRequest 登记请求，data 按 type 解析为对应的登记信息
type CreateEntryRequest struct {
	SiteID       uint                   `json:"site_id" binding:"required"`
	Type         models.EntryType       `json:"type" binding:"required"`
	Data         json.RawMessage        `json:"data" binding:"required"`
	CustomFields map[string]interface{} `json:"custom_fields"`
	Photos       []string               `json:"photos"`
}

// ExitEntryRequest 离场请求
type ExitEntryRequest struct {
	EntryID        uint   `json:"entry_id" binding:"required"`
	Override       bool   `json:"override"`
	OverrideReason string `json:"override_reason"`
}

// EmergencyChecker 判断站点是否处于紧急模式
type EmergencyChecker interface {
	IsActiveForSite(ctx context.Context, siteID uint) (bool, error)
}

// InvalidExitReporter 上报无效离场
type InvalidExitReporter interface {
	RaiseInvalidExit(ctx context.Context, entry *models.Entry, actorID uint)
}

// InterfaceEntryService 出入登记状态机接口
type InterfaceEntryService interface {
	Create(ctx context.Context, identity models.Identity, req CreateEntryRequest) (*models.Entry, error)
	Exit(ctx context.Context, identity models.Identity, req ExitEntryRequest) (*models.Entry, error)
	ManualExit(ctx context.Context, identity models.Identity, req CreateEntryRequest) (*models.Entry, error)
	ListActive(ctx context.Context, identity models.Identity, siteID uint) ([]models.Entry, error)
	Get(ctx context.Context, identity models.Identity, entryID uint) (*models.Entry, error)
}

// EntryService 出入登记服务。
// 状态迁移只有 active -> exited / emergency_exit，均为终态
type EntryService struct {
	DB        *gorm.DB
	fields    InterfaceFieldSchemaService
	emergency EmergencyChecker
	reporter  InvalidExitReporter
	audit     InterfaceAuditService
	publisher events.Publisher
	validate  *validator.Validate
	log       *zap.Logger
	now       clock
}

// NewEntryService 创建出入登记服务
func NewEntryService(
	db *gorm.DB,
	fields InterfaceFieldSchemaService,
	emergency EmergencyChecker,
	reporter InvalidExitReporter,
	audit InterfaceAuditService,
	publisher events.Publisher,
	log *zap.Logger,
) *EntryService {
	return &EntryService{
		DB:        db,
		fields:    fields,
		emergency: emergency,
		reporter:  reporter,
		audit:     audit,
		publisher: publisher,
		validate:  newPayloadValidator(),
		log:       log,
		now:       utcNow,
	}
}

// newPayloadValidator 校验错误中使用json字段名
func newPayloadValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// 1 Create 创建在场登记
func (s *EntryService) Create(ctx context.Context, identity models.Identity, req CreateEntryRequest) (*models.Entry, error) {
	site, err := s.loadSite(ctx, identity, req.SiteID)
	if err != nil {
		return nil, err
	}
	if !site.IsActive {
		return nil, code.New(code.ErrSiteInactive, "")
	}
	active, err := s.emergency.IsActiveForSite(ctx, site.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, code.New(code.ErrEmergencyActive, "")
	}

	entry, err := s.buildEntry(ctx, req)
	if err != nil {
		return nil, err
	}
	now := s.now()
	entry.Status = models.EntryStatusActive
	entry.EntryTime = timePtr(now)
	entry.OperatorID = identity.UserID

	if err := s.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, dbError(err, 0)
	}

	s.log.Info("登记已创建",
		zap.Uint("entry_id", entry.ID),
		zap.Uint("site_id", entry.SiteID),
		zap.String("type", string(entry.Type)))

	published := *entry
	s.publisher.Publish(events.Event{
		Type:       events.EntryCreated,
		SiteID:     uintPtr(entry.SiteID),
		Entry:      &published,
		OccurredAt: now,
	})
	s.audit.Record(models.AuditLog{
		ActorID:      identity.UserID,
		Action:       "entry_create",
		ResourceType: "entry",
		ResourceID:   entry.ID,
		SiteID:       uintPtr(entry.SiteID),
		Details:      map[string]interface{}{"type": string(entry.Type), "identifier": entry.Identifier},
	})
	return entry, nil
}

// 2 Exit 处理离场，条件更新保证并发离场只有一个成功
func (s *EntryService) Exit(ctx context.Context, identity models.Identity, req ExitEntryRequest) (*models.Entry, error) {
	db := s.DB.WithContext(ctx)

	var entry models.Entry
	if err := db.First(&entry, req.EntryID).Error; err != nil {
		return nil, dbError(err, code.ErrEntryNotFound)
	}
	if !identity.CanAccessSite(entry.SiteID) {
		return nil, code.New(code.ErrAccessDenied, "")
	}
	if entry.Status != models.EntryStatusActive {
		s.reporter.RaiseInvalidExit(ctx, &entry, identity.UserID)
		return nil, code.New(code.ErrAlreadyExited, "")
	}

	exitTime := s.now()
	if entry.EntryTime != nil && exitTime.Before(*entry.EntryTime) {
		exitTime = *entry.EntryTime
	}
	var duration int64
	if entry.EntryTime != nil {
		duration = int64(exitTime.Sub(*entry.EntryTime).Seconds())
	}
	status := models.EntryStatusExited
	if req.Override {
		status = models.EntryStatusEmergencyExit
	}

	res := db.Model(&models.Entry{}).
		Where("id = ? AND status = ?", entry.ID, models.EntryStatusActive).
		Updates(map[string]interface{}{
			"status":           status,
			"exit_time":        exitTime,
			"exit_operator_id": identity.UserID,
			"exit_override":    req.Override,
			"override_reason":  req.OverrideReason,
			"duration_seconds": duration,
		})
	if res.Error != nil {
		return nil, dbError(res.Error, 0)
	}
	if res.RowsAffected == 0 {
		// 并发离场已先完成，按已离场处理
		if err := db.First(&entry, entry.ID).Error; err != nil {
			return nil, dbError(err, code.ErrEntryNotFound)
		}
		s.reporter.RaiseInvalidExit(ctx, &entry, identity.UserID)
		return nil, code.New(code.ErrAlreadyExited, "")
	}

	if err := db.First(&entry, entry.ID).Error; err != nil {
		return nil, dbError(err, code.ErrEntryNotFound)
	}

	s.log.Info("登记已离场",
		zap.Uint("entry_id", entry.ID),
		zap.String("status", string(entry.Status)),
		zap.Int64("duration_seconds", duration))

	published := entry
	s.publisher.Publish(events.Event{
		Type:       events.EntryExited,
		SiteID:     uintPtr(entry.SiteID),
		Entry:      &published,
		OccurredAt: exitTime,
	})
	s.audit.Record(models.AuditLog{
		ActorID:      identity.UserID,
		Action:       "entry_exit",
		ResourceType: "entry",
		ResourceID:   entry.ID,
		SiteID:       uintPtr(entry.SiteID),
		Details: map[string]interface{}{
			"override":        req.Override,
			"override_reason": req.OverrideReason,
		},
	})
	return &entry, nil
}

// 3 ManualExit 补录离场，仅限车辆和货车，创建即为已离场且没有入场时间
func (s *EntryService) ManualExit(ctx context.Context, identity models.Identity, req CreateEntryRequest) (*models.Entry, error) {
	if req.Type != models.EntryTypeVehicle && req.Type != models.EntryTypeTruck {
		return nil, code.New(code.ErrValidation, "补录离场仅支持车辆和货车")
	}
	site, err := s.loadSite(ctx, identity, req.SiteID)
	if err != nil {
		return nil, err
	}
	if !site.IsActive {
		return nil, code.New(code.ErrSiteInactive, "")
	}

	entry, err := s.buildEntry(ctx, req)
	if err != nil {
		return nil, err
	}
	now := s.now()
	entry.Status = models.EntryStatusExited
	entry.ExitTime = timePtr(now)
	entry.OperatorID = identity.UserID
	entry.ExitOperatorID = uintPtr(identity.UserID)

	if err := s.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, dbError(err, 0)
	}

	s.audit.Record(models.AuditLog{
		ActorID:      identity.UserID,
		Action:       "entry_manual_exit",
		ResourceType: "entry",
		ResourceID:   entry.ID,
		SiteID:       uintPtr(entry.SiteID),
		Details:      map[string]interface{}{"type": string(entry.Type), "identifier": entry.Identifier},
	})
	return entry, nil
}

// 4 ListActive 获取站点当前在场的登记，最新的在前
func (s *EntryService) ListActive(ctx context.Context, identity models.Identity, siteID uint) ([]models.Entry, error) {
	if _, err := s.loadSite(ctx, identity, siteID); err != nil {
		return nil, err
	}
	var entries []models.Entry
	err := s.DB.WithContext(ctx).
		Where("site_id = ? AND status = ?", siteID, models.EntryStatusActive).
		Order("entry_time DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, dbError(err, 0)
	}
	return entries, nil
}

// 5 Get 获取单条登记
func (s *EntryService) Get(ctx context.Context, identity models.Identity, entryID uint) (*models.Entry, error) {
	var entry models.Entry
	if err := s.DB.WithContext(ctx).First(&entry, entryID).Error; err != nil {
		return nil, dbError(err, code.ErrEntryNotFound)
	}
	if !identity.CanAccessSite(entry.SiteID) {
		return nil, code.New(code.ErrAccessDenied, "")
	}
	return &entry, nil
}

// loadSite 查询站点并检查调用方的站点权限
func (s *EntryService) loadSite(ctx context.Context, identity models.Identity, siteID uint) (*models.JobSite, error) {
	var site models.JobSite
	if err := s.DB.WithContext(ctx).First(&site, siteID).Error; err != nil {
		return nil, dbError(err, code.ErrSiteNotFound)
	}
	if !identity.CanAccessSite(site.ID) {
		return nil, code.New(code.ErrAccessDenied, "")
	}
	return &site, nil
}

// buildEntry 校验登记信息与扩展字段，返回待保存的登记
func (s *EntryService) buildEntry(ctx context.Context, req CreateEntryRequest) (*models.Entry, error) {
	if !req.Type.Valid() {
		return nil, code.New(code.ErrValidation, fmt.Sprintf("不支持的登记类型: %s", req.Type))
	}
	payload, err := models.DecodeEntryData(req.Type, req.Data)
	if err != nil {
		return nil, code.New(code.ErrValidation, "登记信息格式错误")
	}
	if err := s.validate.Struct(payload); err != nil {
		return nil, validationError(err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode entry data: %w", err)
	}

	custom, err := s.fields.Validate(ctx, req.SiteID, req.Type, req.CustomFields)
	if err != nil {
		return nil, err
	}

	entry := &models.Entry{
		SiteID:     req.SiteID,
		Type:       req.Type,
		Data:       data,
		Identifier: models.NormalizeIdentifier(payload.RawIdentifier()),
		Photos:     req.Photos,
	}
	if len(custom) > 0 {
		entry.CustomFields = custom
	}
	return entry, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return code.New(code.ErrValidation, fmt.Sprintf("字段 %s 校验失败: %s", fe.Field(), fe.Tag()))
	}
	return code.New(code.ErrValidation, err.Error())
}
