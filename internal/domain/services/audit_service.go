package services

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"sams-http-service/internal/domain/models"
)

// InterfaceAuditService 审计日志写入接口
type InterfaceAuditService interface {
	Record(entry models.AuditLog)
}

// AuditService 异步写入审计日志，失败只记录日志
type AuditService struct {
	DB  *gorm.DB
	log *zap.Logger
	now clock
	wg  sync.WaitGroup
}

// NewAuditService 创建审计日志服务
func NewAuditService(db *gorm.DB, log *zap.Logger) *AuditService {
	return &AuditService{DB: db, log: log, now: utcNow}
}

// 1 Record 在独立goroutine中写入一条审计日志
func (s *AuditService) Record(entry models.AuditLog) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.DB.WithContext(context.Background()).Create(&entry).Error; err != nil {
			s.log.Warn("写入审计日志失败",
				zap.String("action", entry.Action),
				zap.Uint("resource_id", entry.ResourceID),
				zap.Error(err))
		}
	}()
}

// 2 Wait 等待所有进行中的写入完成
func (s *AuditService) Wait() {
	s.wg.Wait()
}
