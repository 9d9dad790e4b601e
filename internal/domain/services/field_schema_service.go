package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/error/code"
)

// InterfaceFieldSchemaService 站点扩展字段定义与校验
type InterfaceFieldSchemaService interface {
	Definitions(ctx context.Context, siteID uint, entryType models.EntryType) ([]models.SiteFieldDefinition, error)
	Validate(ctx context.Context, siteID uint, entryType models.EntryType, fields map[string]interface{}) (map[string]interface{}, error)
}

// FieldSchemaService 从 site_field_definitions 读取字段定义
type FieldSchemaService struct {
	DB *gorm.DB
}

// NewFieldSchemaService 创建扩展字段服务
func NewFieldSchemaService(db *gorm.DB) *FieldSchemaService {
	return &FieldSchemaService{DB: db}
}

// 1 Definitions 获取站点某类登记的扩展字段定义
func (s *FieldSchemaService) Definitions(ctx context.Context, siteID uint, entryType models.EntryType) ([]models.SiteFieldDefinition, error) {
	var defs []models.SiteFieldDefinition
	err := s.DB.WithContext(ctx).
		Where("site_id = ? AND entry_type = ?", siteID, entryType).
		Order("id").
		Find(&defs).Error
	if err != nil {
		return nil, dbError(err, 0)
	}
	return defs, nil
}

// 2 Validate 按字段定义校验扩展字段：必填、类型、选项，且不允许未定义的字段
func (s *FieldSchemaService) Validate(ctx context.Context, siteID uint, entryType models.EntryType, fields map[string]interface{}) (map[string]interface{}, error) {
	defs, err := s.Definitions(ctx, siteID, entryType)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]models.SiteFieldDefinition, len(defs))
	for _, d := range defs {
		byKey[d.Key] = d
	}

	// 按键排序，保证错误信息稳定
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := byKey[k]; !ok {
			return nil, code.New(code.ErrValidation, fmt.Sprintf("未定义的扩展字段: %s", k))
		}
	}

	cleaned := make(map[string]interface{}, len(fields))
	for _, d := range defs {
		v, ok := fields[d.Key]
		if !ok || v == nil || v == "" {
			if d.Required {
				return nil, code.New(code.ErrValidation, fmt.Sprintf("扩展字段 %s 为必填项", d.Key))
			}
			continue
		}
		if err := checkFieldValue(d, v); err != nil {
			return nil, err
		}
		cleaned[d.Key] = v
	}
	return cleaned, nil
}

func checkFieldValue(d models.SiteFieldDefinition, v interface{}) error {
	invalid := code.New(code.ErrValidation, fmt.Sprintf("扩展字段 %s 类型错误，应为 %s", d.Key, d.FieldType))
	switch d.FieldType {
	case models.FieldTypeNumber:
		switch v.(type) {
		case float64, float32, int, int64, json.Number:
			return nil
		}
		return invalid
	case models.FieldTypeBoolean:
		if _, ok := v.(bool); !ok {
			return invalid
		}
	case models.FieldTypeSelect:
		s, ok := v.(string)
		if !ok {
			return invalid
		}
		for _, opt := range d.Options {
			if opt == s {
				return nil
			}
		}
		return code.New(code.ErrValidation, fmt.Sprintf("扩展字段 %s 的值 %q 不在可选范围内", d.Key, s))
	default:
		if _, ok := v.(string); !ok {
			return invalid
		}
	}
	return nil
}
