package database

import (
	"fmt"

	"gorm.io/gorm"

	"sams-http-service/internal/domain/models"
)

// Models 返回需要迁移的全部模型，顺序即建表顺序
func Models() []interface{} {
	return []interface{}{
		&models.JobSite{},
		&models.User{},
		&models.Entry{},
		&models.WatchlistEntry{},
		&models.Alert{},
		&models.EmergencyMode{},
		&models.EmergencyAction{},
		&models.SiteFieldDefinition{},
		&models.AuditLog{},
	}
}

// Migrate 根据迁移模式执行数据库迁移
// "drop" 删除并重建全部表，其他值只添加新列和新表
func Migrate(db *gorm.DB, mode string) error {
	if mode == "drop" {
		if err := dropTables(db); err != nil {
			return err
		}
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func dropTables(db *gorm.DB) error {
	tables := Models()
	// 逆序删除，先删除依赖表
	for i := len(tables) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(tables[i]); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
	}
	if err := db.Migrator().DropTable("user_sites"); err != nil {
		return fmt.Errorf("drop table user_sites: %w", err)
	}
	return nil
}
