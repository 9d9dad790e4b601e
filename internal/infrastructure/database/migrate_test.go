package database_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/infrastructure/database"
	"sams-http-service/internal/infrastructure/database/dbtest"
)

func TestMigrate_CreatesTables(t *testing.T) {
	db := dbtest.New(t)

	for _, table := range []string{"job_sites", "users", "user_sites", "entries", "alerts",
		"watchlist_entries", "emergency_modes", "emergency_actions", "site_field_definitions", "audit_logs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestMigrate_DropRecreates(t *testing.T) {
	db := dbtest.New(t)
	require.NoError(t, db.Create(&models.JobSite{Name: "North Yard", IsActive: true}).Error)

	require.NoError(t, database.Migrate(db, "drop"))

	var count int64
	require.NoError(t, db.Model(&models.JobSite{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMigrate_ActiveScopeIsUnique(t *testing.T) {
	db := dbtest.New(t)
	scope := models.ScopeKey(nil)

	require.NoError(t, db.Create(&models.EmergencyMode{IsActive: true, ActiveScope: &scope}).Error)
	assert.Error(t, db.Create(&models.EmergencyMode{IsActive: true, ActiveScope: &scope}).Error)
	// 已解除的记录 active_scope 为空，可以有多条
	require.NoError(t, db.Create(&models.EmergencyMode{}).Error)
	require.NoError(t, db.Create(&models.EmergencyMode{}).Error)
}
