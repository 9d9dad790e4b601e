package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sams-http-service/internal/domain/models"
	"sams-http-service/internal/infrastructure/config"
	"sams-http-service/internal/infrastructure/database/dbtest"
)

func TestEnsureAdminExists(t *testing.T) {
	db := dbtest.New(t)
	cfg := &config.Config{DefaultAdminPassword: "change-me"}

	require.NoError(t, ensureAdminExists(db, cfg))
	require.NoError(t, ensureAdminExists(db, cfg))

	var admins []models.User
	require.NoError(t, db.Where("role = ?", models.RoleAdmin).Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.Equal(t, "admin", admins[0].Username)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admins[0].Password), []byte("change-me")))
}

func TestNewRedisClient_Disabled(t *testing.T) {
	assert.Nil(t, newRedisClient(&config.Config{}))
}
