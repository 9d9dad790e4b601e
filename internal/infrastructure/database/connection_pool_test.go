package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
)

func newMockPool(t *testing.T) (*ConnectionPool, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	// gorm.Open 与 ConfigurePool 各 ping 一次
	mock.ExpectPing()
	mock.ExpectPing()

	pool, err := NewConnectionPoolWithDialector(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), zap.NewNop())
	require.NoError(t, err)
	return pool, mock
}

func TestConnectionPool_HealthCheck(t *testing.T) {
	pool, mock := newMockPool(t)

	mock.ExpectPing()
	assert.NoError(t, pool.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("server has gone away"))
	assert.EqualError(t, pool.HealthCheck(context.Background()), "server has gone away")

	mock.ExpectClose()
	require.NoError(t, pool.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionPool_Stats(t *testing.T) {
	pool, mock := newMockPool(t)

	stats, err := pool.Stats()
	require.NoError(t, err)
	assert.Equal(t, 100, stats["max_open_connections"])
	assert.Contains(t, stats, "wait_duration")
	assert.NoError(t, mock.ExpectationsWereMet())
}
