package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dpalmqvist/lossless-context-management/config"
)

func openTestPool(t *testing.T) *PoolManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	pm, err := Open(config.DatabaseConfig{
		Path:            path,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pm.Close() })

	return pm
}

func TestOpen(t *testing.T) {
	pm := openTestPool(t)
	assert.NotNil(t, pm.DB())
}

func TestPoolManager_Ping(t *testing.T) {
	pm := openTestPool(t)
	err := pm.Ping(context.Background())
	assert.NoError(t, err)
}

func TestPoolManager_PingAfterClose(t *testing.T) {
	pm := openTestPool(t)
	require.NoError(t, pm.Close())

	err := pm.Ping(context.Background())
	assert.Error(t, err)
}

func TestPoolManager_GetStats(t *testing.T) {
	pm := openTestPool(t)
	stats := pm.GetStats()
	assert.GreaterOrEqual(t, stats.MaxOpenConnections, 0)
	assert.GreaterOrEqual(t, stats.OpenConnections, 0)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	pm := openTestPool(t)

	err := pm.DB().Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)").Error
	require.NoError(t, err)

	err = pm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return tx.Exec("INSERT INTO widgets (name) VALUES (?)", "gizmo").Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, pm.DB().Raw("SELECT COUNT(*) FROM widgets").Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPoolManager_WithTransactionRollback(t *testing.T) {
	pm := openTestPool(t)

	err := pm.DB().Exec("CREATE TABLE widgets2 (id INTEGER PRIMARY KEY, name TEXT)").Error
	require.NoError(t, err)

	err = pm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Exec("INSERT INTO widgets2 (name) VALUES (?)", "gizmo").Error; err != nil {
			return err
		}
		return assert.AnError
	})
	assert.Error(t, err)

	var count int64
	require.NoError(t, pm.DB().Raw("SELECT COUNT(*) FROM widgets2").Scan(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestPoolManager_WithTransactionRetry_NonRetryable(t *testing.T) {
	pm := openTestPool(t)

	err := pm.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		return assert.AnError
	})
	assert.Error(t, err)
}

func TestPoolManager_Close(t *testing.T) {
	pm := openTestPool(t)
	require.NoError(t, pm.Close())
	// closing twice is a no-op
	require.NoError(t, pm.Close())
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(errors.New("database is locked")))
	assert.True(t, isRetryableError(errors.New("database table is locked")))
	assert.True(t, isRetryableError(errors.New("SQLITE_BUSY")))
	assert.False(t, isRetryableError(assert.AnError))
	assert.False(t, isRetryableError(nil))
}
