package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qs3c/himera_gate_server/internal/model"
)

// 清表顺序，审计与轮次先于用户
var tables = []string{"auth_events", "turns", "daily_counters", "credentials", "users"}

// SetupTestDB 默认使用 SQLite 内存库；设置 TEST_DATABASE_DSN 时改跑 MySQL 并清空已有数据
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	dialector := sqlite.Open(":memory:")
	if dsn != "" {
		dialector = mysql.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err, "open test database")

	if dsn == "" {
		// 内存库每个连接独立，固定单连接
		sqlDB, err := db.DB()
		require.NoError(t, err)
		sqlDB.SetMaxOpenConns(1)
	}

	require.NoError(t, db.AutoMigrate(model.All()...), "migrate test database")

	if dsn != "" {
		for _, table := range tables {
			require.NoError(t, db.Exec("DELETE FROM "+table).Error, "truncate %s", table)
		}
	}
	return db
}

// CleanupTestDB 关闭底层连接
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()

	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("get underlying db: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		t.Logf("close test database: %v", err)
	}
}
