// Package dbtest opens throwaway sqlite databases with the application schema.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jimdaga/portfolio-backend/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open returns an in-memory sqlite database migrated with the model schema.
// A single connection is used so every transaction sees the same database,
// which also serialises concurrent transactions.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), database.Config())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}
