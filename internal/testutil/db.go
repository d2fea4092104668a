// Package testutil provides throwaway databases for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/database"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDB opens a migrated SQLite database in a temp dir. SQLite allows a
// single writer, so the pool is pinned to one connection.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.db")
	db, err := database.Open(sqlite.Open(path + "?_busy_timeout=5000"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
