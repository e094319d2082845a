// Package dbtest provides a migrated throwaway database for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"cardlink/backend/internal/database"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// New opens a sqlite database file under t.TempDir and migrates it. The pool
// is limited to one connection so concurrent transactions queue instead of
// failing with SQLITE_BUSY.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cardlink.db")
	db, err := database.Open(sqlite.Open(path), zaptest.NewLogger(t))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}
