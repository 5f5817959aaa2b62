package partybus

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	tmpdir := t.TempDir()
	dbPath := filepath.Join(tmpdir, "test.sqlite3")
	db, err := CreateDB(
		context.Background(),
		"sqlite",
		dbPath,
		nil,
		0,
	)
	if err != nil {
		t.Fatalf("error creating test database: %v", err)
	}
	t.Cleanup(
		func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)
	return db
}

func newTestDatabase(t testing.TB) DBI {
	t.Helper()
	db := setupTestDB(t)
	return NewDatabase(db, testLogger(t), false)
}

func testLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.Default().With("test_name", t.Name())
}

func testCatalog(t testing.TB) *TimezoneCatalog {
	t.Helper()
	catalog, err := DefaultTimezoneCatalog()
	require.NoError(t, err)
	return catalog
}

// mustTimeOfDay fails the test on out-of-range input, keeping table tests
// free of error plumbing.
func mustTimeOfDay(t testing.TB, hour, minute int) TimeOfDay {
	t.Helper()
	tod, err := NewTimeOfDay(hour, minute)
	require.NoError(t, err)
	return tod
}

func utcDate(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}
