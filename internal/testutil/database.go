package testutil

import (
	"testing"

	"retain/internal/archive"
	"retain/internal/database"
	"retain/internal/database/migrations"
)

// NewTestDatabase creates an in-memory SQLite repository with all migrations
// applied. The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T, clock archive.Clock) *database.SQLiteRepository {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := migrations.MigrateUp(sqlDB); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	repo := database.NewSQLiteRepositoryFromDB(sqlDB, clock, ":memory:")

	t.Cleanup(func() {
		repo.Close()
	})

	return repo
}

// NewTestQueue creates a checksum queue backed by the repository's database.
func NewTestQueue(repo *database.SQLiteRepository, clock archive.Clock) *database.SQLiteChecksumQueue {
	return database.NewSQLiteChecksumQueue(repo.DB(), clock)
}

// NewTestOracle creates a usage oracle backed by the repository's database.
func NewTestOracle(repo *database.SQLiteRepository, clock archive.Clock) *database.SQLiteUsageOracle {
	return database.NewSQLiteUsageOracle(repo.DB(), clock)
}
