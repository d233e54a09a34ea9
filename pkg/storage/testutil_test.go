package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// escrowTables lists every table Migrate creates, children first.
var escrowTables = []string{"request_nonces", "notifications", "transfers", "request_indices", "jobs", "settings", "sequences"}

// openTestDB returns an empty escrow database: PostgreSQL when
// TEST_DATABASE_URL is set, a private in-memory SQLite otherwise.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		db, err := Open(DriverPostgres, dsn, false, MaxOpenConns(2), MaxIdleConns(1))
		require.NoError(t, err, "open postgres test db")

		truncate(db)
		t.Cleanup(func() {
			truncate(db)
			Close(db)
		})
		return db
	}

	db, err := Open(DriverSQLite, ":memory:", false)
	require.NoError(t, err, "open in-memory sqlite")
	t.Cleanup(func() { Close(db) })
	return db
}

func truncate(db *gorm.DB) {
	for _, tbl := range escrowTables {
		db.Exec("DELETE FROM " + tbl)
	}
}
