// Package testing provides testing utilities and helpers for the frontier project.
package testing

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/frontier/internal/database"
)

// NewTestDB creates a SQLite database in a temporary file with the schema
// named after the database applied ("history" applies history_schema.sql;
// unknown names give an empty database).
// The returned cleanup function is idempotent.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	tmpPath := filepath.Join(t.TempDir(), fmt.Sprintf("test_%s.db", name))

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			t.Logf("Warning: Failed to remove temporary database file %s: %v", tmpPath, err)
		}
	}
	t.Cleanup(cleanup)

	return db, cleanup
}
