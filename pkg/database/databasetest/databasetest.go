// Package databasetest opens throwaway stores for tests.
package databasetest

import (
	"context"
	"path/filepath"
	"testing"

	"socialhub/pkg/database"
)

// New opens a migrated SQLite store in a temporary directory and closes it
// when the test ends.
func New(tb testing.TB) database.Store {
	tb.Helper()
	return Open(tb, database.DriverSQLite)
}

// Open is New for an explicit file-backed driver (sqlite or bolt).
func Open(tb testing.TB, driver string) database.Store {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "test.db")
	store, err := database.Open(context.Background(), database.Options{Driver: driver, URL: path})
	if err != nil {
		tb.Fatalf("open %s store: %v", driver, err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		tb.Fatalf("migrate %s store: %v", driver, err)
	}
	return store
}
