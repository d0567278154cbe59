// Package storetest provides an in-memory *store.Store with schema applied
// directly, for use by other packages' tests. Grounded on
// bt-go/internal/testutil/database.go's NewTestDatabase.
package storetest

import (
	"testing"

	"filecache-core/internal/store"
	"filecache-core/internal/store/sqlc"
)

// New creates an in-memory SQLite-backed *store.Store with the schema
// applied directly (bypassing the migration runner), closed automatically
// when the test completes.
func New(t *testing.T) *store.Store {
	t.Helper()

	db, err := store.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}

	if _, err := db.Exec(sqlc.Schema); err != nil {
		db.Close()
		t.Fatalf("applying schema: %v", err)
	}

	st := store.NewFromDB(db)
	t.Cleanup(func() {
		st.Close()
	})
	return st
}
