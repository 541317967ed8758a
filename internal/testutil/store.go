package testutil

import (
	"testing"

	"github.com/attrib-app/attrib/internal/store"
)

// SetupTestStore opens an in-memory upload cache that is closed when the test ends.
func SetupTestStore(t testing.TB) *store.SQLiteStore {
	t.Helper()

	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}
