package testutil

import (
	"testing"

	"reeltrust/internal/database"
	"reeltrust/internal/reel"
)

// NewTestLedger creates a new in-memory SQLite ledger with schema applied.
// The ledger is automatically closed when the test completes.
func NewTestLedger(t *testing.T) reel.Ledger {
	t.Helper()

	l, err := database.NewSQLiteLedger(":memory:")
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}

	t.Cleanup(func() {
		l.Close()
	})

	return l
}
