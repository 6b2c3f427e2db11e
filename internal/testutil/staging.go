package testutil

import (
	"testing"

	"reeltrust/internal/staging"
)

// NewTestStaging creates workspaces under a per-test temporary directory.
func NewTestStaging(t *testing.T) *staging.FileSystemStaging {
	t.Helper()

	s, err := staging.NewFileSystemStaging(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create staging: %v", err)
	}
	return s
}
