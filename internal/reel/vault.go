package reel

import (
	"errors"
	"io"
)

// ErrContentNotFound is returned by a Vault when no content exists for a checksum.
var ErrContentNotFound = errors.New("content not found")

// Vault is a content-addressed store for published package archives.
// All operations stream through io.Reader/io.Writer so archives never need
// to be held in memory.
type Vault interface {
	// Name identifies the vault in locators.
	Name() string

	// PutContent stores content identified by its SHA-256 checksum.
	// The operation is idempotent: storing the same checksum multiple times is safe.
	// size is the number of bytes that will be read from r.
	PutContent(checksum string, r io.Reader, size int64) error

	// GetContent retrieves content by checksum and writes it to w.
	// Returns an error wrapping ErrContentNotFound if it does not exist.
	GetContent(checksum string, w io.Writer) error

	// HasContent reports whether content exists for checksum.
	HasContent(checksum string) (bool, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
