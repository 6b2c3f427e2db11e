package reel

import (
	"time"

	"reeltrust/internal/model"
)

// Ledger is the local record of what this host has signed, verified and published.
// It is informational: no verification decision ever reads from it.
type Ledger interface {
	// CreateOperation records the start of a CLI operation and returns it with its ID set.
	CreateOperation(operation, parameters string, startedAt time.Time) (*model.Operation, error)

	// FinishOperation sets the final status of an operation.
	FinishOperation(id int64, status string, finishedAt time.Time) error

	// RecordPackage records a newly signed package. Re-signing the same source
	// replaces the earlier record.
	RecordPackage(p *model.SignedPackage) error

	// FindPackage returns a signed package by id, or nil if unknown.
	FindPackage(packageID string) (*model.SignedPackage, error)

	// RecordVerification records the outcome of a verify run.
	RecordVerification(v *model.Verification) error

	// RecordPublication records a published archive.
	RecordPublication(p *model.Publication) error

	// FindPublications returns all publications of a package, oldest first.
	FindPublications(packageID string) ([]*model.Publication, error)

	// ListHistory returns the most recent operations, newest first.
	ListHistory(limit int) ([]*model.HistoryEntry, error)

	// CheckMigrations verifies that the schema is up to date.
	CheckMigrations() error

	// Close closes the underlying connection.
	Close() error
}
