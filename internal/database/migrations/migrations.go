// Package migrations holds the embedded ledger schema and applies it with
// golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var schemaFiles embed.FS

// ErrNoSchema is returned for a ledger that has never been migrated.
var ErrNoSchema = errors.New("ledger has no schema")

// Status is the schema version of a ledger database compared with the
// migrations built into this binary.
type Status struct {
	Version uint
	Latest  uint
	Dirty   bool
}

// Err describes why the ledger cannot be used as is, or returns nil when it
// is at the latest version.
func (s Status) Err() error {
	switch {
	case s.Dirty:
		return fmt.Errorf("ledger schema version %d is dirty: a previous migration did not finish", s.Version)
	case s.Version < s.Latest:
		return fmt.Errorf("ledger schema version %d is older than %d", s.Version, s.Latest)
	case s.Version > s.Latest:
		return fmt.Errorf("ledger schema version %d was written by a newer reeltrust (this one knows %d)", s.Version, s.Latest)
	}
	return nil
}

// Apply migrates db to the latest ledger schema. Applying to an up to date
// ledger is a no-op.
func Apply(db *sql.DB) error {
	m, err := open(db)
	if err != nil {
		return err
	}
	// m is not closed: that would close db, which the caller owns.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating ledger schema: %w", err)
	}
	return nil
}

// Check returns the schema status of db.
func Check(db *sql.DB) (Status, error) {
	m, err := open(db)
	if err != nil {
		return Status{}, err
	}
	latest, err := LatestVersion()
	if err != nil {
		return Status{}, err
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Latest: latest}, ErrNoSchema
	}
	if err != nil {
		return Status{}, fmt.Errorf("reading ledger schema version: %w", err)
	}
	return Status{Version: version, Latest: latest, Dirty: dirty}, nil
}

// LatestVersion returns the highest migration version embedded in the binary.
func LatestVersion() (uint, error) {
	src, err := iofs.New(schemaFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("reading embedded migrations: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

func lastVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("reading embedded migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("reading embedded migrations: %w", err)
		}
		v = next
	}
}

func open(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing ledger for migration: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing ledger for migration: %w", err)
	}
	return m, nil
}
