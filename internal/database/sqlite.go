package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reeltrust/internal/database/migrations"
	"reeltrust/internal/model"
	"reeltrust/internal/reel"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteLedger implements the reel.Ledger interface using SQLite.
type SQLiteLedger struct {
	db   *sql.DB
	path string
}

// NewSQLiteLedger opens the ledger at path and applies pending migrations.
// path can be a file path or ":memory:" for an in-memory ledger.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Apply(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteLedger{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		// Applied to every pooled connection, unlike a one-off PRAGMA.
		dsn = "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Operation tracking

func (s *SQLiteLedger) CreateOperation(operation, parameters string, startedAt time.Time) (*model.Operation, error) {
	res, err := s.db.ExecContext(context.Background(),
		`INSERT INTO operations (operation, parameters, status, started_at) VALUES (?, ?, 'running', ?)`,
		operation, parameters, startedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return &model.Operation{
		ID:         id,
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
		StartedAt:  startedAt.UTC(),
	}, nil
}

func (s *SQLiteLedger) FinishOperation(id int64, status string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(context.Background(),
		`UPDATE operations SET status = ?, finished_at = ? WHERE id = ?`,
		status, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

// Signed packages

func (s *SQLiteLedger) RecordPackage(p *model.SignedPackage) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO packages (id, operation_id, source_hash, source_filename, digest_hash, package_dir, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			operation_id = excluded.operation_id,
			source_hash = excluded.source_hash,
			source_filename = excluded.source_filename,
			digest_hash = excluded.digest_hash,
			package_dir = excluded.package_dir,
			created_at = excluded.created_at`,
		p.ID, nullOperation(p.OperationID), p.SourceHash, p.SourceFilename, p.DigestHash, p.PackageDir, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording package: %w", err)
	}
	return nil
}

func (s *SQLiteLedger) FindPackage(packageID string) (*model.SignedPackage, error) {
	var (
		p    model.SignedPackage
		opID sql.NullInt64
	)
	err := s.db.QueryRowContext(context.Background(), `
		SELECT id, operation_id, source_hash, source_filename, digest_hash, package_dir, created_at
		FROM packages WHERE id = ?`, packageID).
		Scan(&p.ID, &opID, &p.SourceHash, &p.SourceFilename, &p.DigestHash, &p.PackageDir, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding package: %w", err)
	}
	p.OperationID = opID.Int64
	return &p, nil
}

// Verifications

func (s *SQLiteLedger) RecordVerification(v *model.Verification) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	var score sql.NullFloat64
	if v.MinWindowScore != nil {
		score = sql.NullFloat64{Float64: *v.MinWindowScore, Valid: true}
	}
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO verifications (id, operation_id, package_id, candidate_path, candidate_hash, verdict, reason, min_window_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, nullOperation(v.OperationID), v.PackageID, v.CandidatePath, v.CandidateHash, v.Verdict, v.Reason, score, v.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording verification: %w", err)
	}
	return nil
}

// Publications

func (s *SQLiteLedger) RecordPublication(p *model.Publication) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO publications (id, operation_id, package_id, vault, checksum, size, sealed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, nullOperation(p.OperationID), p.PackageID, p.Vault, p.Checksum, p.Size, p.Sealed, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording publication: %w", err)
	}
	return nil
}

func (s *SQLiteLedger) FindPublications(packageID string) ([]*model.Publication, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, operation_id, package_id, vault, checksum, size, sealed, created_at
		FROM publications WHERE package_id = ?
		ORDER BY created_at, rowid`, packageID)
	if err != nil {
		return nil, fmt.Errorf("finding publications: %w", err)
	}
	defer rows.Close()

	var result []*model.Publication
	for rows.Next() {
		var (
			p    model.Publication
			opID sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &opID, &p.PackageID, &p.Vault, &p.Checksum, &p.Size, &p.Sealed, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning publication: %w", err)
		}
		p.OperationID = opID.Int64
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("finding publications: %w", err)
	}
	return result, nil
}

// History

func (s *SQLiteLedger) ListHistory(limit int) ([]*model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT o.id, o.operation, o.parameters, o.status, o.started_at, o.finished_at,
		       v.id, v.package_id, v.candidate_path, v.candidate_hash, v.verdict, v.reason, v.min_window_score, v.created_at
		FROM operations o
		LEFT JOIN verifications v ON v.operation_id = o.id
		ORDER BY o.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var result []*model.HistoryEntry
	for rows.Next() {
		var (
			e        model.HistoryEntry
			finished sql.NullTime
			vID      sql.NullString
			vPkg     sql.NullString
			vPath    sql.NullString
			vHash    sql.NullString
			vVerdict sql.NullString
			vReason  sql.NullString
			vScore   sql.NullFloat64
			vCreated sql.NullTime
		)
		op := &e.Operation
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &finished,
			&vID, &vPkg, &vPath, &vHash, &vVerdict, &vReason, &vScore, &vCreated); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		if vID.Valid {
			v := &model.Verification{
				ID:            vID.String,
				OperationID:   op.ID,
				PackageID:     vPkg.String,
				CandidatePath: vPath.String,
				CandidateHash: vHash.String,
				Verdict:       vVerdict.String,
				Reason:        vReason.String,
				CreatedAt:     vCreated.Time,
			}
			if vScore.Valid {
				score := vScore.Float64
				v.MinWindowScore = &score
			}
			e.Verification = v
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return result, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteLedger) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteLedger) CheckMigrations() error {
	status, err := migrations.Check(s.db)
	if err != nil {
		return err
	}
	return status.Err()
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// nullOperation maps the zero operation id to NULL.
func nullOperation(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// Compile-time check that SQLiteLedger implements reel.Ledger interface
var _ reel.Ledger = (*SQLiteLedger)(nil)
