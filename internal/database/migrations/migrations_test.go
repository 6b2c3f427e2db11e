package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestApply_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := Apply(db); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	tables := []string{"operations", "packages", "verifications", "publications", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheck(t *testing.T) {
	latest, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() failed: %v", err)
	}
	if latest != 1 {
		t.Errorf("LatestVersion() = %d, want 1", latest)
	}

	tests := []struct {
		name      string
		setup     func(t *testing.T, db *sql.DB)
		wantErr   error
		wantValid bool
	}{
		{
			name:    "fresh database",
			setup:   func(t *testing.T, db *sql.DB) {},
			wantErr: ErrNoSchema,
		},
		{
			name: "migrated",
			setup: func(t *testing.T, db *sql.DB) {
				if err := Apply(db); err != nil {
					t.Fatal(err)
				}
			},
			wantValid: true,
		},
		{
			name: "applied twice",
			setup: func(t *testing.T, db *sql.DB) {
				for range 2 {
					if err := Apply(db); err != nil {
						t.Fatal(err)
					}
				}
			},
			wantValid: true,
		},
		{
			name: "newer schema",
			setup: func(t *testing.T, db *sql.DB) {
				if err := Apply(db); err != nil {
					t.Fatal(err)
				}
				if _, err := db.Exec("UPDATE schema_migrations SET version = 7"); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "dirty",
			setup: func(t *testing.T, db *sql.DB) {
				if err := Apply(db); err != nil {
					t.Fatal(err)
				}
				if _, err := db.Exec("UPDATE schema_migrations SET dirty = 1"); err != nil {
					t.Fatal(err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openTestDB(t)
			defer db.Close()
			tt.setup(t, db)

			status, err := Check(db)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Check() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if status.Latest != latest {
				t.Errorf("Check().Latest = %d, want %d", status.Latest, latest)
			}
			if got := status.Err() == nil; got != tt.wantValid {
				t.Errorf("Check() = %+v, Err() = %v, want usable %v", status, status.Err(), tt.wantValid)
			}
		})
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := Apply(db); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	// Referencing a non-existent operation must fail
	_, err := db.Exec(`
		INSERT INTO packages (id, operation_id, source_hash, source_filename, digest_hash, package_dir, created_at)
		VALUES ('0123456789abcdef', 42, 'aa', 'clip.mp4', 'bb', '/tmp/clip_package', datetime('now'))
	`)
	if err == nil {
		t.Error("Expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchema_Operations(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := Apply(db); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	res, err := db.Exec("INSERT INTO operations (operation, parameters, started_at) VALUES ('sign', '[]', datetime('now'))")
	if err != nil {
		t.Fatalf("Failed to insert operation: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatal(err)
	}

	var status string
	if err := db.QueryRow("SELECT status FROM operations WHERE id = ?", id).Scan(&status); err != nil {
		t.Fatalf("Failed to retrieve operation: %v", err)
	}
	if status != "running" {
		t.Errorf("default status = %q, want running", status)
	}
}

func TestSchema_VerificationVerdict(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := Apply(db); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	insert := `INSERT INTO verifications (id, package_id, candidate_path, candidate_hash, verdict, created_at)
		VALUES (?, 'pkg', '/tmp/c.mp4', 'cc', ?, datetime('now'))`
	if _, err := db.Exec(insert, "v-1", "pass"); err != nil {
		t.Fatalf("Failed to insert pass verdict: %v", err)
	}
	if _, err := db.Exec(insert, "v-2", "maybe"); err == nil {
		t.Error("Expected check constraint violation for unknown verdict, but insert succeeded")
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	return db
}
