package database

import (
	"os"
	"path/filepath"
	"testing"

	"reeltrust/internal/config"
)

func TestNewLedgerFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		got, err := NewLedgerFromConfig(config.DatabaseConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewLedgerFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("sqlite database", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		got, err := NewLedgerFromConfig(config.DatabaseConfig{Type: "sqlite", DataDir: dir})
		if err != nil {
			t.Fatalf("NewLedgerFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if _, err := os.Stat(filepath.Join(dir, LedgerFileName)); err != nil {
			t.Errorf("ledger file not created: %v", err)
		}
		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		got, err := NewLedgerFromConfig(config.DatabaseConfig{Type: "sqlite"})
		if err == nil {
			got.Close()
			t.Error("NewLedgerFromConfig() expected error, got nil")
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		got, err := NewLedgerFromConfig(config.DatabaseConfig{Type: "postgres"})
		if err == nil {
			got.Close()
			t.Error("NewLedgerFromConfig() expected error, got nil")
		}
	})
}
