package database

import (
	"fmt"
	"os"
	"path/filepath"

	"reeltrust/internal/config"
	"reeltrust/internal/reel"
)

// LedgerFileName is the name of the sqlite ledger inside data_dir.
const LedgerFileName = "reeltrust.db"

// NewLedgerFromConfig creates a Ledger implementation based on the database config type.
func NewLedgerFromConfig(cfg config.DatabaseConfig) (reel.Ledger, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		l, err := NewSQLiteLedger(filepath.Join(cfg.DataDir, LedgerFileName))
		if err != nil {
			return nil, err
		}
		return l, nil
	case "memory":
		l, err := NewSQLiteLedger(":memory:")
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
