package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - REELTRUST_CONFIG_PATH: config file location (default: ~/.config/reeltrust.toml)
//   - REELTRUST_HOME: base directory for reeltrust data (default: ~/.local/share/reeltrust)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path":  configPath,
		"base_dir":     baseDir,
		"log_dir":      filepath.Join(baseDir, "log"),
		"packages_dir": filepath.Join(baseDir, "packages"),
	}, nil
}

// getConfigPath returns the config file path, checking REELTRUST_CONFIG_PATH first,
// then falling back to the default ~/.config/reeltrust.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("REELTRUST_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "reeltrust.toml"), nil
}

// getBaseDir returns the base directory for reeltrust data, checking REELTRUST_HOME
// first, then falling back to the XDG default ~/.local/share/reeltrust.
func getBaseDir() (string, error) {
	if path := os.Getenv("REELTRUST_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "reeltrust"), nil
}
