package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for reeltrust.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Digest     DigestConfig     `toml:"digest"`
	Verify     VerifyConfig     `toml:"verify"`
	Tools      ToolsConfig      `toml:"tools"`
	Staging    StagingConfig    `toml:"staging"`
	Database   DatabaseConfig   `toml:"database"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// DigestConfig holds the reference digest build parameters used when signing.
type DigestConfig struct {
	Width   int `toml:"width"`
	Quality int `toml:"quality"` // x264 CRF; 18, 23, 28 or 32 for the presets
}

// VerifyConfig holds verification defaults. Command-line flags override them.
type VerifyConfig struct {
	Threshold                float64 `toml:"threshold"`
	WindowSeconds            float64 `toml:"window_seconds"`
	Strict                   bool    `toml:"strict"`
	AudioPolicy              string  `toml:"audio_policy"` // "report" or "require"
	AudioMatchThreshold      float64 `toml:"audio_match_threshold"`
	DurationToleranceSeconds float64 `toml:"duration_tolerance_seconds"`
}

// ToolsConfig locates the external media tools. Bare names are looked up in PATH.
type ToolsConfig struct {
	FFmpeg         string `toml:"ffmpeg"`
	FFprobe        string `toml:"ffprobe"`
	FPCalc         string `toml:"fpcalc"`
	TimeoutSeconds int    `toml:"timeout_seconds"` // 0 means no timeout
}

// StagingConfig configures where temporary workspaces are created.
type StagingConfig struct {
	Dir string `toml:"dir,omitempty"` // empty means the system temp directory
}

// EncryptionConfig holds paths to the age key pair used to seal published archives.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default), "none" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for a vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket       string `toml:"s3_bucket,omitempty"`
	S3Prefix       string `toml:"s3_prefix,omitempty"`
	S3Region       string `toml:"s3_region,omitempty"`
	S3Endpoint     string `toml:"s3_endpoint,omitempty"`
	S3UsePathStyle bool   `toml:"s3_use_path_style,omitempty"`
	S3AccessKeyID  string `toml:"s3_access_key_id,omitempty"`
	S3SecretKey    string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the local ledger database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Digest: DigestConfig{
			Width:   240,
			Quality: 23,
		},
		Verify: VerifyConfig{
			Threshold:                0.99,
			WindowSeconds:            5,
			AudioPolicy:              "report",
			AudioMatchThreshold:      0.75,
			DurationToleranceSeconds: 1.0,
		},
		Tools: ToolsConfig{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
			FPCalc:  "fpcalc",
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(baseDir, "vault")},
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "reeltrust.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "reeltrust.key"),
		},
	}
}

// Vault returns the vault config with the given name.
func (c *Config) Vault(name string) (VaultConfig, bool) {
	for _, v := range c.Vaults {
		if v.Name == name {
			return v, true
		}
	}
	return VaultConfig{}, false
}

// Validate checks the config for values no command can work with.
func (c *Config) Validate() error {
	if c.Digest.Width <= 0 || c.Digest.Width%2 != 0 {
		return fmt.Errorf("digest.width must be a positive even number, got %d", c.Digest.Width)
	}
	if c.Digest.Quality < 0 || c.Digest.Quality > 51 {
		return fmt.Errorf("digest.quality must be in [0, 51], got %d", c.Digest.Quality)
	}
	if c.Verify.Threshold < 0 || c.Verify.Threshold > 1 {
		return fmt.Errorf("verify.threshold must be in [0, 1], got %v", c.Verify.Threshold)
	}
	if c.Verify.WindowSeconds <= 0 {
		return fmt.Errorf("verify.window_seconds must be positive, got %v", c.Verify.WindowSeconds)
	}
	if c.Verify.AudioMatchThreshold < 0 || c.Verify.AudioMatchThreshold > 1 {
		return fmt.Errorf("verify.audio_match_threshold must be in [0, 1], got %v", c.Verify.AudioMatchThreshold)
	}
	if c.Verify.DurationToleranceSeconds < 0 {
		return fmt.Errorf("verify.duration_tolerance_seconds must not be negative")
	}
	seen := make(map[string]bool, len(c.Vaults))
	for _, v := range c.Vaults {
		if v.Name == "" {
			return fmt.Errorf("every vault needs a name")
		}
		if seen[v.Name] {
			return fmt.Errorf("duplicate vault name %q", v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Keys missing from the
// input keep the values in base.
func (m *Manager) Read(r io.Reader, base *Config) (*Config, error) {
	cfg := *base
	cfg.Vaults = nil
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if !md.IsDefined("vaults") {
		cfg.Vaults = base.Vaults
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path, filling
// unspecified values from NewConfig(baseDir).
func ReadFromFile(path, baseDir string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f, NewConfig(baseDir))
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config at path. A missing file yields the defaults for baseDir.
func Load(path, baseDir string) (*Config, error) {
	cfg, err := ReadFromFile(path, baseDir)
	if errors.Is(err, os.ErrNotExist) {
		cfg = NewConfig(baseDir)
	} else if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
