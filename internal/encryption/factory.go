package encryption

import (
	"fmt"

	"reeltrust/internal/config"
	"reeltrust/internal/reel"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// Type "none" disables sealing and returns a nil Encryptor.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (reel.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
