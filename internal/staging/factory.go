package staging

import (
	"reeltrust/internal/config"
)

// NewStagingFromConfig creates the workspace provider described by cfg.
func NewStagingFromConfig(cfg config.StagingConfig) (*FileSystemStaging, error) {
	return NewFileSystemStaging(cfg.Dir)
}
