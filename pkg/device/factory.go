package device

import (
	"fmt"
)

// RepositoryConfig contains configuration for creating a device repository
type RepositoryConfig struct {
	// Pool is required for PostgreSQL repositories
	Pool Pool
}

// NewRepository creates a device repository based on the persistence type
func NewRepository(persistenceType string, config RepositoryConfig) (Repository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.Pool == nil {
			return nil, fmt.Errorf("pool required for postgres repository")
		}
		return NewPostgresRepository(config.Pool), nil
	case "memory", "inmem":
		return NewInMemRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, memory)", persistenceType)
	}
}
