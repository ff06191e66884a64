package storage

import (
	"fmt"
	"loginguard/internal/models"
)

// Factory provides a centralized way to create directory instances based on configuration.
type Factory struct{}

// NewFactory creates a new directory factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a directory based on the provided configuration.
// Supported providers:
//   - json: JSON file-based directory (cached, reloads on change)
//   - memory: In-memory directory (for testing/development)
//   - postgres: PostgreSQL database directory
//   - sqlite: SQLite database directory
func (f *Factory) Create(config models.AccountsConfig) (Directory, error) {
	dirConfig := Config{
		Type:             config.Type,
		Path:             config.Path,
		ConnectionString: config.Database.DSN,
		MaxOpenConns:     config.Database.MaxOpenConns,
		MaxIdleConns:     config.Database.MaxIdleConns,
		ConnMaxLifetime:  config.Database.ConnMaxLifetime,
		ConnMaxIdleTime:  config.Database.ConnMaxIdleTime,
	}

	switch config.Type {
	case models.AccountsTypeJSON:
		return NewJSONDirectory(dirConfig)
	case models.AccountsTypeMemory:
		return NewMemoryDirectory(dirConfig)
	case models.AccountsTypePostgres:
		return NewPostgresDirectory(dirConfig)
	case models.AccountsTypeSQLite:
		return NewSQLiteDirectory(dirConfig)
	default:
		return nil, fmt.Errorf("unsupported accounts type: %s", config.Type)
	}
}

// GetSupportedProviders returns a list of all supported directory types
func (f *Factory) GetSupportedProviders() []string {
	return []string{models.AccountsTypeJSON, models.AccountsTypeMemory, models.AccountsTypePostgres, models.AccountsTypeSQLite}
}
