package sqlkit

import (
	"github.com/rzpsarthak13/sqlkit/internal/registry"
)

// Config is the complete configuration: database, schema cache, change feed
// and bulk defaults.
type Config = registry.Config

// DefaultConfig returns the defaults. The database name and credentials have
// to be provided.
func DefaultConfig() *Config {
	return registry.DefaultConfig()
}

// LoadConfig reads path (YAML or JSON, skipped when empty) on top of the
// defaults, then applies the SQL_* and SQLKIT_* environment variables.
//
// Recognized connection variables are SQL_HOST, SQL_PORT, SQL_DB,
// SQL_CHARSET, SQL_COLLATE, SQL_USER and SQL_PASS.
func LoadConfig(path string) (*Config, error) {
	cm := registry.NewConfigManager()
	if path != "" {
		if err := cm.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cm.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cm.GetConfig(), nil
}
