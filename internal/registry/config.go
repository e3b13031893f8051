package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigValidator is the Strategy interface for validating the cache section.
// Each KV store backend registers its own validator from init().
type ConfigValidator interface {
	// Validate checks only the backend-specific part of the configuration.
	Validate(config *Config) error

	// Type returns the cache type this validator handles (e.g. "redis").
	Type() string
}

var (
	validatorRegistry      = make(map[string]ConfigValidator)
	validatorRegistryMutex sync.RWMutex
)

// RegisterValidator registers a cache config validator.
// Panics if validator is nil, its type is empty or already registered.
func RegisterValidator(validator ConfigValidator) {
	if validator == nil {
		panic("validator cannot be nil")
	}
	if validator.Type() == "" {
		panic("validator type cannot be empty")
	}

	validatorRegistryMutex.Lock()
	defer validatorRegistryMutex.Unlock()

	if _, exists := validatorRegistry[validator.Type()]; exists {
		panic(fmt.Sprintf("validator for type %q is already registered", validator.Type()))
	}
	validatorRegistry[validator.Type()] = validator
}

// GetValidator retrieves a validator by cache type.
func GetValidator(validatorType string) (ConfigValidator, bool) {
	validatorRegistryMutex.RLock()
	defer validatorRegistryMutex.RUnlock()

	validator, exists := validatorRegistry[validatorType]
	return validator, exists
}

// ValidatorTypes returns the registered cache types, sorted.
func ValidatorTypes() []string {
	validatorRegistryMutex.RLock()
	defer validatorRegistryMutex.RUnlock()

	types := make([]string, 0, len(validatorRegistry))
	for t := range validatorRegistry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ConfigManager handles loading and managing configuration from various sources.
type ConfigManager struct {
	config *Config
}

// NewConfigManager creates a configuration manager holding the defaults.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{config: DefaultConfig()}
}

// DefaultConfig returns a configuration with sensible defaults. The database
// name and credentials have no default.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:              "localhost",
			Port:              3306,
			Charset:           "utf8mb4",
			Collation:         "utf8mb4_unicode_ci",
			MaxOpenConns:      1,
			MaxIdleConns:      1,
			ConnMaxLifetime:   5 * time.Minute,
			ConnectionTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Type: "file",
			Dir:  "db",
			Redis: RedisConfig{
				Endpoints:    []string{"localhost:6379"},
				PoolSize:     10,
				MinIdleConns: 1,
				KeyPrefix:    "sqlkit:",
			},
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		ChangeFeed: ChangeFeedConfig{
			Type:       "none",
			BufferSize: 1000,
			Kafka: KafkaConfig{
				Brokers:         []string{"localhost:9092"},
				Topic:           "sqlkit-changes",
				GroupID:         "sqlkit",
				BatchSize:       100,
				BatchTimeout:    10 * time.Millisecond,
				WriteTimeout:    10 * time.Second,
				ReadTimeout:     10 * time.Second,
				RequiredAcks:    -1,
				MaxMessageBytes: 1000000,
				MinBytes:        1,
				MaxBytes:        10 * 1024 * 1024,
				MaxWait:         100 * time.Millisecond,
			},
		},
		Bulk: BulkConfig{
			ChunkSize: 200,
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
// The format is determined by the extension (.yaml, .yml or .json).
func (cm *ConfigManager) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		return cm.LoadFromYAML(data)
	case ".json":
		return cm.LoadFromJSON(data)
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
}

// LoadFromYAML loads configuration from YAML data on top of the defaults.
func (cm *ConfigManager) LoadFromYAML(data []byte) error {
	config := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return cm.apply(config)
}

// LoadFromJSON loads configuration from JSON data on top of the defaults.
func (cm *ConfigManager) LoadFromJSON(data []byte) error {
	config := DefaultConfig()
	if len(data) > 0 {
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return cm.apply(config)
}

// LoadFromEnv overrides the current configuration with environment variables.
// The connection is read from SQL_HOST, SQL_PORT, SQL_DB, SQL_CHARSET,
// SQL_COLLATE, SQL_USER and SQL_PASS. Every other setting follows the pattern
// SQLKIT_<SECTION>_<KEY>, for example:
//   - SQLKIT_DATABASE_MAX_OPEN_CONNS=4
//   - SQLKIT_DATABASE_LOG_QUERIES=true
//   - SQLKIT_CACHE_TYPE=redis
//   - SQLKIT_CACHE_ENDPOINTS=localhost:6379,localhost:6380
//   - SQLKIT_CHANGE_FEED_TYPE=kafka
//   - SQLKIT_BULK_CHUNK_SIZE=500
func (cm *ConfigManager) LoadFromEnv() error {
	config := *cm.config

	// Connection
	envString("SQL_HOST", &config.Database.Host)
	envInt("SQL_PORT", &config.Database.Port)
	envString("SQL_DB", &config.Database.Name)
	envString("SQL_CHARSET", &config.Database.Charset)
	envString("SQL_COLLATE", &config.Database.Collation)
	envString("SQL_USER", &config.Database.Username)
	envString("SQL_PASS", &config.Database.Password)
	envInt("SQLKIT_DATABASE_MAX_OPEN_CONNS", &config.Database.MaxOpenConns)
	envInt("SQLKIT_DATABASE_MAX_IDLE_CONNS", &config.Database.MaxIdleConns)
	envDuration("SQLKIT_DATABASE_CONN_MAX_LIFETIME", &config.Database.ConnMaxLifetime)
	envDuration("SQLKIT_DATABASE_CONNECTION_TIMEOUT", &config.Database.ConnectionTimeout)
	envBool("SQLKIT_DATABASE_LOG_QUERIES", &config.Database.LogQueries)

	// Schema cache
	envString("SQLKIT_CACHE_TYPE", &config.Cache.Type)
	envString("SQLKIT_CACHE_DIR", &config.Cache.Dir)
	envBool("SQLKIT_CACHE_WATCH", &config.Cache.Watch)
	envList("SQLKIT_CACHE_ENDPOINTS", &config.Cache.Redis.Endpoints)
	envString("SQLKIT_CACHE_PASSWORD", &config.Cache.Redis.Password)
	envInt("SQLKIT_CACHE_DB", &config.Cache.Redis.DB)
	envInt("SQLKIT_CACHE_POOL_SIZE", &config.Cache.Redis.PoolSize)
	envString("SQLKIT_CACHE_KEY_PREFIX", &config.Cache.Redis.KeyPrefix)
	envString("SQLKIT_CACHE_REGION", &config.Cache.DynamoDB.Region)
	envString("SQLKIT_CACHE_TABLE_NAME", &config.Cache.DynamoDB.TableName)
	envString("SQLKIT_CACHE_ENDPOINT", &config.Cache.DynamoDB.Endpoint)
	envInt("SQLKIT_CACHE_MAX_RETRIES", &config.Cache.MaxRetries)

	// Change feed
	envString("SQLKIT_CHANGE_FEED_TYPE", &config.ChangeFeed.Type)
	envInt("SQLKIT_CHANGE_FEED_BUFFER_SIZE", &config.ChangeFeed.BufferSize)
	envList("SQLKIT_CHANGE_FEED_BROKERS", &config.ChangeFeed.Kafka.Brokers)
	envString("SQLKIT_CHANGE_FEED_TOPIC", &config.ChangeFeed.Kafka.Topic)
	envString("SQLKIT_CHANGE_FEED_GROUP_ID", &config.ChangeFeed.Kafka.GroupID)

	// Bulk
	envInt("SQLKIT_BULK_CHUNK_SIZE", &config.Bulk.ChunkSize)
	if val := os.Getenv("SQLKIT_BULK_CHUNK_RATE"); val != "" {
		var rate float64
		if _, err := fmt.Sscanf(val, "%f", &rate); err == nil {
			config.Bulk.ChunkRate = rate
		}
	}

	return cm.apply(&config)
}

// GetConfig returns the current configuration.
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// Validate checks the current configuration.
func (cm *ConfigManager) Validate() error {
	if err := cm.validateConfig(cm.config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (cm *ConfigManager) apply(config *Config) error {
	if err := cm.validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cm.config = config
	return nil
}

// validateConfig validates the configuration. The cache section is handed to
// the validator registered for its type.
func (cm *ConfigManager) validateConfig(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Database.Port <= 0 || config.Database.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535")
	}
	if config.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database.username is required")
	}
	if config.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be greater than 0")
	}

	if config.Cache.Type == "" {
		return fmt.Errorf("cache.type is required")
	}
	validator, exists := GetValidator(config.Cache.Type)
	if !exists {
		return fmt.Errorf("unsupported cache type: %s", config.Cache.Type)
	}
	if err := validator.Validate(config); err != nil {
		return fmt.Errorf("cache validation failed: %w", err)
	}

	switch config.ChangeFeed.Type {
	case "", "none", "memory":
	case "kafka":
		if len(config.ChangeFeed.Kafka.Brokers) == 0 {
			return fmt.Errorf("change_feed.kafka.brokers is required when type is 'kafka'")
		}
		if config.ChangeFeed.Kafka.Topic == "" {
			return fmt.Errorf("change_feed.kafka.topic is required when type is 'kafka'")
		}
	default:
		return fmt.Errorf("change_feed.type must be 'none', 'memory', or 'kafka'")
	}
	if config.ChangeFeed.BufferSize < 0 {
		return fmt.Errorf("change_feed.buffer_size must be non-negative")
	}

	if config.Bulk.ChunkSize <= 0 {
		return fmt.Errorf("bulk.chunk_size must be greater than 0")
	}
	if config.Bulk.ChunkRate < 0 {
		return fmt.Errorf("bulk.chunk_rate must be non-negative")
	}
	return nil
}

func envString(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		var n int
		if _, err := fmt.Sscanf(val, "%d", &n); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		*dst = val == "true" || val == "1"
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envList(name string, dst *[]string) {
	if val := os.Getenv(name); val != "" {
		*dst = strings.Split(val, ",")
	}
}
