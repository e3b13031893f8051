package registry

import (
	"time"
)

// Config is the complete sqlkit configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" json:"database"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	ChangeFeed ChangeFeedConfig `yaml:"change_feed" json:"change_feed"`
	Bulk       BulkConfig       `yaml:"bulk" json:"bulk"`
}

// DatabaseConfig contains the MySQL connection settings.
type DatabaseConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	Name      string `yaml:"name" json:"name"`
	Charset   string `yaml:"charset" json:"charset"`
	Collation string `yaml:"collation" json:"collation"`
	Username  string `yaml:"username" json:"username"`
	Password  string `yaml:"password" json:"password"`

	// MaxOpenConns caps the pool. One Connection runs one statement at a
	// time, so the default is 1.
	MaxOpenConns      int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns      int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime   time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" json:"connection_timeout"`

	// LogQueries traces every statement with its parameters inlined.
	LogQueries bool `yaml:"log_queries" json:"log_queries"`
}

// CacheConfig selects the KV store holding schema and DDL documents.
// Supported types are registered by the kvstore package: file, memory,
// redis and dynamodb.
type CacheConfig struct {
	Type string `yaml:"type" json:"type"`

	// Dir is the directory of the file backend.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`

	// Watch invalidates memoized documents when the file backend's
	// directory changes on disk.
	Watch bool `yaml:"watch,omitempty" json:"watch,omitempty"`

	Redis        RedisConfig    `yaml:"redis,omitempty" json:"redis,omitempty"`
	DynamoDB     DynamoDBConfig `yaml:"dynamodb,omitempty" json:"dynamodb,omitempty"`
	MaxRetries   int            `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	DialTimeout  time.Duration  `yaml:"dial_timeout,omitempty" json:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration  `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	WriteTimeout time.Duration  `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	Endpoints    []string `yaml:"endpoints" json:"endpoints"`
	Password     string   `yaml:"password,omitempty" json:"password,omitempty"`
	DB           int      `yaml:"db" json:"db"`
	PoolSize     int      `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int      `yaml:"min_idle_conns" json:"min_idle_conns"`
	KeyPrefix    string   `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
}

// DynamoDBConfig contains DynamoDB-specific configuration.
type DynamoDBConfig struct {
	Region          string `yaml:"region" json:"region"`
	TableName       string `yaml:"table_name" json:"table_name"`
	Endpoint        string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
}

// ChangeFeedConfig selects where entity change events are published.
// Type is none, memory or kafka.
type ChangeFeedConfig struct {
	Type       string      `yaml:"type" json:"type"`
	BufferSize int         `yaml:"buffer_size" json:"buffer_size"`
	Kafka      KafkaConfig `yaml:"kafka" json:"kafka"`
}

// KafkaConfig contains Kafka-specific configuration.
type KafkaConfig struct {
	Brokers         []string      `yaml:"brokers" json:"brokers"`
	Topic           string        `yaml:"topic" json:"topic"`
	GroupID         string        `yaml:"group_id" json:"group_id"`
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout    time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	RequiredAcks    int           `yaml:"required_acks" json:"required_acks"`
	MaxMessageBytes int           `yaml:"max_message_bytes" json:"max_message_bytes"`
	MinBytes        int           `yaml:"min_bytes" json:"min_bytes"`
	MaxBytes        int           `yaml:"max_bytes" json:"max_bytes"`
	MaxWait         time.Duration `yaml:"max_wait" json:"max_wait"`
}

// BulkConfig holds the defaults of query.Bulk.
type BulkConfig struct {
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// ChunkRate is the maximum number of chunks per second, zero for no limit.
	ChunkRate float64 `yaml:"chunk_rate" json:"chunk_rate"`
}
