// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Storage, Redis, Postgres, Kafka, Model, etc.).
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend names accepted in StorageConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Model    ModelConfig    `yaml:"model"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxTrainBatch   int           `yaml:"maxTrainBatch"`
}

// StorageConfig selects the backend that holds model state.
type StorageConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlitePath"`
	Table      string `yaml:"table"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings for streamed training.
type KafkaConfig struct {
	Brokers        []string      `yaml:"brokers"`
	ConsumerGroup  string        `yaml:"consumerGroup"`
	TrainingTopic  string        `yaml:"trainingTopic"`
	BatchSize      int           `yaml:"batchSize"`
	HandlerTimeout time.Duration `yaml:"handlerTimeout"`
}

// ModelConfig controls the namespace and the correction and guessing knobs.
type ModelConfig struct {
	Namespace        string `yaml:"namespace"`
	MinNGramSize     int    `yaml:"minNGramSize"`
	MaxEditDistance  int    `yaml:"maxEditDistance"`
	PrefixLength     int    `yaml:"prefixLength"`
	MaxResults       int    `yaml:"maxResults"`
	GuessConcurrency int    `yaml:"guessConcurrency"`
}

// BreakerConfig controls the circuit breaker wrapped around networked stores.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"resetTimeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

// Validate checks the fields that would otherwise fail deep inside a backend.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendPostgres, BackendSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if !ValidNamespace(c.Model.Namespace) {
		return fmt.Errorf("invalid model namespace %q: must match %s", c.Model.Namespace, namespacePattern)
	}
	if c.Model.MinNGramSize < 1 {
		return fmt.Errorf("model.minNGramSize must be at least 1, got %d", c.Model.MinNGramSize)
	}
	if c.Model.MaxEditDistance < 1 || c.Model.MaxEditDistance > 3 {
		return fmt.Errorf("model.maxEditDistance must be between 1 and 3, got %d", c.Model.MaxEditDistance)
	}
	if c.Model.PrefixLength < 0 || (c.Model.PrefixLength > 0 && c.Model.PrefixLength <= c.Model.MaxEditDistance) {
		return fmt.Errorf("model.prefixLength must be 0 or greater than maxEditDistance, got %d", c.Model.PrefixLength)
	}
	if c.Model.MaxResults < 1 {
		return fmt.Errorf("model.maxResults must be positive, got %d", c.Model.MaxResults)
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlitePath is required for the sqlite backend")
	}
	return nil
}

// ValidNamespace reports whether ns can be used as a key prefix without
// overlapping another namespace.
func ValidNamespace(ns string) bool {
	return namespacePattern.MatchString(ns)
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxTrainBatch:   10000,
		},
		Storage: StorageConfig{
			Backend:    BackendMemory,
			SQLitePath: "data/finisher.db",
			Table:      "finisher_kv",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "finisher",
			User:            "finisher",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			ConsumerGroup:  "finisher-trainers",
			TrainingTopic:  "finisher.training",
			BatchSize:      500,
			HandlerTimeout: 30 * time.Second,
		},
		Model: ModelConfig{
			Namespace:        "finisher",
			MinNGramSize:     3,
			MaxEditDistance:  2,
			PrefixLength:     7,
			MaxResults:       10,
			GuessConcurrency: 8,
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads FIN_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FIN_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FIN_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("FIN_STORAGE_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("FIN_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FIN_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FIN_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FIN_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FIN_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("FIN_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("FIN_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FIN_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FIN_KAFKA_TRAINING_TOPIC"); v != "" {
		cfg.Kafka.TrainingTopic = v
	}
	if v := os.Getenv("FIN_MODEL_NAMESPACE"); v != "" {
		cfg.Model.Namespace = v
	}
	if v := os.Getenv("FIN_MODEL_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Model.MaxResults = n
		}
	}
	if v := os.Getenv("FIN_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FIN_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
