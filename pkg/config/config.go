// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Service, Builder, Search, Postgres, Redis, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Builder  BuilderConfig  `yaml:"builder"`
	Search   SearchConfig   `yaml:"search"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServiceConfig holds the HTTP service settings.
type ServiceConfig struct {
	Port            int           `yaml:"port"`
	DataRoot        string        `yaml:"dataRoot"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimit       int           `yaml:"rateLimit"`
	RateWindow      time.Duration `yaml:"rateWindow"`
}

// BuilderConfig controls the segment build pipeline.
type BuilderConfig struct {
	StrictTextIsNormalized bool  `yaml:"strictTextIsNormalized"`
	MaxTextBytesPerDoc     int   `yaml:"maxTextBytesPerDoc"`
	MaxTokensPerDoc        int   `yaml:"maxTokensPerDoc"`
	MaxShinglesPerDoc      int   `yaml:"maxShinglesPerDoc"`
	MaxDocsInSegment       int   `yaml:"maxDocsInSegment"`
	ShingleStride          int   `yaml:"shingleStride"`
	MaxThreads             int   `yaml:"maxThreads"`
	InflightDocs           int   `yaml:"inflightDocs"`
	RAMLimitBytes          int64 `yaml:"ramLimitBytes"`
}

// SearchConfig controls query execution defaults.
type SearchConfig struct {
	TopK               int     `yaml:"topk"`
	CandidatesTopN     int     `yaml:"candidatesTopn"`
	MinHits            int     `yaml:"minHits"`
	MaxPostingsPerHash int     `yaml:"maxPostingsPerHash"`
	SpanMinLen         int     `yaml:"spanMinLen"`
	SpanGap            int     `yaml:"spanGap"`
	MaxSpansPerDoc     int     `yaml:"maxSpansPerDoc"`
	Alpha              float64 `yaml:"alpha"`
}

// PostgresConfig holds the document catalog connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// RedisConfig holds the query cache connection and TTL parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds the event broker settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CorpusIngest    string `yaml:"corpusIngest"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
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

// Load reads a YAML config file (if provided) and applies
// environment-variable overrides. It returns a Config populated with
// sensible defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Port:            8080,
			DataRoot:        "data",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  25 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       120,
			RateWindow:      time.Minute,
		},
		Builder: BuilderConfig{
			MaxTextBytesPerDoc: 8 << 20,
			MaxTokensPerDoc:    200000,
			MaxShinglesPerDoc:  200000,
			ShingleStride:      1,
			RAMLimitBytes:      256 << 20,
		},
		Search: SearchConfig{
			TopK:               20,
			CandidatesTopN:     200,
			MinHits:            2,
			MaxPostingsPerHash: 50000,
			SpanMinLen:         6,
			SpanGap:            0,
			MaxSpansPerDoc:     10,
			Alpha:              0.60,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "plagio",
			User:            "plagio",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "plagio-group",
			Topics: KafkaTopics{
				CorpusIngest:    "corpus-ingest",
				AnalyticsEvents: "analytics-events",
			},
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

// ParseBoolEnv interprets the 1/0/true/false/TRUE/FALSE convention used by
// the PLAGIO_* switches. Any other value falls back to defv.
func ParseBoolEnv(key string, defv bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE":
		return true
	case "0", "false", "FALSE":
		return false
	}
	return defv
}

// applyEnvOverrides reads PLAGIO_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLAGIO_SERVICE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Service.Port = port
		}
	}
	if v := os.Getenv("PLAGIO_DATA_ROOT"); v != "" {
		cfg.Service.DataRoot = v
	}
	cfg.Builder.StrictTextIsNormalized = ParseBoolEnv(
		"PLAGIO_STRICT_TEXT_IS_NORMALIZED", cfg.Builder.StrictTextIsNormalized)
	if v := os.Getenv("PLAGIO_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PLAGIO_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("PLAGIO_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("PLAGIO_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("PLAGIO_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("PLAGIO_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("PLAGIO_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PLAGIO_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PLAGIO_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PLAGIO_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PLAGIO_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
