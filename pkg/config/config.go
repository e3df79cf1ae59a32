// Package config loads and validates configuration for every process of the
// federated search deployment from YAML files with SP_* environment-variable
// overrides. Each service reads the sections it needs (Coordinator,
// Statistics, Storage, Analyzer, Dym, Ingestion) plus the shared
// infrastructure sections (Postgres, Kafka, Redis, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Statistics  StatisticsConfig  `yaml:"statistics"`
	Storage     StorageConfig     `yaml:"storage"`
	Analyzer    AnalyzerConfig    `yaml:"analyzer"`
	Dym         DymConfig         `yaml:"dym"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings shared by the HTTP-facing commands.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// CoordinatorConfig controls the query gateway: where the statistics
// aggregator, the shard nodes and the auxiliary services live, and how the
// fan-out behaves.
type CoordinatorConfig struct {
	StatServer          string        `yaml:"statServer"`
	Shards              []string      `yaml:"shards"`
	AnalyzerAddr        string        `yaml:"analyzerAddr"`
	DymAddr             string        `yaml:"dymAddr"`
	PerShardTimeout     time.Duration `yaml:"perShardTimeout"`
	StatsTimeout        time.Duration `yaml:"statsTimeout"`
	MaxConcurrentShards int           `yaml:"maxConcurrentShards"`
	DefaultScheme       string        `yaml:"defaultScheme"`
	DefaultPageSize     int           `yaml:"defaultPageSize"`
	MaxPageSize         int           `yaml:"maxPageSize"`
	CacheEnabled        bool          `yaml:"cacheEnabled"`
	RateLimit           float64       `yaml:"rateLimit"`
	RateBurst           int           `yaml:"rateBurst"`
	TrustedProxies      []string      `yaml:"trustedProxies"`
	RequireAPIKey       bool          `yaml:"requireApiKey"`
}

// StatisticsConfig controls the statistics aggregator service.
type StatisticsConfig struct {
	Port             int           `yaml:"port"`
	Persist          bool          `yaml:"persist"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// StorageConfig controls one shard node.
type StorageConfig struct {
	Port          int    `yaml:"port"`
	ServerID      int    `yaml:"serverId"`
	ShardIndex    int    `yaml:"shardIndex"`
	StatServer    string `yaml:"statServer"`
	PublishStats  bool   `yaml:"publishStats"`
	DebugTrace    bool   `yaml:"debugTrace"`
	ConsumeIngest bool   `yaml:"consumeIngest"`
	DocumentsFile string `yaml:"documentsFile"`
	PublishChunk  int    `yaml:"publishChunk"`
}

// AnalyzerConfig controls the query analysis service.
type AnalyzerConfig struct {
	Port        int    `yaml:"port"`
	VectorsFile string `yaml:"vectorsFile"`
}

// DymConfig controls the did-you-mean service.
type DymConfig struct {
	Port           int    `yaml:"port"`
	VocabularyFile string `yaml:"vocabularyFile"`
	MaxProposals   int    `yaml:"maxProposals"`
}

// IngestionConfig controls document registration and shard assignment.
type IngestionConfig struct {
	NumShards int `yaml:"numShards"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
	CacheInvalidate string `yaml:"cacheInvalidate"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
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
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Coordinator.PerShardTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("coordinator.perShardTimeout must not be negative"))
	}
	if c.Coordinator.DefaultPageSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("coordinator.defaultPageSize must be positive"))
	}
	if c.Coordinator.MaxPageSize > 65535 {
		result = multierror.Append(result, fmt.Errorf("coordinator.maxPageSize must fit in 16 bits"))
	}
	if c.Storage.ServerID < 0 || c.Storage.ServerID > 65535 {
		result = multierror.Append(result, fmt.Errorf("storage.serverId must fit in 16 bits"))
	}
	if c.Ingestion.NumShards <= 0 {
		result = multierror.Append(result, fmt.Errorf("ingestion.numShards must be positive"))
	}
	if c.Storage.ShardIndex < 0 || c.Storage.ShardIndex >= c.Ingestion.NumShards {
		result = multierror.Append(result, fmt.Errorf("storage.shardIndex %d out of range [0,%d)", c.Storage.ShardIndex, c.Ingestion.NumShards))
	}
	return result.ErrorOrNil()
}

// defaultConfig returns a Config with defaults for a single-host deployment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Coordinator: CoordinatorConfig{
			StatServer:      "localhost:7183",
			Shards:          []string{"localhost:7184"},
			AnalyzerAddr:    "localhost:7182",
			DymAddr:         "localhost:7189",
			PerShardTimeout: 5 * time.Second,
			StatsTimeout:    2 * time.Second,
			DefaultScheme:   "BM25pff",
			DefaultPageSize: 20,
			MaxPageSize:     1000,
			CacheEnabled:    true,
			RateLimit:       50,
			RateBurst:       100,
		},
		Statistics: StatisticsConfig{
			Port:             7183,
			SnapshotInterval: time.Minute,
		},
		Storage: StorageConfig{
			Port:         7184,
			ServerID:     1,
			StatServer:   "localhost:7183",
			PublishChunk: 1000,
		},
		Analyzer: AnalyzerConfig{
			Port: 7182,
		},
		Dym: DymConfig{
			Port:         7189,
			MaxProposals: 20,
		},
		Ingestion: IngestionConfig{
			NumShards: 1,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "federatedsearch",
			User:            "federatedsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "federatedsearch-group",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				AnalyticsEvents: "query-analytics",
				CacheInvalidate: "cache-invalidate",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt("SP_SERVER_PORT", &cfg.Server.Port)
	setString("SP_COORDINATOR_STAT_SERVER", &cfg.Coordinator.StatServer)
	if v := os.Getenv("SP_COORDINATOR_SHARDS"); v != "" {
		cfg.Coordinator.Shards = splitList(v)
	}
	setString("SP_COORDINATOR_ANALYZER_ADDR", &cfg.Coordinator.AnalyzerAddr)
	setString("SP_COORDINATOR_DYM_ADDR", &cfg.Coordinator.DymAddr)
	setDuration("SP_COORDINATOR_PER_SHARD_TIMEOUT", &cfg.Coordinator.PerShardTimeout)
	setString("SP_COORDINATOR_DEFAULT_SCHEME", &cfg.Coordinator.DefaultScheme)
	setBool("SP_COORDINATOR_REQUIRE_API_KEY", &cfg.Coordinator.RequireAPIKey)
	if v := os.Getenv("SP_COORDINATOR_TRUSTED_PROXIES"); v != "" {
		cfg.Coordinator.TrustedProxies = splitList(v)
	}
	setInt("SP_STATISTICS_PORT", &cfg.Statistics.Port)
	setBool("SP_STATISTICS_PERSIST", &cfg.Statistics.Persist)
	setInt("SP_STORAGE_PORT", &cfg.Storage.Port)
	setInt("SP_STORAGE_SERVER_ID", &cfg.Storage.ServerID)
	setInt("SP_STORAGE_SHARD_INDEX", &cfg.Storage.ShardIndex)
	setString("SP_STORAGE_STAT_SERVER", &cfg.Storage.StatServer)
	setBool("SP_STORAGE_PUBLISH_STATS", &cfg.Storage.PublishStats)
	setBool("SP_STORAGE_CONSUME_INGEST", &cfg.Storage.ConsumeIngest)
	setString("SP_STORAGE_DOCUMENTS_FILE", &cfg.Storage.DocumentsFile)
	setInt("SP_ANALYZER_PORT", &cfg.Analyzer.Port)
	setString("SP_ANALYZER_VECTORS_FILE", &cfg.Analyzer.VectorsFile)
	setInt("SP_DYM_PORT", &cfg.Dym.Port)
	setString("SP_DYM_VOCABULARY_FILE", &cfg.Dym.VocabularyFile)
	setInt("SP_INGESTION_NUM_SHARDS", &cfg.Ingestion.NumShards)
	setString("SP_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("SP_POSTGRES_PORT", &cfg.Postgres.Port)
	setString("SP_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setString("SP_POSTGRES_USER", &cfg.Postgres.User)
	setString("SP_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setString("SP_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	setString("SP_REDIS_ADDR", &cfg.Redis.Addr)
	setString("SP_REDIS_PASSWORD", &cfg.Redis.Password)
	setString("SP_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("SP_LOGGING_FORMAT", &cfg.Logging.Format)
	setInt("SP_METRICS_PORT", &cfg.Metrics.Port)
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
