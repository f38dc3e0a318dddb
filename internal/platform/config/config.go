// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the root configuration for the dealflow server.
type Config struct {
	Environment string `env:"DEALFLOW_ENV" envDefault:"development"`
	LogLevel    string `env:"DEALFLOW_LOG_LEVEL" envDefault:"info"`

	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Rules    RulesConfig
	Workflow WorkflowConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string        `env:"DEALFLOW_ADDR" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"DEALFLOW_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"DEALFLOW_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	JWTSigningKey     string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer         string        `env:"JWT_ISSUER" envDefault:"dealflow"`
	JWTAudience       string        `env:"JWT_AUDIENCE" envDefault:"dealflow-approvals"`
}

// DatabaseConfig selects Postgres. An empty URL keeps every store in memory.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
	TxTimeout       time.Duration `env:"DATABASE_TX_TIMEOUT" envDefault:"5s"`
}

// RedisConfig enables the Redis deal lock when URL is set.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig enables the audit outbox relay and activity consumer when
// Brokers is non-empty.
type KafkaConfig struct {
	Brokers        []string      `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic     string        `env:"KAFKA_AUDIT_TOPIC" envDefault:"dealflow.audit"`
	ConsumerGroup  string        `env:"KAFKA_CONSUMER_GROUP" envDefault:"dealflow-activity"`
	Partitions     int32         `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"3"`
	Replication    int16         `env:"KAFKA_TOPIC_REPLICATION" envDefault:"1"`
	RelayInterval  time.Duration `env:"KAFKA_RELAY_INTERVAL" envDefault:"1s"`
	RelayBatchSize int           `env:"KAFKA_RELAY_BATCH_SIZE" envDefault:"100"`
}

// RulesConfig points at optional YAML rule files. Empty paths fall back to the
// built-in catalog and partner policy.
type RulesConfig struct {
	CatalogFile       string `env:"DEALFLOW_CATALOG_FILE"`
	PoliciesFile      string `env:"DEALFLOW_POLICIES_FILE"`
	ConstitutionsFile string `env:"DEALFLOW_CONSTITUTIONS_FILE"`
}

// WorkflowConfig tunes the orchestrator and approval workflow.
type WorkflowConfig struct {
	// DealLock selects per-deal serialization: "none", "memory" or "redis".
	DealLock       string        `env:"DEALFLOW_DEAL_LOCK" envDefault:"none"`
	DealLockTTL    time.Duration `env:"DEALFLOW_DEAL_LOCK_TTL" envDefault:"30s"`
	ChainTTL       time.Duration `env:"DEALFLOW_CHAIN_TTL" envDefault:"168h"`
	ExpiryInterval time.Duration `env:"DEALFLOW_EXPIRY_INTERVAL" envDefault:"15m"`
	AuditBuffer    int           `env:"DEALFLOW_AUDIT_BUFFER" envDefault:"256"`
	// OpsSampleRate is the fraction of best-effort audit entries kept.
	OpsSampleRate  float64  `env:"DEALFLOW_OPS_SAMPLE_RATE" envDefault:"1"`
	StatusEntities []string `env:"DEALFLOW_STATUS_ENTITIES" envSeparator:"," envDefault:"deal,milestone,checklist_item,dd_finding,closing_condition,third_party_requirement"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether the service runs with production defaults.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}
