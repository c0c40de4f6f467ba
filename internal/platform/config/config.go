// Package config loads process configuration from KAIROS_* environment
// variables. Every field has a local-development default; a blank backend URL
// selects the in-memory implementation of that backend.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Config is the full process configuration.
type Config struct {
	Environment string `env:"KAIROS_ENV" envDefault:"development"`
	LogLevel    string `env:"KAIROS_LOG_LEVEL" envDefault:"info"`

	Server    Server
	Auth      Auth
	Postgres  Postgres
	Redis     RedisConfig
	S3        S3
	Kafka     Kafka
	Vault     Vault
	RateLimit RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"KAIROS_HTTP_ADDR" envDefault:":8080"`
	RequestTimeout  time.Duration `env:"KAIROS_HTTP_REQUEST_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"KAIROS_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Auth configures actor bearer tokens.
type Auth struct {
	JWTSigningKey string `env:"KAIROS_JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"KAIROS_JWT_ISSUER" envDefault:"kairos"`
	JWTAudience   string `env:"KAIROS_JWT_AUDIENCE" envDefault:"kairos-vault"`
}

// Postgres selects the capsule store. Empty URL keeps capsules in memory.
type Postgres struct {
	URL             string        `env:"KAIROS_POSTGRES_URL"`
	MaxOpenConns    int           `env:"KAIROS_POSTGRES_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"KAIROS_POSTGRES_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"KAIROS_POSTGRES_CONN_MAX_LIFETIME" envDefault:"30m"`
	Migrate         bool          `env:"KAIROS_POSTGRES_MIGRATE" envDefault:"true"`
}

// RedisConfig selects the consensus store. Empty URL keeps approvals in memory.
type RedisConfig struct {
	URL          string        `env:"KAIROS_REDIS_URL"`
	PoolSize     int           `env:"KAIROS_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"KAIROS_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"KAIROS_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"KAIROS_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"KAIROS_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// S3 selects the blob store. Empty bucket keeps blobs in memory.
type S3 struct {
	Bucket   string        `env:"KAIROS_S3_BUCKET"`
	Region   string        `env:"KAIROS_S3_REGION" envDefault:"us-east-1"`
	Endpoint string        `env:"KAIROS_S3_ENDPOINT"`
	Prefix   string        `env:"KAIROS_S3_PREFIX" envDefault:"capsules/"`
	Timeout  time.Duration `env:"KAIROS_S3_TIMEOUT" envDefault:"10s"`
}

// Kafka enables the audit stream. No brokers disables it.
type Kafka struct {
	Brokers           []string      `env:"KAIROS_KAFKA_BROKERS" envSeparator:","`
	Topic             string        `env:"KAIROS_KAFKA_AUDIT_TOPIC" envDefault:"kairos.audit"`
	Partitions        int32         `env:"KAIROS_KAFKA_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16         `env:"KAIROS_KAFKA_REPLICATION_FACTOR" envDefault:"1"`
	PublishTimeout    time.Duration `env:"KAIROS_KAFKA_PUBLISH_TIMEOUT" envDefault:"5s"`
	QueueSize         int           `env:"KAIROS_KAFKA_QUEUE_SIZE" envDefault:"1024"`
}

// Vault tunes the capsule services.
type Vault struct {
	TxTimeout        time.Duration `env:"KAIROS_TX_TIMEOUT" envDefault:"5s"`
	KDFIterations    int           `env:"KAIROS_KDF_ITERATIONS" envDefault:"100000"`
	PingBatchWorkers int           `env:"KAIROS_PING_BATCH_WORKERS" envDefault:"8"`
	PingBatchMax     int           `env:"KAIROS_PING_BATCH_MAX" envDefault:"50"`
}

// RateLimit bounds claim attempts per capsule and overall API traffic per actor.
type RateLimit struct {
	Enabled     bool          `env:"KAIROS_RATELIMIT_ENABLED" envDefault:"true"`
	ClaimLimit  int           `env:"KAIROS_RATELIMIT_CLAIM_LIMIT" envDefault:"5"`
	ClaimWindow time.Duration `env:"KAIROS_RATELIMIT_CLAIM_WINDOW" envDefault:"15m"`
	APILimit    int           `env:"KAIROS_RATELIMIT_API_LIMIT" envDefault:"300"`
	APIWindow   time.Duration `env:"KAIROS_RATELIMIT_API_WINDOW" envDefault:"1m"`
}

// FromEnv parses and validates the configuration.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether the process runs with KAIROS_ENV=production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate rejects settings that would run unsafely.
func (c Config) Validate() error {
	var errs []error
	if c.IsProduction() && c.Auth.JWTSigningKey == devSigningKey {
		errs = append(errs, errors.New("KAIROS_JWT_SIGNING_KEY must be set in production"))
	}
	if len(c.Auth.JWTSigningKey) < 16 {
		errs = append(errs, errors.New("KAIROS_JWT_SIGNING_KEY must be at least 16 bytes"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("KAIROS_HTTP_REQUEST_TIMEOUT must be positive"))
	}
	if c.Vault.KDFIterations < 1 {
		errs = append(errs, errors.New("KAIROS_KDF_ITERATIONS must be positive"))
	}
	if c.Vault.PingBatchWorkers < 1 || c.Vault.PingBatchMax < 1 {
		errs = append(errs, errors.New("ping batch workers and size must be positive"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.ClaimLimit < 1 || c.RateLimit.APILimit < 1 ||
		c.RateLimit.ClaimWindow <= 0 || c.RateLimit.APIWindow <= 0) {
		errs = append(errs, errors.New("rate limits and windows must be positive"))
	}
	return errors.Join(errs...)
}
