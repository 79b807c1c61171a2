// Package config provides configuration management for the governance service.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Store backends.
const (
	StoreBackendMemory   = "memory"
	StoreBackendPostgres = "postgres"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Store     StoreConfig     `mapstructure:"store"`
	Numbering NumberingConfig `mapstructure:"numbering"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	// AllowCredentials lets browsers send cookies and Authorization headers cross-origin.
	AllowCredentials bool `mapstructure:"allow_credentials"`
	// UnsafeAllowAllOrigins honours a "*" origin; credentials are then disabled.
	UnsafeAllowAllOrigins bool `mapstructure:"unsafe_allow_all_origins"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	// ConnectTimeout bounds the total time spent retrying the initial ping.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// StoreConfig selects the rule store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // memory or postgres
}

// NumberingConfig contains number assignment settings.
type NumberingConfig struct {
	// Timezone is the IANA location used for reset periods and year/month segments.
	Timezone string `mapstructure:"timezone"`
	// LockTimeout bounds how long an assignment waits for a counter lock.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// Location resolves Timezone, falling back to UTC when empty.
func (c NumberingConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load numbering timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// CatalogConfig controls seeding of lifecycle and numbering rules.
type CatalogConfig struct {
	// Path is a YAML catalog file; empty means the built-in numbering defaults.
	Path string `mapstructure:"path"`
	// SeedOnStart applies the catalog during bootstrap. Registration is an
	// upsert, so reapplying an unchanged catalog is harmless.
	SeedOnStart bool `mapstructure:"seed_on_start"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// SecurityConfig contains bearer token verification settings.
// Tokens are issued by an external identity service; this service only verifies them.
type SecurityConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	JWTIssuer     string `mapstructure:"jwt_issuer"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	BatchPoolSize int `mapstructure:"batch_pool_size"`
	// MaxBatchSize caps the number of entities accepted by one batch assignment.
	MaxBatchSize int `mapstructure:"max_batch_size"`
}

// TelemetryConfig contains OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Standard environment variables without prefix (DATABASE_URL, SERVER_PORT, etc.).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/governance")

	// Maps nested config: numbering.lock_timeout → NUMBERING_LOCK_TIMEOUT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreBackendMemory, StoreBackendPostgres:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q",
			StoreBackendMemory, StoreBackendPostgres, c.Store.Backend)
	}
	if len(c.Security.JWTSigningKey) < 32 {
		return fmt.Errorf("security.jwt_signing_key must be at least 32 characters")
	}
	if c.Numbering.LockTimeout <= 0 {
		return fmt.Errorf("numbering.lock_timeout must be positive")
	}
	if _, err := c.Numbering.Location(); err != nil {
		return err
	}
	if c.Worker.BatchPoolSize <= 0 {
		return fmt.Errorf("worker.batch_pool_size must be positive")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

// ensureSecrets generates a throwaway verification key for local runs.
func (c *Config) ensureSecrets() error {
	if c.Security.JWTSigningKey != "" {
		return nil
	}
	key, err := generateSecureRandomHex(32)
	if err != nil {
		return fmt.Errorf("auto-generate jwt signing key: %w", err)
	}
	c.Security.JWTSigningKey = key
	logBootstrapWarn(
		"auto-generated jwt_signing_key; externally issued tokens will not verify until SECURITY_JWT_SIGNING_KEY is set",
		zap.Int("length", len(key)),
	)
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "governance")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "governance")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.connect_timeout", "1m")
	v.SetDefault("database.auto_migrate", false)

	// Store
	v.SetDefault("store.backend", StoreBackendMemory)

	// Numbering
	v.SetDefault("numbering.timezone", "UTC")
	v.SetDefault("numbering.lock_timeout", "5s")

	// Catalog
	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.seed_on_start", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Security
	v.SetDefault("security.jwt_signing_key", "")
	v.SetDefault("security.jwt_issuer", "")

	// Worker Pool
	v.SetDefault("worker.batch_pool_size", 16)
	v.SetDefault("worker.max_batch_size", 500)

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "governance")
}
