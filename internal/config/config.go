package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for both the API and worker binaries.
type Config struct {
	Server       Server       `mapstructure:"server"`
	Database     Database     `mapstructure:"database"`
	Storage      Storage      `mapstructure:"storage"`
	Kafka        Kafka        `mapstructure:"kafka"`
	Retry        Retry        `mapstructure:"retry"`
	Orchestrator Orchestrator `mapstructure:"orchestrator"`
	Worker       Worker       `mapstructure:"worker"`
	Pipeline     Pipeline     `mapstructure:"pipeline"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort string `mapstructure:"http_port"` // HTTP port to listen on
}

// Database holds database master and slave configuration.
type Database struct {
	Master DatabaseNode   `mapstructure:"master"`
	Slaves []DatabaseNode `mapstructure:"slaves"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DatabaseNode holds connection parameters for a single database node.
type DatabaseNode struct {
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	Name    string `mapstructure:"name"`
	SSLMode string `mapstructure:"ssl_mode"`
}

// Storage holds configuration for the object storage backend.
type Storage struct {
	Endpoint    string `mapstructure:"endpoint"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	BucketName  string `mapstructure:"bucket_name"`
	ExternalURL string `mapstructure:"external_url"` // base URL clients fetch objects from
	UseSSL      bool   `mapstructure:"use_ssl"`
}

// Kafka holds configuration for the job queue.
type Kafka struct {
	GroupID string   `mapstructure:"group_id"` // Consumer group ID
	Topic   string   `mapstructure:"topic"`    // Kafka topic name
	Brokers []string `mapstructure:"brokers"`  // List of Kafka broker addresses
}

// Retry defines the retry policy for Kafka and other external calls.
type Retry struct {
	Attempts int           `mapstructure:"attempts"` // Number of retry attempts
	Delay    time.Duration `mapstructure:"delay"`    // Initial delay between retries
	Backoff  float64       `mapstructure:"backoff"`  // Backoff multiplier for delays
}

// Orchestrator holds submission limits and estimate tuning.
type Orchestrator struct {
	MaxDimension int           `mapstructure:"max_dimension"` // largest accepted width/height in px
	BaseEstimate time.Duration `mapstructure:"base_estimate"` // expected time per 1-megapixel image
}

// Worker holds the execution pool configuration.
type Worker struct {
	Accelerators  int           `mapstructure:"accelerators"`    // one job slot per device
	MaxAttempts   int           `mapstructure:"max_attempts"`    // execution attempts per job
	RetryDelay    time.Duration `mapstructure:"retry_delay"`     // fixed pause between attempts
	SoftTimeLimit time.Duration `mapstructure:"soft_time_limit"` // graceful wind-down signal
	HardTimeLimit time.Duration `mapstructure:"hard_time_limit"` // forced termination
}

// Pipeline holds the inference sidecar configuration.
type Pipeline struct {
	Endpoint string `mapstructure:"endpoint"` // base URL of the inference sidecar
}

// DSN returns the PostgreSQL DSN string for connecting to this database node.
func (n DatabaseNode) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		n.User, n.Pass, n.Host, n.Port, n.Name, n.SSLMode,
	)
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"database.master.host": "DB_HOST",
		"database.master.port": "DB_PORT",
		"database.master.user": "DB_USER",
		"database.master.pass": "DB_PASSWORD",
		"database.master.name": "DB_NAME",
		"storage.access_key":   "MINIO_ACCESS_KEY",
		"storage.secret_key":   "MINIO_SECRET_KEY",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// MustLoad loads the configuration from the specified directory.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	return &cfg
}
