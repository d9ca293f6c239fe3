// Package config loads service settings. Values are layered: built-in defaults,
// then an optional YAML file, then variables from .env files, then the process
// environment (SUPERSHOP_ prefix). Later layers win.
package config

import (
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "SUPERSHOP"

const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	Service  string `yaml:"service" envconfig:"SERVICE_NAME"`
	Env      string `yaml:"env" envconfig:"ENV"`
	LogLevel string `yaml:"log_level" split_words:"true"`
	LogFile  string `yaml:"log_file" split_words:"true"`

	HTTP     HTTP     `yaml:"http"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Orders   Orders   `yaml:"orders"`
	Outbox   Outbox   `yaml:"outbox"`
}

type HTTP struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" split_words:"true"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

type Database struct {
	// Driver is memory, mysql or postgres.
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `yaml:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" split_words:"true"`
	TxTimeout       time.Duration `yaml:"tx_timeout" split_words:"true"`
}

// Redis is optional; an empty URL keeps idempotency keys in process memory.
type Redis struct {
	URL          string        `yaml:"url"`
	DialTimeout  time.Duration `yaml:"dial_timeout" split_words:"true"`
	ReadTimeout  time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout time.Duration `yaml:"write_timeout" split_words:"true"`
}

type Orders struct {
	IdempotencyTTL    time.Duration `yaml:"idempotency_ttl" split_words:"true"`
	PendingTTL        time.Duration `yaml:"pending_ttl" split_words:"true"`
	LowStockThreshold int           `yaml:"low_stock_threshold" split_words:"true"`
}

type Outbox struct {
	QueueSize      int           `yaml:"queue_size" split_words:"true"`
	Concurrency    int           `yaml:"concurrency"`
	HandlerTimeout time.Duration `yaml:"handler_timeout" split_words:"true"`
}

func Default() *Config {
	return &Config{
		Service:  "supershop",
		Env:      "dev",
		LogLevel: "info",
		HTTP: HTTP{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Database: Database{
			Driver:          DriverMemory,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			TxTimeout:       5 * time.Second,
		},
		Redis: Redis{
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Orders: Orders{
			IdempotencyTTL:    24 * time.Hour,
			PendingTTL:        30 * time.Second,
			LowStockThreshold: 5,
		},
		Outbox: Outbox{
			QueueSize:      1024,
			Concurrency:    8,
			HandlerTimeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration from path (may be empty) and the environment.
// Missing env files are skipped.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "config: read %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "config: parse %s", path)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, "config: load %s", f)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.Wrap(err, "config: environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverMySQL, DriverPostgres, "pgx":
		if c.Database.DSN == "" {
			return errors.Errorf("config: database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return errors.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr is required")
	}
	if c.Orders.IdempotencyTTL < 0 || c.Orders.PendingTTL < 0 {
		return errors.New("config: idempotency ttls must not be negative")
	}
	return nil
}
