// Package config holds the runtime configuration of pfandd.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/warp/pfand-engine/generic"
)

// Keys shared by flags, environment (PFAND_ prefix) and .env files.
const (
	KeyListenAddr      = "listen_addr"
	KeyDatabaseURL     = "database_url"
	KeyUnitValue       = "unit_value"
	KeyCurrency        = "currency"
	KeyAllowedOrigins  = "allowed_origins"
	KeyKafkaBrokers    = "kafka_brokers"
	KeyKafkaTopic      = "kafka_topic"
	KeyDevLog          = "dev_log"
	KeyShutdownTimeout = "shutdown_timeout"

	EnvPrefix = "PFAND"

	DefaultListenAddr      = ":8080"
	DefaultDatabaseURL     = "./data/pfand.db"
	DefaultCurrency        = "EUR"
	DefaultKafkaTopic      = "pfand.entries"
	DefaultShutdownTimeout = 10 * time.Second

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	ListenAddr      string
	DatabaseURL     string
	UnitValue       decimal.Decimal
	Currency        string
	AllowedOrigins  []string
	KafkaBrokers    []string
	KafkaTopic      string
	DevLog          bool
	ShutdownTimeout time.Duration
}

// Default returns a Config with every default applied.
func Default() Config {
	cfg := Config{}
	_ = cfg.Validate()
	return cfg
}

// Load reads every key from v and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		ListenAddr:      v.GetString(KeyListenAddr),
		DatabaseURL:     v.GetString(KeyDatabaseURL),
		Currency:        v.GetString(KeyCurrency),
		AllowedOrigins:  splitList(v.GetStringSlice(KeyAllowedOrigins)),
		KafkaBrokers:    splitList(v.GetStringSlice(KeyKafkaBrokers)),
		KafkaTopic:      v.GetString(KeyKafkaTopic),
		DevLog:          v.GetBool(KeyDevLog),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
	}
	if raw := strings.TrimSpace(v.GetString(KeyUnitValue)); raw != "" {
		unitValue, err := generic.ParseUnitValue(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", KeyUnitValue, err)
		}
		cfg.UnitValue = unitValue
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate applies defaults and rejects unusable values.
func (c *Config) Validate() error {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	if c.DatabaseURL == "" {
		c.DatabaseURL = DefaultDatabaseURL
	}
	if c.UnitValue.IsZero() {
		c.UnitValue = generic.DefaultUnitValue
	}
	if !c.UnitValue.IsPositive() {
		return fmt.Errorf("unit value must be positive, got %s", c.UnitValue)
	}
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.KafkaTopic == "" {
		c.KafkaTopic = DefaultKafkaTopic
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return nil
}

// KafkaEnabled reports whether any broker is configured.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// ResolveDriver maps DatabaseURL to a store driver. For SQLite the second
// value is the file path, with its parent directory created.
func (c Config) ResolveDriver() (string, string, error) {
	dsn := c.DatabaseURL
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Host + u.Path
		if path == "" || path == "/" {
			path = "pfand.db"
		}
		dsn = path
	}
	path, err := normalizeSQLitePath(dsn)
	return DriverSQLite, path, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// splitList accepts both repeated values and a single comma separated value.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
