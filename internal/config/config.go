// Package config loads dbprobe settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures every setting the probes and transports need.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	SlowQuery SlowQueryConfig `yaml:"slowQuery"`
	Storage   StorageConfig   `yaml:"storage"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	Batch     BatchConfig     `yaml:"batch"`
	Logging   LoggingConfig   `yaml:"logging"`
	Server    ServerConfig    `yaml:"server"`
}

// DatabaseConfig describes the target PostgreSQL instance and the pool.
// URL wins over the discrete fields when set.
type DatabaseConfig struct {
	URL              string        `yaml:"url"`
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Name             string        `yaml:"name"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	SSLMode          string        `yaml:"sslMode"`
	ConnectTimeout   time.Duration `yaml:"connectTimeout"`
	StatementTimeout time.Duration `yaml:"statementTimeout"`
	MaxOpenConns     int           `yaml:"maxOpenConns"`
	MaxIdleConns     int           `yaml:"maxIdleConns"`
	ConnMaxLifetime  time.Duration `yaml:"connMaxLifetime"`
}

// SandboxConfig controls the execute-query path.
type SandboxConfig struct {
	AllowWrites bool `yaml:"allowWrites"`
}

// SlowQueryConfig tunes check_query_response_time.
type SlowQueryConfig struct {
	ThresholdMs       float64       `yaml:"thresholdMs"`
	RecordThresholdMs float64       `yaml:"recordThresholdMs"`
	Lookback          time.Duration `yaml:"lookback"`
	MaxRecords        int           `yaml:"maxRecords"`
}

// StorageConfig tunes check_file_size. Soft and hard limits are percentages
// of CapacityMB.
type StorageConfig struct {
	CapacityMB  float64       `yaml:"capacityMB"`
	SoftPct     float64       `yaml:"softPct"`
	HardPct     float64       `yaml:"hardPct"`
	TopObjects  int           `yaml:"topObjects"`
	LockTimeout time.Duration `yaml:"lockTimeout"`
}

// AnomalyConfig tunes check_abnormal_data.
type AnomalyConfig struct {
	OrderStatuses       []string `yaml:"orderStatuses"`
	LargeNegativeAmount float64  `yaml:"largeNegativeAmount"`
	CriticalMultiplier  float64  `yaml:"criticalMultiplier"`
	MaxRows             int      `yaml:"maxRows"`
}

// BatchConfig tunes check_batch_data.
type BatchConfig struct {
	ErrorStatuses    []string `yaml:"errorStatuses"`
	CriticalRatio    float64  `yaml:"criticalRatio"`
	SampleMessages   int      `yaml:"sampleMessages"`
	MaxLookbackHours int      `yaml:"maxLookbackHours"`
	MaxLimit         int      `yaml:"maxLimit"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig controls the MCP transport and the metrics listener.
type ServerConfig struct {
	Transport       string        `yaml:"transport"`
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("DBPROBE_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Host:             "localhost",
			Port:             5432,
			Name:             "testdb",
			User:             "dbagent",
			SSLMode:          "disable",
			ConnectTimeout:   5 * time.Second,
			StatementTimeout: 30 * time.Second,
			MaxOpenConns:     10,
			MaxIdleConns:     5,
			ConnMaxLifetime:  5 * time.Minute,
		},
		SlowQuery: SlowQueryConfig{
			ThresholdMs:       1000,
			RecordThresholdMs: 500,
			Lookback:          24 * time.Hour,
			MaxRecords:        10,
		},
		Storage: StorageConfig{
			CapacityMB:  2048,
			SoftPct:     75,
			HardPct:     90,
			TopObjects:  5,
			LockTimeout: 100 * time.Millisecond,
		},
		Anomaly: AnomalyConfig{
			OrderStatuses: []string{
				"pending", "processing", "shipped", "delivered",
				"completed", "cancelled", "refunded", "error",
			},
			LargeNegativeAmount: -100,
			CriticalMultiplier:  10,
			MaxRows:             50,
		},
		Batch: BatchConfig{
			ErrorStatuses:    []string{"failed", "error"},
			CriticalRatio:    0.05,
			SampleMessages:   3,
			MaxLookbackHours: 720,
			MaxLimit:         100,
		},
		Logging: LoggingConfig{Level: "info"},
		Server: ServerConfig{
			Transport:       "stdio",
			Address:         ":9002",
			GracefulTimeout: 10 * time.Second,
		},
	}
}

// Floors for the batch caps: the deep profile asks for a week of history and
// check_batch_data returns five jobs by default.
const (
	minLookbackHours = 168
	minBatchLimit    = 5
)

// Validate rejects settings that would make classification meaningless.
func (c *Config) Validate() error {
	switch {
	case c.Database.StatementTimeout <= 0:
		return fmt.Errorf("database.statementTimeout must be positive")
	case c.SlowQuery.ThresholdMs <= 0 || c.SlowQuery.RecordThresholdMs <= 0:
		return fmt.Errorf("slowQuery thresholds must be positive")
	case c.SlowQuery.Lookback <= 0:
		return fmt.Errorf("slowQuery.lookback must be positive")
	case c.SlowQuery.MaxRecords <= 0:
		return fmt.Errorf("slowQuery.maxRecords must be positive")
	case c.Storage.CapacityMB <= 0:
		return fmt.Errorf("storage.capacityMB must be positive")
	case c.Storage.SoftPct <= 0 || c.Storage.HardPct < c.Storage.SoftPct:
		return fmt.Errorf("storage: need 0 < softPct <= hardPct, got %.1f/%.1f", c.Storage.SoftPct, c.Storage.HardPct)
	case c.Anomaly.LargeNegativeAmount >= 0:
		return fmt.Errorf("anomaly.largeNegativeAmount must be negative")
	case c.Anomaly.CriticalMultiplier < 1:
		return fmt.Errorf("anomaly.criticalMultiplier must be >= 1")
	case c.Anomaly.MaxRows <= 0:
		return fmt.Errorf("anomaly.maxRows must be positive")
	case len(c.Anomaly.OrderStatuses) == 0:
		return fmt.Errorf("anomaly.orderStatuses must not be empty")
	case c.Batch.CriticalRatio <= 0 || c.Batch.CriticalRatio > 1:
		return fmt.Errorf("batch.criticalRatio must be in (0, 1]")
	case c.Batch.MaxLookbackHours < minLookbackHours:
		return fmt.Errorf("batch.maxLookbackHours must be at least %d (the deep profile window), got %d", minLookbackHours, c.Batch.MaxLookbackHours)
	case c.Batch.MaxLimit < minBatchLimit:
		return fmt.Errorf("batch.maxLimit must be at least %d (the default limit), got %d", minBatchLimit, c.Batch.MaxLimit)
	}
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("server.transport must be stdio or http, got %q", c.Server.Transport)
	}
	return nil
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	if d.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(d.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Redacted returns a DSN safe for logs.
func (d DatabaseConfig) Redacted() string {
	if d.URL != "" {
		if u, err := url.Parse(d.URL); err == nil {
			return u.Redacted()
		}
		return "<unparseable url>"
	}
	return fmt.Sprintf("%s@%s:%d/%s", d.User, d.Host, d.Port, d.Name)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DBPROBE_STATEMENT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Database.StatementTimeout = d
		}
	}
	if v := os.Getenv("DBPROBE_ALLOW_WRITES"); v != "" {
		cfg.Sandbox.AllowWrites = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("DBPROBE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DBPROBE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("DBPROBE_TRANSPORT"); v != "" {
		cfg.Server.Transport = v
	}
	if v := os.Getenv("DBPROBE_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("DBPROBE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
}
